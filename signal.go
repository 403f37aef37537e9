package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional shell status for a process killed by
// SIGINT.
const exitInterrupted = 130

// shutdownContext cancels on the first SIGINT or SIGTERM. A second signal
// while the command is still winding down exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-ctx.Done()

		if parent.Err() != nil {
			stop()
			return
		}

		force := make(chan os.Signal, 1)
		signal.Notify(force, os.Interrupt, syscall.SIGTERM)
		stop()

		defer signal.Stop(force)

		logger.Info("shutting down, signal again to force exit")

		select {
		case sig := <-force:
			logger.Warn("forced exit", slog.String("signal", sig.String()))
			os.Exit(exitInterrupted)
		case <-parent.Done():
		}
	}()

	return ctx
}
