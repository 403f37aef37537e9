package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mailru-go/internal/credential"
	"github.com/tonimelisma/mailru-go/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the session credential",
		Long: `Log in to Mail.ru Cloud with the configured login and password.

A still-valid cached credential is reused unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("force", false, "discard the cached credential and log in again")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached credential and cookies",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the cached session without contacting the server",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	if err := cc.Cfg.RequireAccount(); err != nil {
		return err
	}

	s, err := newCloudSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	if force, _ := cmd.Flags().GetBool("force"); force {
		if err := s.Client.Logout(ctx); err != nil {
			return err
		}
	}

	cc.Logger.Info("login started", "login", cc.Cfg.Login)

	if err := s.Client.Bootstrap(ctx); err != nil {
		return err
	}

	key := s.Client.Key()

	cc.Logger.Info("login successful", "login", key.Login, "deadline", key.Deadline())

	if cc.Flags.JSON {
		return printKeyJSON(cmd.OutOrStdout(), key)
	}

	cc.Statusf("Logged in as %s (session valid until %s).\n", key.Login, key.Deadline().Format(time.RFC3339))

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	s, err := newCloudSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Client.Logout(ctx); err != nil {
		return err
	}

	if err := s.Jar.Reset(); err != nil {
		return err
	}

	cc.Logger.Info("logged out", "login", cc.Cfg.Login)
	cc.Statusf("Logged out %s.\n", cc.Cfg.Login)

	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	s, err := newCloudSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	key, err := s.Store.Load(ctx)

	switch {
	case errors.Is(err, session.ErrNotFound):
		return fmt.Errorf("not logged in as %s: run 'mailru-go login' first", cc.Cfg.Login)
	case errors.Is(err, credential.ErrTokenExpired):
		return fmt.Errorf("session for %s has expired: run 'mailru-go login' again", cc.Cfg.Login)
	case err != nil:
		return err
	}

	if cc.Flags.JSON {
		return printKeyJSON(cmd.OutOrStdout(), key)
	}

	printKeyText(cmd.OutOrStdout(), key)

	return nil
}

// keyJSONOutput is the JSON output schema for login and whoami. The token
// is never printed.
type keyJSONOutput struct {
	Login    string `json:"login"`
	Deadline string `json:"deadline"`
	Upload   string `json:"upload,omitempty"`
	Download string `json:"download,omitempty"`
}

func printKeyJSON(w io.Writer, key *credential.Key) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(keyJSONOutput{
		Login:    key.Login,
		Deadline: key.Deadline().UTC().Format(time.RFC3339),
		Upload:   key.Upload,
		Download: key.Download,
	})
}

func printKeyText(w io.Writer, key *credential.Key) {
	fmt.Fprintf(w, "Login:    %s\n", key.Login)
	fmt.Fprintf(w, "Valid to: %s\n", key.Deadline().Format(time.RFC3339))
	fmt.Fprintf(w, "Upload:   %s\n", orNone(key.Upload))
	fmt.Fprintf(w, "Download: %s\n", orNone(key.Download))
}

func orNone(s string) string {
	if s == "" {
		return "(not discovered)"
	}

	return s
}
