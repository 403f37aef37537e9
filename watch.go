package main

import (
	"context"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mailru-go/internal/cloud"
	"github.com/tonimelisma/mailru-go/internal/localfile"
	"github.com/tonimelisma/mailru-go/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <local-dir>",
		Short: "Upload files as they appear in a local directory",
		Long: `Watch a local directory and upload every file that is created or
modified in it, once the file has stopped changing for the settle interval.
Subdirectories and dotfiles are ignored. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().String("to", "/", "remote folder to upload into")
	cmd.Flags().Duration("settle", watch.DefaultSettle, "quiet period before a changed file is uploaded")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	folder, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}

	settle, err := cmd.Flags().GetDuration("settle")
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		upload := func(ctx context.Context, localPath string) error {
			f, err := c.Upload(ctx, localfile.New(localPath), path.Join(folder, filepath.Base(localPath)))
			if err != nil {
				return err
			}

			cc.Statusf("Uploaded %s\n", f.Path())

			return nil
		}

		w, err := watch.New(dir, upload, settle, cc.Logger)
		if err != nil {
			return err
		}

		cc.Statusf("Watching %s, uploading into %s. Press Ctrl-C to stop.\n", dir, folder)

		return w.Run(ctx)
	})
}
