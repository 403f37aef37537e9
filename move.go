package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/mailru-go/internal/cloud"
)

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <remote-path> <remote-folder>",
		Short: "Copy a file or folder into another folder",
		Long: `Copy a remote file or folder into another remote folder. If the
destination already holds an entry with the same name, the server renames
the copy; the resulting path is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: runCp,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <remote-path> <remote-folder>",
		Short: "Move a file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <remote-path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

// relocateFunc is one of the path-returning client operations.
type relocateFunc func(c *cloud.Client, ctx context.Context, from, to string) (*cloud.File, error)

func runRelocate(cmd *cobra.Command, args []string, verb string, op relocateFunc) error {
	from, to := args[0], args[1]

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		cc.Logger.Debug(verb, "from", from, "to", to)

		result, err := op(c, ctx, from, to)
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
				Path string `json:"path"`
			}{result.Path()})
		}

		fmt.Fprintln(cmd.OutOrStdout(), result.Path())

		return nil
	})
}

func runCp(cmd *cobra.Command, args []string) error {
	return runRelocate(cmd, args, "cp", (*cloud.Client).Copy)
}

func runMv(cmd *cobra.Command, args []string) error {
	return runRelocate(cmd, args, "mv", (*cloud.Client).MoveToFolder)
}

func runRename(cmd *cobra.Command, args []string) error {
	return runRelocate(cmd, args, "rename", (*cloud.Client).Rename)
}
