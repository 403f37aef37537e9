package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/mailru-go/internal/cloud"
	"github.com/tonimelisma/mailru-go/internal/localfile"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Long: `Download a remote file. The local path defaults to the file's name in
the current directory. With [transfers] verify_hash enabled the content is
checked against the hash the server reports, and a mismatching download is
removed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload files",
		Long: `Upload one or more local files into a remote folder. Files are sent
concurrently, up to [transfers] parallel_uploads at a time. A name clash
makes the server pick a free name, which is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("to", "/", "remote folder to upload into")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder (moves it to the cloud trash)",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

// withSession opens a bootstrapped cloud session for the duration of fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, c *cloud.Client) error) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	s, err := openCloudSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, cc, s.Client)
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		cc.Logger.Debug("ls", "path", remotePath)

		entities, err := c.List(ctx, remotePath)
		if err != nil {
			return fmt.Errorf("listing %q: %w", remotePath, err)
		}

		if cc.Flags.JSON {
			return printEntitiesJSON(cmd.OutOrStdout(), entities)
		}

		printEntitiesTable(cmd.OutOrStdout(), entities)

		return nil
	})
}

// entityJSON is the JSON output schema for ls and stat.
type entityJSON struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	IsFolder   bool   `json:"is_folder"`
	Size       int64  `json:"size"`
	Hash       string `json:"hash,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Files      int    `json:"files,omitempty"`
	Folders    int    `json:"folders,omitempty"`
}

func toEntityJSON(e cloud.Entity) entityJSON {
	out := entityJSON{Name: e.Name(), Path: e.Path()}

	switch v := e.(type) {
	case *cloud.File:
		out.Size = v.Size
		out.Hash = v.Hash

		if !v.ModTime.IsZero() {
			out.ModifiedAt = v.ModTime.UTC().Format(time.RFC3339)
		}
	case *cloud.Folder:
		out.IsFolder = true
		out.Size = v.Size
		out.Files = v.Files
		out.Folders = v.Folders
	}

	return out
}

func printEntitiesJSON(w io.Writer, entities []cloud.Entity) error {
	out := make([]entityJSON, 0, len(entities))
	for _, e := range entities {
		out = append(out, toEntityJSON(e))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printEntitiesTable(w io.Writer, entities []cloud.Entity) {
	rows := make([]entityJSON, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, toEntityJSON(e))
	}

	// Folders first, then alphabetical.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].IsFolder != rows[j].IsFolder {
			return rows[i].IsFolder
		}

		return rows[i].Name < rows[j].Name
	})

	table := make([][]string, 0, len(rows))

	for _, r := range rows {
		name := r.Name
		if r.IsFolder {
			name += "/"
		}

		modified := "-"
		if t, err := time.Parse(time.RFC3339, r.ModifiedAt); err == nil {
			modified = formatTime(t.Local())
		}

		table = append(table, []string{name, formatSize(r.Size), modified})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED"}, table)
}

func runStat(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		cc.Logger.Debug("stat", "path", remotePath)

		e, err := c.Stat(ctx, remotePath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", remotePath, err)
		}

		if cc.Flags.JSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(toEntityJSON(e))
		}

		printStatText(cmd.OutOrStdout(), e)

		return nil
	})
}

func printStatText(w io.Writer, e cloud.Entity) {
	fmt.Fprintf(w, "Name:     %s\n", e.Name())
	fmt.Fprintf(w, "Path:     %s\n", e.Path())

	switch v := e.(type) {
	case *cloud.File:
		fmt.Fprintf(w, "Type:     file\n")
		fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(v.Size), v.Size)
		fmt.Fprintf(w, "Modified: %s\n", formatTime(v.ModTime))
		fmt.Fprintf(w, "Hash:     %s\n", v.Hash)
	case *cloud.Folder:
		fmt.Fprintf(w, "Type:     folder\n")
		fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(v.Size), v.Size)
		fmt.Fprintf(w, "Contents: %d files, %d folders\n", v.Files, v.Folders)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	localPath := path.Base(remotePath)
	if len(args) > 1 {
		localPath = args[1]
	}

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		cc.Logger.Debug("get", "remote", remotePath, "local", localPath)

		local := localfile.New(localPath)

		var (
			ok  bool
			err error
		)

		if cc.Cfg.VerifyHash {
			ok, err = downloadVerified(ctx, c, remotePath, local)
		} else {
			ok, err = c.Download(ctx, remotePath, local)
		}

		if err != nil {
			return fmt.Errorf("downloading %q: %w", remotePath, err)
		}

		if !ok {
			return fmt.Errorf("downloading %q: server refused the download", remotePath)
		}

		cc.Statusf("Downloaded %s to %s\n", remotePath, local.Path())

		return nil
	})
}

// downloadVerified looks up the remote hash and downloads against it.
// Folders are rejected before any content is fetched.
func downloadVerified(ctx context.Context, c *cloud.Client, remotePath string, local *localfile.File) (bool, error) {
	e, err := c.Stat(ctx, remotePath)
	if err != nil {
		return false, err
	}

	f, isFile := e.(*cloud.File)
	if !isFile {
		return false, fmt.Errorf("%s is a folder", e.Path())
	}

	if f.Hash == "" {
		return c.Download(ctx, remotePath, local)
	}

	return c.DownloadVerified(ctx, remotePath, local, f.Hash)
}

func runPut(cmd *cobra.Command, args []string) error {
	folder, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		uploaded, err := uploadAll(ctx, c, args, folder, cc.Cfg.ParallelUploads, cc.Logger)

		for _, f := range uploaded {
			if f != nil {
				cc.Statusf("Uploaded %s (%s)\n", f.Path(), formatSize(f.Size))
			}
		}

		return err
	})
}

// uploadAll uploads every local path into folder with at most parallel
// uploads in flight. The result is indexed like localPaths; entries for
// failed uploads are nil. Every upload is attempted and all failures are
// reported together.
func uploadAll(
	ctx context.Context, c *cloud.Client, localPaths []string, folder string, parallel int, logger *slog.Logger,
) ([]*cloud.File, error) {
	results := make([]*cloud.File, len(localPaths))
	errs := make([]error, len(localPaths))

	var g errgroup.Group
	g.SetLimit(max(parallel, 1))

	for i, p := range localPaths {
		g.Go(func() error {
			remote := path.Join(folder, filepath.Base(p))

			f, err := c.Upload(ctx, localfile.New(p), remote)
			if err != nil {
				errs[i] = fmt.Errorf("uploading %s: %w", p, err)
				return nil
			}

			logger.Info("uploaded", "local", p, "remote", f.Path(), "size", f.Size)
			results[i] = f

			return nil
		})
	}

	_ = g.Wait()

	return results, errors.Join(errs...)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		folder, err := c.Mkdir(ctx, remotePath)
		if err != nil {
			return fmt.Errorf("creating folder %q: %w", remotePath, err)
		}

		cc.Statusf("Created %s\n", folder.Path())

		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	return withSession(cmd, func(ctx context.Context, cc *CLIContext, c *cloud.Client) error {
		if _, err := c.Remove(ctx, remotePath); err != nil {
			return fmt.Errorf("removing %q: %w", remotePath, err)
		}

		cc.Statusf("Removed %s\n", remotePath)

		return nil
	})
}
