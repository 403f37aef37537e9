// Package watch uploads files as they appear in a local directory.
//
// Events from the directory are coalesced per path: a file is handed to
// the upload function once it has produced no Create or Write event for
// the settle interval, so a file still being written is not sent half
// done. Only the directory itself is watched, not its subdirectories.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay quiet before it is uploaded.
const DefaultSettle = 2 * time.Second

// Watcher error backoff.
const (
	errInitBackoff = 1 * time.Second
	errMaxBackoff  = 30 * time.Second
	errBackoffMult = 2
)

// UploadFunc sends one settled file. Errors are logged and the file is not
// retried until it changes again.
type UploadFunc func(ctx context.Context, localPath string) error

// FsWatcher is the subset of *fsnotify.Watcher the loop needs.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	*fsnotify.Watcher
}

func (w fsnotifyWatcher) Events() <-chan fsnotify.Event {
	return w.Watcher.Events
}

func (w fsnotifyWatcher) Errors() <-chan error {
	return w.Watcher.Errors
}

// Watcher feeds new and modified files of one directory to an UploadFunc.
type Watcher struct {
	dir    string
	fs     FsWatcher
	upload UploadFunc
	settle time.Duration
	logger *slog.Logger

	// sleep waits out watcher error backoff. Tests override it.
	sleep func(ctx context.Context, d time.Duration) error
}

// New watches dir with fsnotify. A non-positive settle selects
// DefaultSettle.
func New(dir string, upload UploadFunc, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch: adding %s: %w", dir, err)
	}

	return newWatcher(dir, fsnotifyWatcher{fw}, upload, settle, logger), nil
}

func newWatcher(dir string, fs FsWatcher, upload UploadFunc, settle time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Watcher{
		dir:    dir,
		fs:     fs,
		upload: upload,
		settle: settle,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Run processes events until ctx is canceled or the underlying watcher
// closes, then closes the watcher. Cancellation is not an error.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	pending := make(map[string]time.Time)

	ticker := time.NewTicker(max(w.settle/4, time.Millisecond))
	defer ticker.Stop()

	errBackoff := errInitBackoff

	w.logger.Info("watching for new files",
		slog.String("dir", w.dir),
		slog.Duration("settle", w.settle),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events():
			if !ok {
				return nil
			}

			w.track(ev, pending)
			errBackoff = errInitBackoff

		case watchErr, ok := <-w.fs.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if err := w.sleep(ctx, errBackoff); err != nil {
				return nil
			}

			errBackoff = min(errBackoff*errBackoffMult, errMaxBackoff)

		case now := <-ticker.C:
			w.flush(ctx, now, pending)
		}
	}
}

// track records or forgets a path according to one event.
func (w *Watcher) track(ev fsnotify.Event, pending map[string]time.Time) {
	if ignored(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		pending[ev.Name] = time.Now()
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(pending, ev.Name)
	}
}

// flush uploads every pending path that has been quiet for the settle
// interval. Paths that vanished or turned out to be directories are dropped.
func (w *Watcher) flush(ctx context.Context, now time.Time, pending map[string]time.Time) {
	var ready []string

	for p, last := range pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, p)
		}
	}

	sort.Strings(ready)

	for _, p := range ready {
		delete(pending, p)

		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			w.logger.Debug("skipping non-regular path", slog.String("path", p))
			continue
		}

		if err := w.upload(ctx, p); err != nil {
			w.logger.Error("upload failed",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)

			continue
		}

		w.logger.Info("uploaded", slog.String("path", p), slog.Int64("size", info.Size()))
	}
}

// ignored filters editor swap files and other dotfiles.
func ignored(name string) bool {
	base := filepath.Base(name)

	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
