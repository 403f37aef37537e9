package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tonimelisma/mailru-go/internal/credential"
)

// FilePerms restricts the cache record to owner-only read/write because it
// holds a live access token.
const FilePerms = 0o600

// DirPerms is used when creating the cache root.
const DirPerms = 0o700

// lockPollInterval is how often a blocked lock acquisition retries while
// waiting on another process.
const lockPollInterval = 25 * time.Millisecond

// FileStore keeps the credential in a single JSON file. Every operation runs
// under an exclusive flock on a sidecar "<path>.lock" file, and writes go
// through a temp file + rename, so concurrent processes on one host never
// observe a torn record or lose a read-modify-write.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore for the cache file at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, logger: logger}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cached credential.
func (s *FileStore) Load(ctx context.Context) (*credential.Key, error) {
	var key *credential.Key

	err := s.withLock(ctx, func() error {
		var loadErr error
		key, loadErr = s.load()

		return loadErr
	})

	return key, err
}

// Save overwrites the cached credential.
func (s *FileStore) Save(ctx context.Context, key *credential.Key) error {
	return s.withLock(ctx, func() error {
		return s.write(key)
	})
}

// Update applies fn to the current credential and writes the result while
// holding the lock for the whole cycle.
func (s *FileStore) Update(ctx context.Context, fn func(*credential.Key) (*credential.Key, error)) error {
	return s.withLock(ctx, func() error {
		current, err := s.load()
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		return s.write(next)
	})
}

// Clear removes the cached credential. A missing file is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("session: removing %s: %w", s.path, err)
		}

		s.logger.Info("removed cached credential", slog.String("path", s.path))

		return nil
	})
}

func (s *FileStore) load() (*credential.Key, error) {
	key, err := credential.LoadFromFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return key, nil
}

// write persists key atomically (write-to-temp + fsync + rename). The temp
// file lives in the same directory so rename(2) stays on one filesystem.
func (s *FileStore) write(key *credential.Key) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("session: encoding credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".key-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("session: renaming: %w", err)
	}

	success = true

	s.logger.Debug("saved credential",
		slog.String("path", s.path),
		slog.Time("deadline", key.Deadline()),
	)

	return nil
}

// withLock runs fn while holding an exclusive flock on the sidecar lock
// file. Acquisition polls with LOCK_NB so ctx cancellation is honored.
func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, FilePerms)
	if err != nil {
		return fmt.Errorf("session: opening lock file: %w", err)
	}
	defer f.Close()

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}

		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("session: locking %s: %w", s.path, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("session: waiting for lock: %w", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()

	return fn()
}
