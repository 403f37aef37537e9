// Package session persists the credential cache between process runs.
// Store is the seam the cloud client talks to; FileStore keeps the
// historical single-file layout guarded by an advisory lock, and
// SQLiteStore offers a database-backed record with optimistic concurrency
// for setups where several processes share one cache root.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tonimelisma/mailru-go/internal/credential"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrNotFound means no credential has been cached yet.
	ErrNotFound = errors.New("session: no cached credential")

	// ErrConflict means a concurrent writer kept winning an optimistic
	// update until the retry budget ran out.
	ErrConflict = errors.New("session: concurrent update conflict")
)

// File names under the cache root.
const (
	KeyFileName    = "mail-ru-cloud-key"
	CookieFileName = "mail-ru-cloud-cookie"
	DBFileName     = "mail-ru-cloud.db"
)

// Store loads and saves the cached credential.
//
// Load returns ErrNotFound when nothing is cached, and the credential
// package's ErrTokenExpired / ErrInvalidCredentialFile when a record exists
// but is unusable. Save overwrites the record. Update performs a
// read-modify-write that no concurrent Save or Update can interleave with;
// fn receives the current key and returns its replacement.
type Store interface {
	Load(ctx context.Context) (*credential.Key, error)
	Save(ctx context.Context, key *credential.Key) error
	Update(ctx context.Context, fn func(*credential.Key) (*credential.Key, error)) error
	Clear(ctx context.Context) error
}

// Kind selects a Store implementation.
type Kind string

// Supported store kinds.
const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Open builds the Store of the given kind rooted at cacheRoot. The login
// keys the record inside a SQLite store; FileStore holds a single record.
func Open(ctx context.Context, kind Kind, cacheRoot, login string, logger *slog.Logger) (Store, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(filepath.Join(cacheRoot, KeyFileName), logger), nil
	case KindSQLite:
		return OpenSQLiteStore(ctx, filepath.Join(cacheRoot, DBFileName), login, logger)
	default:
		return nil, fmt.Errorf("session: unknown store kind %q", kind)
	}
}
