package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/mailru-go/internal/credential"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxUpdateAttempts bounds the compare-and-swap loop in Update.
const maxUpdateAttempts = 5

// busyTimeoutMillis lets SQLite wait on a competing writer instead of
// failing with SQLITE_BUSY straight away.
const busyTimeoutMillis = 5000

// SQLiteStore keeps one credential row per login. Every write bumps a
// version column; Update is a compare-and-swap on that version and retries
// when another process wrote in between.
type SQLiteStore struct {
	db     *sql.DB
	login  string
	logger *slog.Logger
}

// OpenSQLiteStore opens (or creates) the database at dbPath, applies
// migrations, and returns a store keyed by login. Use ":memory:" in tests.
func OpenSQLiteStore(ctx context.Context, dbPath, login string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), DirPerms); err != nil {
			return nil, fmt.Errorf("session: creating directory for %s: %w", dbPath, err)
		}
	}

	logger.Debug("opening credential database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// this process's writers; other processes are handled by versioning.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, login: login, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("session: %s: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies pending schema migrations with the goose Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("session: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("session: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("session: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Load reads the credential row for this store's login.
func (s *SQLiteStore) Load(ctx context.Context) (*credential.Key, error) {
	doc, _, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	return credential.Parse([]byte(doc))
}

// Save upserts the credential row.
func (s *SQLiteStore) Save(ctx context.Context, key *credential.Key) error {
	doc, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("session: encoding credential: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (login, document, version, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(login) DO UPDATE SET
		   document = excluded.document,
		   version = credentials.version + 1,
		   updated_at = excluded.updated_at`,
		s.login, string(doc), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("session: saving credential: %w", err)
	}

	s.logger.Debug("saved credential", slog.String("login", s.login), slog.Time("deadline", key.Deadline()))

	return nil
}

// Update applies fn with optimistic concurrency. If another writer bumps
// the version between the read and the write, the cycle restarts with the
// fresh row; after maxUpdateAttempts it gives up with ErrConflict.
func (s *SQLiteStore) Update(ctx context.Context, fn func(*credential.Key) (*credential.Key, error)) error {
	for attempt := range maxUpdateAttempts {
		doc, version, err := s.read(ctx)
		if err != nil {
			return err
		}

		current, err := credential.Parse([]byte(doc))
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		nextDoc, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("session: encoding credential: %w", err)
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE credentials SET document = ?, version = version + 1, updated_at = ?
			 WHERE login = ? AND version = ?`,
			string(nextDoc), time.Now().Unix(), s.login, version,
		)
		if err != nil {
			return fmt.Errorf("session: updating credential: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("session: updating credential: %w", err)
		}

		if n == 1 {
			return nil
		}

		s.logger.Debug("credential changed concurrently, retrying update",
			slog.String("login", s.login),
			slog.Int("attempt", attempt+1),
		)
	}

	return fmt.Errorf("%w after %d attempts", ErrConflict, maxUpdateAttempts)
}

// Clear deletes the credential row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE login = ?`, s.login); err != nil {
		return fmt.Errorf("session: clearing credential: %w", err)
	}

	return nil
}

func (s *SQLiteStore) read(ctx context.Context) (string, int64, error) {
	var (
		doc     string
		version int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT document, version FROM credentials WHERE login = ?`, s.login,
	).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrNotFound
	}

	if err != nil {
		return "", 0, fmt.Errorf("session: reading credential: %w", err)
	}

	return doc, version, nil
}
