package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS send_failures (
	message_key     TEXT PRIMARY KEY,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	first_failed_at INTEGER NOT NULL,
	last_failed_at  INTEGER NOT NULL
);`

// SQLite persists the ledger in a local database file.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

type sqliteRow struct {
	Entry
	FirstFailedAt int64 `db:"first_failed_at"`
	LastFailedAt  int64 `db:"last_failed_at"`
}

// NewSQLite opens (or creates) the database at path. ":memory:" works for
// a throwaway ledger.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	// One connection: every :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) RecordFailure(ctx context.Context, key, reason string) (int, error) {
	now := s.now().Unix()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning ledger update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO send_failures (message_key, attempts, last_error, first_failed_at, last_failed_at)
VALUES (?, 1, ?, ?, ?)
ON CONFLICT(message_key) DO UPDATE SET
	attempts = attempts + 1,
	last_error = excluded.last_error,
	last_failed_at = excluded.last_failed_at`,
		key, reason, now, now)
	if err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", key, err)
	}

	var attempts int
	if err := tx.GetContext(ctx, &attempts, "SELECT attempts FROM send_failures WHERE message_key = ?", key); err != nil {
		return 0, fmt.Errorf("reading attempts for %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing ledger update: %w", err)
	}
	return attempts, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	var row sqliteRow
	err := s.db.GetContext(ctx, &row,
		"SELECT message_key, attempts, last_error, first_failed_at, last_failed_at FROM send_failures WHERE message_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading ledger entry %s: %w", key, err)
	}

	e := row.Entry
	e.FirstFailed = time.Unix(row.FirstFailedAt, 0)
	e.LastFailed = time.Unix(row.LastFailedAt, 0)
	return e, true, nil
}

func (s *SQLite) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM send_failures WHERE message_key = ?", key); err != nil {
		return fmt.Errorf("clearing ledger entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
