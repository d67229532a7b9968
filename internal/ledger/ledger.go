// Package ledger counts failed reply attempts per message so a message
// that can never be answered is eventually set aside.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/bscott/askmail/internal/config"
)

type Ledger interface {
	// RecordFailure adds one failed attempt for key and returns the total.
	RecordFailure(ctx context.Context, key, reason string) (int, error)
	Get(ctx context.Context, key string) (Entry, bool, error)
	Clear(ctx context.Context, key string) error
	Close() error
}

type Entry struct {
	Key         string    `db:"message_key" json:"key"`
	Attempts    int       `db:"attempts" json:"attempts"`
	LastError   string    `db:"last_error" json:"last_error"`
	FirstFailed time.Time `db:"-" json:"first_failed"`
	LastFailed  time.Time `db:"-" json:"last_failed"`
}

// Open picks a backend: Redis when a URL is set, then SQLite when a path
// is set, otherwise a ledger that remembers nothing.
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	switch {
	case cfg.RedisURL != "":
		return NewRedis(ctx, cfg.RedisURL)
	case cfg.Path != "":
		return NewSQLite(cfg.Path)
	default:
		return Nop{}, nil
	}
}

// Nop never counts anything, so failed messages are retried forever.
type Nop struct{}

func (Nop) RecordFailure(context.Context, string, string) (int, error) { return 0, nil }

func (Nop) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

func (Nop) Clear(context.Context, string) error { return nil }

func (Nop) Close() error { return nil }

// Memory keeps counts for the lifetime of the process.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (m *Memory) RecordFailure(_ context.Context, key, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok {
		e = Entry{Key: key, FirstFailed: now}
	}
	e.Attempts++
	e.LastError = reason
	e.LastFailed = now
	m.entries[key] = e
	return e.Attempts, nil
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error { return nil }
