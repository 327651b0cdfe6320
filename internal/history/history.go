// Package history persists the send-history: which items were delivered and
// when. A record younger than the time window blocks re-delivery of its key.
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SendRecord is one confirmed delivery.
type SendRecord struct {
	Key    string    `json:"hash"`
	Title  string    `json:"title"`
	Link   string    `json:"link"`
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
}

// Store is the send-history backend. Appends must be safe for concurrent use.
type Store interface {
	// Window returns records sent after since.
	Window(ctx context.Context, since time.Time) ([]SendRecord, error)
	Append(ctx context.Context, rec SendRecord) error
	Close() error
}

// Keys collects the keys of records into a set.
func Keys(records []SendRecord) map[string]struct{} {
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		keys[r.Key] = struct{}{}
	}
	return keys
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend   string // file, sqlite, postgres, memory
	Path      string
	DSN       string
	Retention time.Duration
}

// Open builds the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.Path, opts.Retention)
	case "sqlite":
		return NewSQLiteStore(ctx, opts.Path)
	case "postgres":
		return NewPostgresStore(ctx, opts.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	records []SendRecord
}

func NewMemory(records ...SendRecord) *Memory {
	return &Memory{records: append([]SendRecord(nil), records...)}
}

func (m *Memory) Window(_ context.Context, since time.Time) ([]SendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SendRecord
	for _, r := range m.records {
		if r.SentAt.After(since) {
			out = append(out, r)
		}
	}
	sortBySentAt(out)
	return out, nil
}

func (m *Memory) Append(_ context.Context, rec SendRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("append: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// All returns a copy of every record, in append order.
func (m *Memory) All() []SendRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SendRecord(nil), m.records...)
}

func (m *Memory) Close() error { return nil }

func sortBySentAt(records []SendRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.Before(records[j].SentAt)
	})
}
