package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/deusflow/dailyinfo/migrations"
)

// SQLiteStore implements Store backed by a SQLite database. Timestamps are
// stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at dsn and runs pending migrations.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "dailyinfo.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps appends serialized and lets :memory: survive
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Window(ctx context.Context, since time.Time) ([]SendRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, link, source, sent_at FROM send_history
		 WHERE sent_at > ? ORDER BY sent_at`, since.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SendRecord
	for rows.Next() {
		var r SendRecord
		var sentAt int64
		if err := rows.Scan(&r.Key, &r.Title, &r.Link, &r.Source, &sentAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.SentAt = time.Unix(0, sentAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, rec SendRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("append: empty key")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO send_history (key, title, link, source, sent_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET sent_at = excluded.sent_at, title = excluded.title`,
		rec.Key, rec.Title, rec.Link, rec.Source, rec.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// Prune deletes records sent before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM send_history WHERE sent_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
