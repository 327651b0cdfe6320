package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const historyTable = "send_history"

// PostgresStore keeps the send-history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and creates the schema if missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres history: empty DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS send_history (
		key     TEXT PRIMARY KEY,
		title   TEXT NOT NULL DEFAULT '',
		link    TEXT NOT NULL DEFAULT '',
		source  VARCHAR(100) NOT NULL DEFAULT '',
		sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_send_history_sent_at ON send_history(sent_at);
	`
	_, err := ps.db.ExecContext(ctx, schema)
	return err
}

func windowQuery(since time.Time) sq.SelectBuilder {
	return psql.Select("key", "title", "link", "source", "sent_at").
		From(historyTable).
		Where(sq.Gt{"sent_at": since}).
		OrderBy("sent_at")
}

func appendQuery(rec SendRecord) sq.InsertBuilder {
	return psql.Insert(historyTable).
		Columns("key", "title", "link", "source", "sent_at").
		Values(rec.Key, rec.Title, rec.Link, rec.Source, rec.SentAt).
		Suffix("ON CONFLICT (key) DO UPDATE SET sent_at = EXCLUDED.sent_at, title = EXCLUDED.title")
}

func pruneQuery(cutoff time.Time) sq.DeleteBuilder {
	return psql.Delete(historyTable).Where(sq.Lt{"sent_at": cutoff})
}

func (ps *PostgresStore) Window(ctx context.Context, since time.Time) ([]SendRecord, error) {
	query, args, err := windowQuery(since).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SendRecord
	for rows.Next() {
		var r SendRecord
		if err := rows.Scan(&r.Key, &r.Title, &r.Link, &r.Source, &r.SentAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Append upserts so a concurrent duplicate send only refreshes sent_at.
func (ps *PostgresStore) Append(ctx context.Context, rec SendRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("append: empty key")
	}
	query, args, err := appendQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	return nil
}

// Prune removes records sent before cutoff.
func (ps *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := pruneQuery(cutoff).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	return res.RowsAffected()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
