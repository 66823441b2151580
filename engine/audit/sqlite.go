package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteTrail is a SQLite-backed Trail, for single-host sandboxd
// deployments that want a durable audit log with zero external
// dependencies.
type SQLiteTrail struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteTrail opens (creating if necessary) a SQLite database at
// path and ensures its schema exists. path may be ":memory:" for tests.
func NewSQLiteTrail(path string) (*SQLiteTrail, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: set busy_timeout: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS sandbox_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pid INTEGER NOT NULL,
			msg TEXT NOT NULL,
			observed_id INTEGER NOT NULL,
			meta TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_sandbox_audit_pid ON sandbox_audit(pid)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create index: %w", err)
	}

	return &SQLiteTrail{db: db}, nil
}

// Append inserts rec.
func (t *SQLiteTrail) Append(ctx context.Context, rec Record) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	t.mu.RUnlock()

	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO sandbox_audit (pid, msg, observed_id, meta, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.PID, rec.Msg, rec.ObservedID, string(metaJSON), rec.Time.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// ForPID returns pid's records ordered by insertion (oldest first).
func (t *SQLiteTrail) ForPID(ctx context.Context, pid uint32) ([]Record, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, ErrClosed
	}
	t.mu.RUnlock()

	rows, err := t.db.QueryContext(ctx,
		`SELECT pid, msg, observed_id, meta, recorded_at FROM sandbox_audit WHERE pid = ? ORDER BY id ASC`, pid)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var metaJSON, recordedAt string
		if err := rows.Scan(&rec.PID, &rec.Msg, &rec.ObservedID, &metaJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
			return nil, fmt.Errorf("audit: unmarshal meta: %w", err)
		}
		rec.Time, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("audit: parse recorded_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database handle. Double-Close is a no-op.
func (t *SQLiteTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.db.Close()
}
