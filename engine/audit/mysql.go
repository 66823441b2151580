package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLTrail is a MySQL/MariaDB-backed Trail, for sandboxd deployments
// that centralize audit logs from multiple hosts into one database.
type MySQLTrail struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLTrail opens a connection using dsn (see
// github.com/go-sql-driver/mysql's DSN format) and ensures its schema
// exists.
func NewMySQLTrail(dsn string) (*MySQLTrail, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	schema := `
		CREATE TABLE IF NOT EXISTS sandbox_audit (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			pid BIGINT UNSIGNED NOT NULL,
			msg VARCHAR(64) NOT NULL,
			observed_id INT NOT NULL,
			meta JSON NOT NULL,
			recorded_at TIMESTAMP(6) NOT NULL,
			INDEX idx_sandbox_audit_pid (pid)
		) ENGINE=InnoDB
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &MySQLTrail{db: db}, nil
}

// Append inserts rec.
func (t *MySQLTrail) Append(ctx context.Context, rec Record) error {
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
		rec.PID, rec.Msg, rec.ObservedID, string(metaJSON), rec.Time,
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// ForPID returns pid's records ordered by insertion (oldest first).
func (t *MySQLTrail) ForPID(ctx context.Context, pid uint32) ([]Record, error) {
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
		var metaJSON string
		if err := rows.Scan(&rec.PID, &rec.Msg, &rec.ObservedID, &metaJSON, &rec.Time); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
			return nil, fmt.Errorf("audit: unmarshal meta: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying connection pool. Double-Close is a no-op.
func (t *MySQLTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.db.Close()
}
