// Package audit persists the enforcement engine's per-pid event stream
// (policy loads, violations, unloads, start-set fallbacks) for after-
// the-fact inspection, mirroring graph/store's persistence layer but
// scoped to a single append-only log rather than step/checkpoint state.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by any Trail operation after Close.
var ErrClosed = errors.New("audit: trail is closed")

// Record is one audited engine event.
type Record struct {
	PID        uint32
	Msg        string
	ObservedID int32
	Meta       map[string]any
	Time       time.Time
}

// Trail persists Records and supports querying a pid's history.
// Implementations must be safe for concurrent use.
type Trail interface {
	// Append persists rec. It must not block the caller on anything
	// slower than a single local write; callers on the engine's hot
	// path treat Append failures as logged, not fatal (§7 "auditing is
	// best-effort").
	Append(ctx context.Context, rec Record) error

	// ForPID returns every record for pid, oldest first.
	ForPID(ctx context.Context, pid uint32) ([]Record, error)

	// Close releases any underlying resources (database handles, open
	// files). Double-Close is a no-op.
	Close() error
}
