// Package emit provides pluggable observability event emission for the
// enforcement engine, grounded on the pack's graph/emit package but
// re-keyed from a workflow-run vocabulary (RunID/Step/NodeID) to this
// domain's process-supervision vocabulary (PID/ObservedID/Msg).
package emit

import "context"

// Emitter receives structured events from the engine and from
// notifyproto.Server.
//
// Implementations must be non-blocking and safe for concurrent use: the
// engine calls Emit after releasing its registry lock, but on the
// goroutine that called Load, Observe or Unload, so a slow Emitter
// delays that caller.
type Emitter interface {
	// Emit sends a single event. Must not panic.
	Emit(event Event)

	// Flush blocks until any buffered events are delivered, or ctx is
	// done.
	Flush(ctx context.Context) error
}

// Event is one observability record.
type Event struct {
	// PID identifies the supervised process this event concerns. Zero
	// for engine-level events with no single associated process.
	PID uint32

	// Msg names the event, e.g. "policy_loaded", "observed",
	// "violation", "kill_failed", "unloaded", "start_set_fallback",
	// "audit_append_failed".
	Msg string

	// ObservedID is the notify() argument that triggered this event, if
	// applicable (e.g. the offending id on a violation, §7).
	ObservedID int32

	// Meta carries event-specific structured detail.
	Meta map[string]any
}
