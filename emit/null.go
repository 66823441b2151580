package emit

import "context"

// NullEmitter discards every event. Used as the engine's default so
// observability is opt-in, mirroring graph/emit.NullEmitter.
type NullEmitter struct{}

// NewNullEmitter returns a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards event.
func (NullEmitter) Emit(Event) {}

// Flush is always a no-op success.
func (NullEmitter) Flush(context.Context) error { return nil }
