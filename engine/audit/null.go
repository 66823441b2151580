package audit

import "context"

// NullTrail discards every record. It is the Registry's default audit
// sink so auditing is opt-in, mirroring emit.NullEmitter.
type NullTrail struct{}

// NewNullTrail returns a NullTrail.
func NewNullTrail() *NullTrail { return &NullTrail{} }

// Append discards rec.
func (NullTrail) Append(context.Context, Record) error { return nil }

// ForPID always returns no records.
func (NullTrail) ForPID(context.Context, uint32) ([]Record, error) { return nil, nil }

// Close is a no-op.
func (NullTrail) Close() error { return nil }
