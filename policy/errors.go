// Package policy defines the call-site automaton data model, its textual
// wire artifact, its packed binary blob, and the loader that translates
// between the two.
package policy

import "errors"

// ErrInvalid is returned when a policy artifact or blob violates one of the
// shape invariants in §3: dense node indices, non-negative match ids on
// consuming edges, num_nodes >= 1, num_edges <= 2^20, or a modulus outside
// [1, 2^31].
var ErrInvalid = errors.New("policy: invalid shape")

// ErrTruncated is returned when a binary blob is shorter than its declared
// header or edge count implies.
var ErrTruncated = errors.New("policy: truncated blob")

// ErrNotFound is returned when a function index or name is requested from
// an artifact that does not contain it.
var ErrNotFound = errors.New("policy: function not found")
