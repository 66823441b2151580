package engine

import (
	"errors"

	"github.com/talfig/libcallsandbox/policy"
)

// ErrInvalid re-exports policy.ErrInvalid: a loaded blob's shape
// violates an invariant of §3/§6.2 (§7 error kind "invalid").
var ErrInvalid = policy.ErrInvalid

// ErrOOM is returned when load_policy cannot allocate the new
// automaton's frontier/scratch bitsets (§7 error kind "oom").
var ErrOOM = errors.New("engine: allocation failed while loading policy")

// ErrFault is returned when the supplied blob is truncated or otherwise
// unreadable (§7 error kind "fault").
var ErrFault = errors.New("engine: malformed or truncated policy blob")

// ErrNotFound is returned by Unload for a pid with no loaded policy
// (§7 error kind "not_found"). Observe is, by contrast, a documented
// no-op for an unregistered pid (§4.3) and never returns this error.
var ErrNotFound = errors.New("engine: no policy loaded for pid")
