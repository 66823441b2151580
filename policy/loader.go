package policy

import "fmt"

// Loader turns an Artifact's function record into the compact Blob the
// engine ingests (§4.2). It is free of side effects: a failed Load leaves
// the caller's state untouched.
type Loader struct{}

// Load selects function funcIndex from art, bakes match_id from
// MatchDummy or MatchUnique according to mode, and sets is_epsilon from
// each edge's label. pid is stamped into the resulting blob's header.
//
// Load fails with ErrNotFound for an out-of-range funcIndex and with
// ErrInvalid for any shape violation (missing field, out-of-range node
// reference, negative match id on a non-epsilon edge) without mutating
// any caller-visible state.
func (Loader) Load(art *Artifact, funcIndex int, mode IDMode, pid uint32) (*Blob, error) {
	if art == nil || funcIndex < 0 || funcIndex >= len(art.Functions) {
		return nil, fmt.Errorf("%w: function index %d", ErrNotFound, funcIndex)
	}
	f := art.Functions[funcIndex]
	if err := f.Validate(); err != nil {
		return nil, err
	}

	numNodes := len(f.Nodes)
	if numNodes == 0 {
		// §4.1 treats a zero-call function as a legal, zero-node policy
		// that the engine interprets as "any observation from this
		// process fails." §6.2's header validation separately rejects
		// num_nodes == 0. We reconcile the two by synthesizing a single
		// edgeless node: its consuming in-degree is zero so it becomes
		// the (only) start state, and with no outgoing edges the very
		// first observation finds nothing to match and violates —
		// exactly the behavior §4.1 describes, while keeping every
		// blob header-valid.
		numNodes = 1
	}

	blob := &Blob{
		PID:      pid,
		NumNodes: uint32(numNodes),
		NumEdges: uint32(len(f.Edges)),
		IDMode:   mode,
		Edges:    make([]BlobEdge, len(f.Edges)),
	}
	for i, e := range f.Edges {
		matchID := int32(-1)
		if !e.IsEpsilon {
			matchID = int32(e.MatchID(mode))
			if matchID < 0 {
				return nil, fmt.Errorf("%w: function %q edge %d has negative match id under mode %s", ErrInvalid, f.FunctionName, i, mode)
			}
		}
		blob.Edges[i] = BlobEdge{
			Src:       uint32(e.Src),
			Dst:       uint32(e.Dst),
			MatchID:   matchID,
			IsEpsilon: e.IsEpsilon,
		}
	}
	return blob, nil
}

// LoadByName is a convenience wrapper that resolves funcName to an index.
func (l Loader) LoadByName(art *Artifact, funcName string, mode IDMode, pid uint32) (*Blob, error) {
	for i, f := range art.Functions {
		if f.FunctionName == funcName {
			return l.Load(art, i, mode, pid)
		}
	}
	return nil, fmt.Errorf("%w: function %q", ErrNotFound, funcName)
}
