// Package engine implements the enforcement engine of spec.md §4.3: a
// supervisor that maintains a per-process NFA frontier, advances it on
// each notify(id) observation, and terminates the process on the first
// observation that would empty the frontier.
package engine

import "github.com/talfig/libcallsandbox/policy"

// Automaton is one process's loaded policy: its edge list, epsilon
// closure machinery, and live frontier (§4.3 "State").
type Automaton struct {
	NumNodes int
	NumEdges int
	Mode     policy.IDMode
	Edges    []policy.BlobEdge

	Frontier *Frontier
	scratch  *Frontier // pre-allocated "next" buffer, reused by Observe

	// UsedStartFallback records whether seedStartSet had to fall back to
	// node 0 because every site sat on a consuming-edge cycle (§9 Open
	// Questions). Registry.Load audits this via a start_set_fallback
	// event rather than silently accepting it.
	UsedStartFallback bool
}

// newAutomatonFromBlob builds an Automaton from a validated Blob,
// computes its start set, and epsilon-closes it (§4.3 load_policy).
func newAutomatonFromBlob(b *policy.Blob) *Automaton {
	a := &Automaton{
		NumNodes: int(b.NumNodes),
		NumEdges: int(b.NumEdges),
		Mode:     b.IDMode,
		Edges:    b.Edges,
		Frontier: NewFrontier(int(b.NumNodes)),
		scratch:  NewFrontier(int(b.NumNodes)),
	}
	a.seedStartSet()
	a.EpsilonClose(a.Frontier)
	return a
}

// seedStartSet implements §3/§4.3's start-set heuristic: every node whose
// in-degree in consuming (non-epsilon) edges is zero. If that set would be
// empty — every site lies on a consuming-edge cycle — fall back to node 0
// to preserve forward progress on cyclic CFGs (§4.3, and §9's "Open
// questions" notes this fallback is arbitrary but deliberate).
func (a *Automaton) seedStartSet() {
	indeg := make([]int, a.NumNodes)
	for _, e := range a.Edges {
		if !e.IsEpsilon {
			indeg[e.Dst]++
		}
	}
	any := false
	for n, d := range indeg {
		if d == 0 {
			a.Frontier.Set(n)
			any = true
		}
	}
	if !any {
		a.Frontier.Set(0)
		a.UsedStartFallback = true
	}
}

// EpsilonClose computes the fixed point of fr under every epsilon edge:
// repeatedly scan the edge list; for each epsilon edge (s,d), if s is
// active and d is not, activate d and mark progress; terminate when a
// full scan adds nothing (§4.3 "Epsilon closure algorithm"). Closing
// twice equals closing once (§8 invariant 4): once at the fixed point, a
// second call finds nothing to add.
func (a *Automaton) EpsilonClose(fr *Frontier) {
	for {
		changed := false
		for _, e := range a.Edges {
			if !e.IsEpsilon {
				continue
			}
			if fr.Test(int(e.Src)) && !fr.Test(int(e.Dst)) {
				fr.Set(int(e.Dst))
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// Advance moves the frontier on an observed id: the new frontier is
// derived from the *pre-advance* frontier (never mutated in place), then
// epsilon-closed. It reuses a's pre-allocated scratch buffer so the hot
// path performs no allocation (§5 "Hot-path allocation", §9 design note):
// the allocation-failure-on-advance case §4.3 describes for the naive
// per-call-allocation design cannot occur here, since both buffers are
// sized once at load time (see newAutomatonFromBlob and registry.go's
// ErrOOM handling).
func (a *Automaton) Advance(id int32) {
	next := a.scratch
	next.Clear()
	for _, e := range a.Edges {
		if e.IsEpsilon || e.MatchID != id {
			continue
		}
		if a.Frontier.Test(int(e.Src)) {
			next.Set(int(e.Dst))
		}
	}
	a.Frontier.CopyFrom(next)
	a.EpsilonClose(a.Frontier)
}
