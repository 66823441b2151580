package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/talfig/libcallsandbox/emit"
	"github.com/talfig/libcallsandbox/policy"
)

// recordingEmitter collects every emitted event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emit.Event
}

func (r *recordingEmitter) Emit(e emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) Flush(context.Context) error { return nil }

func (r *recordingEmitter) hasMsg(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Msg == msg {
			return true
		}
	}
	return false
}

// recordingKiller records every pid it was asked to kill instead of
// actually signaling anything.
type recordingKiller struct {
	mu     sync.Mutex
	killed []uint32
}

func (k *recordingKiller) Kill(pid uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, pid)
	return nil
}

func (k *recordingKiller) wasKilled(pid uint32) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, p := range k.killed {
		if p == pid {
			return true
		}
	}
	return false
}

// linearBlob is spec.md §8's "Linear path" scenario: A->B->C in one
// block, dummy mode, M=200. Observing 0,1 accepts; a third observation
// (of anything) empties the frontier.
func linearBlob(pid uint32) *policy.Blob {
	return &policy.Blob{
		PID:      pid,
		NumNodes: 3,
		NumEdges: 2,
		IDMode:   policy.ModeDummy,
		Edges: []policy.BlobEdge{
			{Src: 0, Dst: 1, MatchID: 0},
			{Src: 1, Dst: 2, MatchID: 1},
		},
	}
}

// branchBlob is spec.md §8's "Branch" scenario: block1 ends in site X,
// successors block2 (site Y) and block3 (site Z), both rejoining at
// block4 (site W). The epsilon edges model cross-block successorship.
func branchBlob(pid uint32) *policy.Blob {
	// nodes: 0=X 1=Y 2=Z 3=W
	return &policy.Blob{
		PID:      pid,
		NumNodes: 4,
		NumEdges: 4,
		IDMode:   policy.ModeDummy,
		Edges: []policy.BlobEdge{
			{Src: 0, Dst: 1, MatchID: -1, IsEpsilon: true},
			{Src: 0, Dst: 2, MatchID: -1, IsEpsilon: true},
			{Src: 1, Dst: 3, MatchID: -1, IsEpsilon: true},
			{Src: 2, Dst: 3, MatchID: -1, IsEpsilon: true},
		},
	}
}

// loopBlob is spec.md §8's "Loop" scenario: P -> Q on call, Q -> P on
// the back edge (epsilon). Observing P (id 0) keeps the frontier at
// {P,Q}; observing Q's id (1) violates, since no consuming edge matches it.
func loopBlob(pid uint32) *policy.Blob {
	return &policy.Blob{
		PID:      pid,
		NumNodes: 2,
		NumEdges: 2,
		IDMode:   policy.ModeDummy,
		Edges: []policy.BlobEdge{
			{Src: 0, Dst: 1, MatchID: 0},
			{Src: 1, Dst: 0, MatchID: -1, IsEpsilon: true},
		},
	}
}

func TestRegistry_LinearPath(t *testing.T) {
	killer := &recordingKiller{}
	em := &recordingEmitter{}
	r := NewRegistry(WithKiller(killer), WithEmitter(em))
	ctx := context.Background()

	if err := r.Load(ctx, 100, linearBlob(100).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	r.Observe(ctx, 100, 0) // A -> B, accepted
	if killer.wasKilled(100) {
		t.Fatalf("killed too early")
	}
	r.Observe(ctx, 100, 1) // B -> C, accepted
	if killer.wasKilled(100) {
		t.Fatalf("killed too early")
	}
	r.Observe(ctx, 100, 0) // C has no outgoing edges: violation
	if !killer.wasKilled(100) {
		t.Fatalf("third observation should have violated and killed pid 100")
	}
	if !em.hasMsg("violation") {
		t.Fatalf("expected a violation event")
	}
}

// TestRegistry_Observe_StaysViolatedAfterKill confirms the automaton
// entry is left in place once a pid violates, per spec.md's "leave the
// entry in place" wording: a failed or delayed kill must not open an
// unsupervised window where the next Observe for the same pid silently
// no-ops.
func TestRegistry_Observe_StaysViolatedAfterKill(t *testing.T) {
	killer := &recordingKiller{}
	em := &recordingEmitter{}
	r := NewRegistry(WithKiller(killer), WithEmitter(em))
	ctx := context.Background()

	if err := r.Load(ctx, 100, linearBlob(100).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	r.Observe(ctx, 100, 0) // A -> B, accepted
	r.Observe(ctx, 100, 1) // B -> C, accepted
	r.Observe(ctx, 100, 0) // C has no outgoing edges: violation
	if !killer.wasKilled(100) {
		t.Fatalf("third observation should have violated and killed pid 100")
	}

	em.mu.Lock()
	em.events = nil
	em.mu.Unlock()

	r.Observe(ctx, 100, 0) // still violating: entry must not have been removed
	if !em.hasMsg("violation") {
		t.Fatalf("a second observation after violation must keep violating, not silently no-op")
	}

	r.mu.Lock()
	_, ok := r.automata[100]
	r.mu.Unlock()
	if !ok {
		t.Fatalf("violated pid's automaton entry must be left in place, not deleted")
	}
}

func TestRegistry_Branch(t *testing.T) {
	killer := &recordingKiller{}
	r := NewRegistry(WithKiller(killer))
	ctx := context.Background()

	if err := r.Load(ctx, 200, branchBlob(200).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	// Every node has zero consuming in-degree, so the start set is
	// {0,1,2,3}, which epsilon closure leaves unchanged. This fixture has
	// no consuming edges at all, so any observation finds no edge to
	// match and violates.
	r.Observe(ctx, 200, 0)
	if !killer.wasKilled(200) {
		t.Fatalf("expected violation: branch fixture has no consuming edges")
	}
}

func TestRegistry_Loop(t *testing.T) {
	killer := &recordingKiller{}
	r := NewRegistry(WithKiller(killer))
	ctx := context.Background()

	if err := r.Load(ctx, 300, loopBlob(300).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	r.Observe(ctx, 300, 0) // P -> Q gives {Q}, which epsilon-closes to {P,Q}
	if killer.wasKilled(300) {
		t.Fatalf("killed too early")
	}
	r.Observe(ctx, 300, 0) // P -> Q again via the same consuming edge from P
	if killer.wasKilled(300) {
		t.Fatalf("loop should tolerate repeated P observations")
	}
}

func TestRegistry_Observe_UnknownPIDIsNoOp(t *testing.T) {
	killer := &recordingKiller{}
	em := &recordingEmitter{}
	r := NewRegistry(WithKiller(killer), WithEmitter(em))
	r.Observe(context.Background(), 9999, 0)
	if killer.wasKilled(9999) {
		t.Fatalf("unregistered pid must never be killed")
	}
	if em.hasMsg("violation") {
		t.Fatalf("unregistered pid must never emit a violation")
	}
}

func TestRegistry_Load_MalformedBlobLeavesRegistryUntouched(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if err := r.Load(ctx, 1, linearBlob(1).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	bad := linearBlob(1).Encode()
	bad[8] = 5 // claim 5 edge records but leave the data sized for 2: truncated
	bad[9] = 0
	bad[10] = 0
	bad[11] = 0
	if err := r.Load(ctx, 1, bad); !errors.Is(err, ErrFault) {
		t.Fatalf("want ErrFault, got %v", err)
	}
	// Original pid 1 automaton must still be intact: observe the first
	// transition and confirm it is still accepted, not wiped.
	killer := &recordingKiller{}
	r.killer = killer
	r.Observe(ctx, 1, 0)
	if killer.wasKilled(1) {
		t.Fatalf("malformed reload must not have touched pid 1's existing policy")
	}
}

func TestRegistry_Load_Replacement(t *testing.T) {
	killer := &recordingKiller{}
	r := NewRegistry(WithKiller(killer))
	ctx := context.Background()

	if err := r.Load(ctx, 5, linearBlob(5).Encode()); err != nil {
		t.Fatalf("load A: %v", err)
	}
	r.Observe(ctx, 5, 0) // advance A's frontier off the start state

	if err := r.Load(ctx, 5, loopBlob(5).Encode()); err != nil {
		t.Fatalf("load B: %v", err)
	}
	// A's frontier was {1}; B's fresh, epsilon-closed start set is {0}.
	// If A's bit 1 survived, B's frontier would read {0,1}.
	r.mu.Lock()
	active := r.automata[5].Frontier.Active()
	r.mu.Unlock()
	if len(active) != 1 || active[0] != 0 {
		t.Fatalf("replacement frontier = %v, want [0]", active)
	}
	// The replacement then behaves exactly as in TestRegistry_Loop: two
	// observations of id 0 are tolerated.
	r.Observe(ctx, 5, 0)
	r.Observe(ctx, 5, 0)
	if killer.wasKilled(5) {
		t.Fatalf("replacement policy must start from its own fresh frontier")
	}
}

func TestRegistry_Unload(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	if err := r.Load(ctx, 1, linearBlob(1).Encode()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := r.Unload(1); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if err := r.Unload(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound on double-unload, got %v", err)
	}
}

func TestRegistry_Load_InvalidHeaderRejected(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	zeroNodes := &policy.Blob{PID: 1, NumNodes: 0, NumEdges: 0, IDMode: policy.ModeDummy}
	if err := r.Load(ctx, 1, zeroNodes.Encode()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

// TestAutomaton_EpsilonCloseIdempotent verifies §8 invariant 4: closing
// twice equals closing once.
func TestAutomaton_EpsilonCloseIdempotent(t *testing.T) {
	blob, err := policy.DecodeBlob(branchBlob(1).Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	a := newAutomatonFromBlob(blob)
	before := append([]int(nil), a.Frontier.Active()...)
	a.EpsilonClose(a.Frontier)
	after := a.Frontier.Active()
	if len(before) != len(after) {
		t.Fatalf("closing an already-closed frontier changed it: %v -> %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("closing an already-closed frontier changed it: %v -> %v", before, after)
		}
	}
}
