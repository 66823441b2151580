package policy

import "fmt"

// IDMode selects which of a node's two identifiers a consuming edge's match
// field is compared against.
type IDMode int

const (
	// ModeDummy matches on the hashed, possibly-colliding dummy id
	// (counter mod M). Collisions widen the accepted language by design.
	ModeDummy IDMode = 0
	// ModeUnique matches on the sequential, injective unique id.
	ModeUnique IDMode = 1
)

// String renders the mode the way the wire artifact spells it.
func (m IDMode) String() string {
	if m == ModeUnique {
		return "unique"
	}
	return "dummy"
}

// ParseIDMode parses the artifact's "dummy"/"unique" idMode string.
func ParseIDMode(s string) (IDMode, error) {
	switch s {
	case "unique":
		return ModeUnique, nil
	case "dummy", "":
		return ModeDummy, nil
	default:
		return 0, fmt.Errorf("%w: unknown idMode %q", ErrInvalid, s)
	}
}

// EpsilonLabel is the canonical epsilon marker emitted on the wire, U+03F5.
const EpsilonLabel = "ϵ"

// EpsilonLabelASCII is the ASCII alias the parser must also accept (§6.1).
const EpsilonLabelASCII = "epsilon"

// IsEpsilonLabel reports whether label names the epsilon transition under
// either accepted spelling.
func IsEpsilonLabel(label string) bool {
	return label == EpsilonLabel || label == EpsilonLabelASCII
}

// MaxModulus is the largest legal identifier modulus, 2^31 (§3 invariants).
const MaxModulus = 1 << 31

// MaxEdges is the largest legal edge count for a single function
// automaton, 2^20 (§3 invariants).
const MaxEdges = 1 << 20

// Site describes one library-call instruction in the source program (§3).
type Site struct {
	// Name is the callee's pretty name, used only for diagnostics.
	Name string
	// UniqueID is the sequential, injective (within-function) id, >= 1.
	UniqueID int
	// DummyID is the hashed id: counter mod M.
	DummyID int
	// ResetCount is counter div M; diagnostic only.
	ResetCount int
	// Location is a source location label (e.g. "line 42").
	Location string
}

// Node is one NFA state, corresponding 1:1 to a call site (§3).
type Node struct {
	// Label is the site's pretty callee name.
	Label string
	// DummyID and UniqueID are both carried regardless of the function's
	// chosen IDMode, so a loader can pick either at load time.
	DummyID  int
	UniqueID int
}

// Edge is a directed, labeled NFA transition (§3).
//
// A consuming edge represents "site A may be immediately followed by site
// B within the same basic block" and matches an observed identifier equal
// to MatchID. An epsilon edge represents inter-basic-block successorship,
// matches no observation, and carries MatchID == -1.
type Edge struct {
	Src       int
	Dst       int
	Label     string // callee name, or the epsilon marker
	IsEpsilon bool
	// MatchDummy and MatchUnique are both carried on the wire so a loader
	// can pick the field appropriate to the chosen IDMode without
	// re-deriving it from the node table. Both are -1 on epsilon edges.
	MatchDummy  int
	MatchUnique int
}

// MatchID returns the match identifier appropriate to mode.
func (e Edge) MatchID(mode IDMode) int {
	if mode == ModeUnique {
		return e.MatchUnique
	}
	return e.MatchDummy
}

// FunctionAutomaton is the tuple (nodes, edges, id_mode) for one function
// (§3). It carries no explicit start-node field: the engine derives the
// start set from consuming in-degree.
type FunctionAutomaton struct {
	FunctionName string
	Modulus      int
	Mode         IDMode
	CallsInOrder []Site // diagnostic only, not consulted by the engine
	Nodes        []Node
	Edges        []Edge
}

// Validate checks the invariants of §3: dense node indices, a legal
// modulus, a legal edge count, and non-negative match ids on every
// consuming edge.
func (f *FunctionAutomaton) Validate() error {
	if f.Modulus < 1 || f.Modulus > MaxModulus {
		return fmt.Errorf("%w: modulus %d out of [1, %d]", ErrInvalid, f.Modulus, MaxModulus)
	}
	if len(f.Nodes) == 0 {
		// A function with no library calls is legal (§4.1 edge cases);
		// it simply has zero nodes and zero edges.
		if len(f.Edges) != 0 {
			return fmt.Errorf("%w: zero nodes but %d edges", ErrInvalid, len(f.Edges))
		}
		return nil
	}
	if len(f.Edges) > MaxEdges {
		return fmt.Errorf("%w: %d edges exceeds max %d", ErrInvalid, len(f.Edges), MaxEdges)
	}
	n := len(f.Nodes)
	for i, e := range f.Edges {
		if e.Src < 0 || e.Src >= n || e.Dst < 0 || e.Dst >= n {
			return fmt.Errorf("%w: edge %d references node outside [0, %d)", ErrInvalid, i, n)
		}
		if !e.IsEpsilon && e.MatchID(f.Mode) < 0 {
			return fmt.Errorf("%w: non-epsilon edge %d has negative match id", ErrInvalid, i)
		}
	}
	return nil
}
