package engine

import "math/bits"

// Frontier is a bitset over [0, numNodes) tracking the NFA states
// currently active for one supervised process (§3 "Frontier").
//
// Backed by a []uint64 word array rather than kernel-module/
// libcallsandbox.c's unsigned long* bitmap, using math/bits-friendly word
// operations; the algorithms it supports (epsilon closure, advance) are
// the same fixed-point/single-scan algorithms as the original.
type Frontier struct {
	numNodes int
	words    []uint64
}

func wordsFor(numNodes int) int {
	return (numNodes + 63) / 64
}

// NewFrontier allocates a zeroed frontier over numNodes states.
func NewFrontier(numNodes int) *Frontier {
	return &Frontier{numNodes: numNodes, words: make([]uint64, wordsFor(numNodes))}
}

// Set activates node idx.
func (fr *Frontier) Set(idx int) {
	fr.words[idx/64] |= 1 << uint(idx%64)
}

// Test reports whether node idx is active.
func (fr *Frontier) Test(idx int) bool {
	return fr.words[idx/64]&(1<<uint(idx%64)) != 0
}

// Clear deactivates every node.
func (fr *Frontier) Clear() {
	for i := range fr.words {
		fr.words[i] = 0
	}
}

// CopyFrom overwrites fr's bits with src's. Both must share numNodes.
func (fr *Frontier) CopyFrom(src *Frontier) {
	copy(fr.words, src.words)
}

// IsEmpty reports whether no node is active.
func (fr *Frontier) IsEmpty() bool {
	for _, w := range fr.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Active returns the sorted indices of every active node. Used for
// diagnostics and tests, never on the hot path.
func (fr *Frontier) Active() []int {
	var out []int
	for wi, w := range fr.words {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			idx := wi*64 + bit
			if idx >= fr.numNodes {
				break
			}
			out = append(out, idx)
			w &= w - 1
		}
	}
	return out
}
