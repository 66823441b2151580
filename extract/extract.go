// Package extract builds a per-function NFA over library-call sites from
// an ir.Unit, per spec.md §4.1. It is the sole producer of policy
// artifacts: the wire format and engine are downstream consumers.
package extract

import (
	"fmt"

	"github.com/talfig/libcallsandbox/ir"
	"github.com/talfig/libcallsandbox/policy"
)

// Options configures one extraction pass.
type Options struct {
	// Modulus is M, the dummy-id hashing modulus. Must satisfy
	// 1 <= Modulus <= policy.MaxModulus.
	Modulus int
	// Mode selects which identifier is baked into the notify
	// instrumentation's argument (§4.1 step 5).
	Mode policy.IDMode
}

// siteRecord is the extractor's bookkeeping for one site during a single
// function pass: the node index it was assigned plus its two identifiers.
type siteRecord struct {
	nodeIdx    int
	uniqueID   int
	dummyID    int
	resetCount int
}

// Function runs the per-function procedure of §4.1 over fn and returns
// its FunctionAutomaton plus the instrumentation Plan a codegen backend
// would apply. Re-running Function on an identical ir.Function yields a
// byte-identical FunctionAutomaton (§4.1 "Determinism").
func Function(fn ir.Function, opts Options) (policy.FunctionAutomaton, Plan, error) {
	if opts.Modulus < 1 || opts.Modulus > policy.MaxModulus {
		return policy.FunctionAutomaton{}, Plan{}, fmt.Errorf("%w: modulus %d out of [1, %d]", policy.ErrInvalid, opts.Modulus, policy.MaxModulus)
	}

	f := policy.FunctionAutomaton{
		FunctionName: fn.Name,
		Modulus:      opts.Modulus,
		Mode:         opts.Mode,
	}
	var plan Plan

	// Step 1: site enumeration. Walk blocks in iteration order; within
	// each block walk instructions in order; collect candidate calls and
	// assign each a fresh node index. Also record each block's entry and
	// exit node for the inter-block pass below.
	type blockSites struct {
		blockID    string
		siteIdxs   []int // indices into the per-function sites slice
		successors []string
	}
	var sites []siteRecord
	var blocks []blockSites

	uniqueCounter := 1 // step 2: u starts at 1
	dummyCounter := 0  // step 2: d starts at 0

	for _, block := range fn.Blocks {
		bs := blockSites{blockID: block.ID, successors: block.Successors}
		for _, instr := range block.Instructions {
			if !instr.IsCandidateLibCall() {
				continue
			}
			nodeIdx := len(f.Nodes)
			f.Nodes = append(f.Nodes, policy.Node{Label: instr.Callee})

			// Step 2: identifier assignment.
			uniqueID := uniqueCounter
			uniqueCounter++
			dummyID := dummyCounter % opts.Modulus
			resetCount := dummyCounter / opts.Modulus
			dummyCounter++

			f.Nodes[nodeIdx].UniqueID = uniqueID
			f.Nodes[nodeIdx].DummyID = dummyID

			f.CallsInOrder = append(f.CallsInOrder, policy.Site{
				Name:       instr.Callee,
				UniqueID:   uniqueID,
				DummyID:    dummyID,
				ResetCount: resetCount,
				Location:   instr.Location,
			})

			rec := siteRecord{nodeIdx: nodeIdx, uniqueID: uniqueID, dummyID: dummyID, resetCount: resetCount}
			sites = append(sites, rec)
			bs.siteIdxs = append(bs.siteIdxs, len(sites)-1)

			notifyArg := dummyID
			if opts.Mode == policy.ModeUnique {
				notifyArg = uniqueID
			}
			plan.Insertions = append(plan.Insertions, Insertion{
				NodeIndex: nodeIdx,
				Location:  instr.Location,
				NotifyArg: notifyArg,
			})
		}
		blocks = append(blocks, bs)
	}

	// Step 3: intra-block consuming edges between consecutive sites.
	for _, bs := range blocks {
		for i := 0; i+1 < len(bs.siteIdxs); i++ {
			a := sites[bs.siteIdxs[i]]
			b := sites[bs.siteIdxs[i+1]]
			matchDummy := a.dummyID
			matchUnique := a.uniqueID
			f.Edges = append(f.Edges, policy.Edge{
				Src:         a.nodeIdx,
				Dst:         b.nodeIdx,
				Label:       f.Nodes[a.nodeIdx].Label,
				MatchDummy:  matchDummy,
				MatchUnique: matchUnique,
			})
		}
	}

	// Step 4: inter-block epsilon edges from a block's exit site to each
	// CFG successor block's entry site, for successors that have sites.
	// Self-loops are intentional and must not be elided (§4.1 edge
	// cases).
	blockByID := make(map[string]blockSites, len(blocks))
	for _, bs := range blocks {
		blockByID[bs.blockID] = bs
	}
	for _, bs := range blocks {
		if len(bs.siteIdxs) == 0 {
			continue
		}
		exitSite := sites[bs.siteIdxs[len(bs.siteIdxs)-1]]
		for _, succID := range bs.successors {
			succ, ok := blockByID[succID]
			if !ok || len(succ.siteIdxs) == 0 {
				continue
			}
			entrySite := sites[succ.siteIdxs[0]]
			f.Edges = append(f.Edges, policy.Edge{
				Src:         exitSite.nodeIdx,
				Dst:         entrySite.nodeIdx,
				Label:       policy.EpsilonLabel,
				IsEpsilon:   true,
				MatchDummy:  -1,
				MatchUnique: -1,
			})
		}
	}

	if err := f.Validate(); err != nil {
		return policy.FunctionAutomaton{}, Plan{}, err
	}
	plan.FunctionName = fn.Name
	return f, plan, nil
}

// Insertion is one instrumentation site: the notify(i32) call a codegen
// backend must insert immediately before the instruction at Location,
// with NotifyArg as its argument (§4.1 step 5). Actually emitting machine
// code is the out-of-scope compiler pass's job (spec.md §1); Plan is the
// artifact this package hands to that stage.
type Insertion struct {
	NodeIndex int
	Location  string
	NotifyArg int
}

// Plan is the per-function instrumentation plan produced alongside a
// FunctionAutomaton.
type Plan struct {
	FunctionName string
	Insertions   []Insertion
}
