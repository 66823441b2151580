package policy

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Artifact is the aggregated, human-inspectable document produced by the
// extractor and consumed by the loader (§6.1): one top-level list of
// function records.
type Artifact struct {
	Functions []FunctionAutomaton
}

// wireSite, wireEdge and wireFunction mirror the exact field names and
// casing of §6.1's JSON shape. They exist only at the marshal/unmarshal
// boundary; callers work with FunctionAutomaton/Site/Edge/Node.
type wireSite struct {
	Name       string `json:"name"`
	UniqueID   int    `json:"uniqueID"`
	DummyID    int    `json:"dummyID"`
	ResetCount int    `json:"resetCount"`
	IRLocation string `json:"irLocation"`
}

type wireEdge struct {
	Src         int    `json:"src"`
	Dst         int    `json:"dst"`
	Label       string `json:"label"`
	MatchDummy  int    `json:"matchDummy"`
	MatchUnique int    `json:"matchUnique"`
}

type wireFunction struct {
	FunctionName  string     `json:"functionName"`
	Mod           int        `json:"mod"`
	IDMode        string     `json:"idMode"`
	CallsInOrder  []wireSite `json:"callsInOrder"`
	NodeLabels    []string   `json:"nodeLabels"`
	NodeDummyIDs  []int      `json:"nodeDummyIDs"`
	NodeUniqueIDs []int      `json:"nodeUniqueIDs"`
	Edges         []wireEdge `json:"edges"`
}

type wireArtifact struct {
	Functions []wireFunction `json:"functions"`
}

// Marshal renders the artifact as the canonical textual document (§6.1).
// Node ordering, identifier assignment, and edge ordering are emitted in
// the order already present in the FunctionAutomaton slices (the
// extractor is responsible for determinism; Marshal does not reorder).
func (a *Artifact) Marshal() ([]byte, error) {
	wa := wireArtifact{Functions: make([]wireFunction, len(a.Functions))}
	for i, f := range a.Functions {
		wf := wireFunction{
			FunctionName:  f.FunctionName,
			Mod:           f.Modulus,
			IDMode:        f.Mode.String(),
			NodeLabels:    make([]string, len(f.Nodes)),
			NodeDummyIDs:  make([]int, len(f.Nodes)),
			NodeUniqueIDs: make([]int, len(f.Nodes)),
			Edges:         make([]wireEdge, len(f.Edges)),
		}
		for _, c := range f.CallsInOrder {
			wf.CallsInOrder = append(wf.CallsInOrder, wireSite{
				Name:       c.Name,
				UniqueID:   c.UniqueID,
				DummyID:    c.DummyID,
				ResetCount: c.ResetCount,
				IRLocation: c.Location,
			})
		}
		for j, n := range f.Nodes {
			wf.NodeLabels[j] = n.Label
			wf.NodeDummyIDs[j] = n.DummyID
			wf.NodeUniqueIDs[j] = n.UniqueID
		}
		for j, e := range f.Edges {
			label := e.Label
			if e.IsEpsilon {
				label = EpsilonLabel
			}
			wf.Edges[j] = wireEdge{
				Src:         e.Src,
				Dst:         e.Dst,
				Label:       label,
				MatchDummy:  e.MatchDummy,
				MatchUnique: e.MatchUnique,
			}
		}
		wa.Functions[i] = wf
	}
	return json.MarshalIndent(&wa, "", "  ")
}

// ParseArtifact parses the textual artifact document (§6.1). It tolerates
// whitespace and key-order variation (§4.2's robustness requirement) by
// reading through gjson rather than a strict struct decode, and accepts
// both spellings of the epsilon marker.
func ParseArtifact(data []byte) (*Artifact, error) {
	root := gjson.ParseBytes(data)
	if !root.Exists() {
		return nil, fmt.Errorf("%w: empty or unparseable document", ErrInvalid)
	}
	fns := root.Get("functions")
	if !fns.Exists() || !fns.IsArray() {
		return nil, fmt.Errorf("%w: missing \"functions\" array", ErrInvalid)
	}

	var art Artifact
	var outerErr error
	fns.ForEach(func(_, fn gjson.Result) bool {
		f, err := parseFunction(fn)
		if err != nil {
			outerErr = err
			return false
		}
		art.Functions = append(art.Functions, f)
		return true
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return &art, nil
}

func parseFunction(fn gjson.Result) (FunctionAutomaton, error) {
	var f FunctionAutomaton

	name := fn.Get("functionName")
	if !name.Exists() {
		return f, fmt.Errorf("%w: function record missing functionName", ErrInvalid)
	}
	f.FunctionName = name.String()

	modR := fn.Get("mod")
	if !modR.Exists() {
		return f, fmt.Errorf("%w: function %q missing mod", ErrInvalid, f.FunctionName)
	}
	f.Modulus = int(modR.Int())

	mode, err := ParseIDMode(fn.Get("idMode").String())
	if err != nil {
		return f, err
	}
	f.Mode = mode

	fn.Get("callsInOrder").ForEach(func(_, c gjson.Result) bool {
		f.CallsInOrder = append(f.CallsInOrder, Site{
			Name:       c.Get("name").String(),
			UniqueID:   int(c.Get("uniqueID").Int()),
			DummyID:    int(c.Get("dummyID").Int()),
			ResetCount: int(c.Get("resetCount").Int()),
			Location:   c.Get("irLocation").String(),
		})
		return true
	})

	labels := fn.Get("nodeLabels")
	dummyIDs := fn.Get("nodeDummyIDs")
	uniqueIDs := fn.Get("nodeUniqueIDs")
	if !labels.IsArray() || !dummyIDs.IsArray() || !uniqueIDs.IsArray() {
		return f, fmt.Errorf("%w: function %q missing node arrays", ErrInvalid, f.FunctionName)
	}
	labelsArr := labels.Array()
	dummyArr := dummyIDs.Array()
	uniqueArr := uniqueIDs.Array()
	if len(labelsArr) != len(dummyArr) || len(labelsArr) != len(uniqueArr) {
		return f, fmt.Errorf("%w: function %q node arrays have mismatched lengths", ErrInvalid, f.FunctionName)
	}
	f.Nodes = make([]Node, len(labelsArr))
	for i := range labelsArr {
		f.Nodes[i] = Node{
			Label:    labelsArr[i].String(),
			DummyID:  int(dummyArr[i].Int()),
			UniqueID: int(uniqueArr[i].Int()),
		}
	}

	numNodes := len(f.Nodes)
	edgesR := fn.Get("edges")
	if !edgesR.IsArray() {
		return f, fmt.Errorf("%w: function %q missing edges array", ErrInvalid, f.FunctionName)
	}
	var edgeErr error
	edgesR.ForEach(func(_, e gjson.Result) bool {
		srcR, dstR := e.Get("src"), e.Get("dst")
		if !srcR.Exists() || !dstR.Exists() {
			edgeErr = fmt.Errorf("%w: function %q edge missing src/dst", ErrInvalid, f.FunctionName)
			return false
		}
		src, dst := int(srcR.Int()), int(dstR.Int())
		if src < 0 || src >= numNodes || dst < 0 || dst >= numNodes {
			edgeErr = fmt.Errorf("%w: function %q edge references node beyond %d nodes", ErrInvalid, f.FunctionName, numNodes)
			return false
		}
		label := e.Get("label").String()
		isEps := IsEpsilonLabel(label)
		matchDummy := int(e.Get("matchDummy").Int())
		matchUnique := int(e.Get("matchUnique").Int())
		if !isEps && (matchDummy < 0 || matchUnique < 0) {
			edgeErr = fmt.Errorf("%w: function %q non-epsilon edge has negative match id", ErrInvalid, f.FunctionName)
			return false
		}
		f.Edges = append(f.Edges, Edge{
			Src:         src,
			Dst:         dst,
			Label:       label,
			IsEpsilon:   isEps,
			MatchDummy:  matchDummy,
			MatchUnique: matchUnique,
		})
		return true
	})
	if edgeErr != nil {
		return f, edgeErr
	}

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}
