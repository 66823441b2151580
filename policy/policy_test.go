package policy

import (
	"errors"
	"testing"
)

// linearFunction builds the "Linear path" scenario from spec.md §8:
// three sites A->B->C in one block, dummy mode, M=200.
func linearFunction() FunctionAutomaton {
	return FunctionAutomaton{
		FunctionName: "linear",
		Modulus:      200,
		Mode:         ModeDummy,
		Nodes: []Node{
			{Label: "A", DummyID: 0, UniqueID: 1},
			{Label: "B", DummyID: 1, UniqueID: 2},
			{Label: "C", DummyID: 2, UniqueID: 3},
		},
		Edges: []Edge{
			{Src: 0, Dst: 1, Label: "A", MatchDummy: 0, MatchUnique: 1},
			{Src: 1, Dst: 2, Label: "B", MatchDummy: 1, MatchUnique: 2},
		},
	}
}

func TestFunctionAutomaton_Validate_OK(t *testing.T) {
	f := linearFunction()
	if err := f.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFunctionAutomaton_Validate_EdgeOutOfRange(t *testing.T) {
	f := linearFunction()
	f.Edges[0].Dst = 99
	if err := f.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestFunctionAutomaton_Validate_NegativeMatchID(t *testing.T) {
	f := linearFunction()
	f.Edges[0].MatchDummy = -1
	if err := f.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestFunctionAutomaton_Validate_ZeroNodesLegal(t *testing.T) {
	f := FunctionAutomaton{FunctionName: "empty", Modulus: 200, Mode: ModeDummy}
	if err := f.Validate(); err != nil {
		t.Fatalf("zero-call function should validate, got %v", err)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	art := &Artifact{Functions: []FunctionAutomaton{linearFunction()}}
	data, err := art.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ParseArtifact(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got.Functions) != 1 {
		t.Fatalf("want 1 function, got %d", len(got.Functions))
	}
	gf := got.Functions[0]
	if gf.FunctionName != "linear" || gf.Modulus != 200 || gf.Mode != ModeDummy {
		t.Fatalf("round-trip mismatch: %+v", gf)
	}
	if len(gf.Nodes) != 3 || len(gf.Edges) != 2 {
		t.Fatalf("round-trip node/edge count mismatch: %+v", gf)
	}
	for i, e := range gf.Edges {
		want := art.Functions[0].Edges[i]
		if e.Src != want.Src || e.Dst != want.Dst || e.IsEpsilon != want.IsEpsilon {
			t.Fatalf("edge %d mismatch: got %+v want %+v", i, e, want)
		}
		if e.MatchID(ModeDummy) != want.MatchID(ModeDummy) {
			t.Fatalf("edge %d match id mismatch under dummy mode", i)
		}
	}
}

func TestParseArtifact_ToleratesWhitespaceAndOrdering(t *testing.T) {
	// Same content as the canonical form but with keys reordered and
	// extra whitespace injected (§4.2 robustness requirement).
	data := []byte(`
	{
	  "functions"   :   [
	    {
	      "idMode": "dummy",
	      "mod": 200,
	      "functionName": "linear",
	      "edges": [
	        {"matchUnique":1, "matchDummy":0, "dst":1,  "src":0, "label":"A"},
	        {"src":1,"dst":2,"label":"epsilon","matchDummy":-1,"matchUnique":-1}
	      ],
	      "nodeLabels": ["A","B","C"],
	      "nodeDummyIDs": [0,1,2],
	      "nodeUniqueIDs": [1,2,3],
	      "callsInOrder": []
	    }
	  ]
	}`)
	art, err := ParseArtifact(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(art.Functions) != 1 {
		t.Fatalf("want 1 function, got %d", len(art.Functions))
	}
	f := art.Functions[0]
	if !f.Edges[1].IsEpsilon {
		t.Fatalf("ASCII \"epsilon\" alias not recognized")
	}
}

func TestParseArtifact_RejectsOutOfRangeEdge(t *testing.T) {
	data := []byte(`{"functions":[{"functionName":"f","mod":200,"idMode":"dummy",
		"nodeLabels":["A"],"nodeDummyIDs":[0],"nodeUniqueIDs":[1],
		"edges":[{"src":0,"dst":5,"label":"A","matchDummy":0,"matchUnique":1}]}]}`)
	if _, err := ParseArtifact(data); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestBlobEncodeDecodeRoundTrip(t *testing.T) {
	b := &Blob{
		PID:      42,
		NumNodes: 3,
		NumEdges: 2,
		IDMode:   ModeDummy,
		Edges: []BlobEdge{
			{Src: 0, Dst: 1, MatchID: 0},
			{Src: 1, Dst: 2, MatchID: -1, IsEpsilon: true},
		},
	}
	data := b.Encode()
	got, err := DecodeBlob(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PID != b.PID || got.NumNodes != b.NumNodes || got.NumEdges != b.NumEdges || got.IDMode != b.IDMode {
		t.Fatalf("header mismatch: got %+v want %+v", got, b)
	}
	for i := range b.Edges {
		if got.Edges[i] != b.Edges[i] {
			t.Fatalf("edge %d mismatch: got %+v want %+v", i, got.Edges[i], b.Edges[i])
		}
	}
}

func TestDecodeBlob_RejectsZeroNodes(t *testing.T) {
	b := &Blob{PID: 1, NumNodes: 0, NumEdges: 0, IDMode: ModeDummy}
	if _, err := DecodeBlob(b.Encode()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestDecodeBlob_RejectsOutOfRangeEdge(t *testing.T) {
	b := &Blob{
		PID: 1, NumNodes: 1, NumEdges: 1, IDMode: ModeDummy,
		Edges: []BlobEdge{{Src: 0, Dst: 5, MatchID: 0}},
	}
	if _, err := DecodeBlob(b.Encode()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestDecodeBlob_RejectsTruncated(t *testing.T) {
	b := &Blob{PID: 1, NumNodes: 1, NumEdges: 1, IDMode: ModeDummy, Edges: []BlobEdge{{Src: 0, Dst: 0}}}
	data := b.Encode()
	if _, err := DecodeBlob(data[:len(data)-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestLoader_Load_PicksModeSpecificMatchID(t *testing.T) {
	art := &Artifact{Functions: []FunctionAutomaton{linearFunction()}}
	var l Loader

	dummyBlob, err := l.Load(art, 0, ModeDummy, 7)
	if err != nil {
		t.Fatalf("load dummy: %v", err)
	}
	if dummyBlob.Edges[0].MatchID != 0 || dummyBlob.Edges[1].MatchID != 1 {
		t.Fatalf("dummy-mode match ids wrong: %+v", dummyBlob.Edges)
	}

	uniqueBlob, err := l.Load(art, 0, ModeUnique, 7)
	if err != nil {
		t.Fatalf("load unique: %v", err)
	}
	if uniqueBlob.Edges[0].MatchID != 1 || uniqueBlob.Edges[1].MatchID != 2 {
		t.Fatalf("unique-mode match ids wrong: %+v", uniqueBlob.Edges)
	}
}

func TestLoader_Load_OutOfRangeIndex(t *testing.T) {
	art := &Artifact{Functions: []FunctionAutomaton{linearFunction()}}
	var l Loader
	if _, err := l.Load(art, 5, ModeDummy, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLoader_Load_ZeroCallFunctionSynthesizesOneNode(t *testing.T) {
	art := &Artifact{Functions: []FunctionAutomaton{{FunctionName: "empty", Modulus: 200, Mode: ModeDummy}}}
	var l Loader
	blob, err := l.Load(art, 0, ModeDummy, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if blob.NumNodes != 1 || blob.NumEdges != 0 {
		t.Fatalf("want 1 node/0 edges, got %+v", blob)
	}
}
