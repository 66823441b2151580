package policy

import (
	"encoding/binary"
	"fmt"
)

// headerSize and edgeRecordSize mirror §6.2's packed, little-endian wire
// layout exactly, inherited from kernel-module/libcallsandbox.c's
// struct policy_blob / struct edge.
const (
	headerSize     = 16 // u32 pid, u32 num_nodes, u32 num_edges, u32 id_mode
	edgeRecordSize = 13 // u32 src, u32 dst, i32 match_id, u8 is_epsilon
)

// BlobEdge is one packed edge record in a Blob (§6.2).
type BlobEdge struct {
	Src       uint32
	Dst       uint32
	MatchID   int32
	IsEpsilon bool
}

// Blob is the compact binary policy handed from the loader to the engine
// (§6.2).
type Blob struct {
	PID       uint32
	NumNodes  uint32
	NumEdges  uint32
	IDMode    IDMode
	Edges     []BlobEdge
}

// Encode packs the blob into its wire representation.
func (b *Blob) Encode() []byte {
	out := make([]byte, headerSize+len(b.Edges)*edgeRecordSize)
	binary.LittleEndian.PutUint32(out[0:4], b.PID)
	binary.LittleEndian.PutUint32(out[4:8], b.NumNodes)
	binary.LittleEndian.PutUint32(out[8:12], b.NumEdges)
	binary.LittleEndian.PutUint32(out[12:16], uint32(b.IDMode))
	off := headerSize
	for _, e := range b.Edges {
		binary.LittleEndian.PutUint32(out[off:off+4], e.Src)
		binary.LittleEndian.PutUint32(out[off+4:off+8], e.Dst)
		binary.LittleEndian.PutUint32(out[off+8:off+12], uint32(e.MatchID))
		if e.IsEpsilon {
			out[off+12] = 1
		}
		off += edgeRecordSize
	}
	return out
}

// DecodeBlob unpacks a wire blob, validating the header and every edge
// per §6.2: num_nodes != 0, num_edges <= 2^20, every src/dst < num_nodes,
// no non-epsilon edge with a negative match id.
func DecodeBlob(data []byte) (*Blob, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, headerSize, len(data))
	}
	b := &Blob{
		PID:      binary.LittleEndian.Uint32(data[0:4]),
		NumNodes: binary.LittleEndian.Uint32(data[4:8]),
		NumEdges: binary.LittleEndian.Uint32(data[8:12]),
		IDMode:   IDMode(binary.LittleEndian.Uint32(data[12:16])),
	}
	if b.NumNodes == 0 {
		return nil, fmt.Errorf("%w: num_nodes must be >= 1", ErrInvalid)
	}
	if b.NumEdges > MaxEdges {
		return nil, fmt.Errorf("%w: num_edges %d exceeds max %d", ErrInvalid, b.NumEdges, MaxEdges)
	}
	need := headerSize + int(b.NumEdges)*edgeRecordSize
	if len(data) < need {
		return nil, fmt.Errorf("%w: blob declares %d edges but has only %d bytes", ErrTruncated, b.NumEdges, len(data))
	}

	b.Edges = make([]BlobEdge, b.NumEdges)
	off := headerSize
	for i := range b.Edges {
		src := binary.LittleEndian.Uint32(data[off : off+4])
		dst := binary.LittleEndian.Uint32(data[off+4 : off+8])
		matchID := int32(binary.LittleEndian.Uint32(data[off+8 : off+12]))
		isEps := data[off+12] != 0
		if src >= b.NumNodes || dst >= b.NumNodes {
			return nil, fmt.Errorf("%w: edge %d references node beyond num_nodes=%d", ErrInvalid, i, b.NumNodes)
		}
		if !isEps && matchID < 0 {
			return nil, fmt.Errorf("%w: non-epsilon edge %d has negative match id", ErrInvalid, i)
		}
		b.Edges[i] = BlobEdge{Src: src, Dst: dst, MatchID: matchID, IsEpsilon: isEps}
		off += edgeRecordSize
	}
	return b, nil
}
