package ir

// Builder provides a small fluent API for constructing a Function by
// hand, used by extract's tests in place of a real compiler frontend.
type Builder struct {
	fn Function
}

// NewBuilder starts building a function named name.
func NewBuilder(name string) *Builder {
	return &Builder{fn: Function{Name: name}}
}

// Block appends a new block with the given ID and returns a *BlockBuilder
// for populating its instructions and successors.
func (b *Builder) Block(id string) *BlockBuilder {
	b.fn.Blocks = append(b.fn.Blocks, Block{ID: id})
	return &BlockBuilder{fn: &b.fn, idx: len(b.fn.Blocks) - 1}
}

// Build returns the constructed Function.
func (b *Builder) Build() Function {
	return b.fn
}

// BlockBuilder populates one block's instructions and successors.
type BlockBuilder struct {
	fn  *Function
	idx int
}

// Call appends a library-call instruction (External=true).
func (bb *BlockBuilder) Call(callee, location string) *BlockBuilder {
	bb.fn.Blocks[bb.idx].Instructions = append(bb.fn.Blocks[bb.idx].Instructions, Instruction{
		Callee:   callee,
		External: true,
		Location: location,
	})
	return bb
}

// LocalCall appends a call to a function defined within the unit
// (External=false), which is never a candidate library call.
func (bb *BlockBuilder) LocalCall(callee, location string) *BlockBuilder {
	bb.fn.Blocks[bb.idx].Instructions = append(bb.fn.Blocks[bb.idx].Instructions, Instruction{
		Callee:   callee,
		External: false,
		Location: location,
	})
	return bb
}

// Successors sets the block's CFG successor IDs.
func (bb *BlockBuilder) Successors(ids ...string) *BlockBuilder {
	bb.fn.Blocks[bb.idx].Successors = ids
	return bb
}

// Build returns the Function under construction, so a function can be
// built in a single chain ending on a block.
func (bb *BlockBuilder) Build() Function {
	return *bb.fn
}
