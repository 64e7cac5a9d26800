// Package graph implements the operation graph described in spec §4: a
// build phase where Conv/ConcatConv/Pool/Upsample/InputProcess/
// OutputProcess nodes are added in topological (insertion) order, a
// finalize phase that plans scratch memory and binds tensors, and a run
// phase that executes every op in order while reporting progress.
package graph

import (
	"github.com/rgbflow/denoisegraph/arena"
	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/tensor"
)

// Op is a node in the graph, per spec §4.1. Concrete ops (Conv, Pool,
// Upsample, InputProcess, OutputProcess, ConcatConv) embed baseOp and
// implement Support/WorkAmount/Finalize/Execute.
type Op interface {
	Name() string
	Dst() tensor.Desc
	SetDst(t *tensor.Tensor)
	BoundTensor() *tensor.Tensor
	Sources() []Op

	Support(eng engine.Engine) bool
	WorkAmount() float64
	Finalize(g *Graph) error
	Execute(eng engine.Engine) error

	// external reports whether this op writes to an Image rather than a
	// transient tensor (true only for OutputProcess); such ops get no
	// TensorAlloc.
	external() bool
}

// TensorAlloc is the per-op bookkeeping record the arena planner consumes,
// per spec §3. AllocationID is set once GetScratchByteSize has run the
// planner; BoundTensor is set once SetScratch has bound the op's view.
type TensorAlloc struct {
	Desc         tensor.Desc
	AllocationID arena.AllocationID
	BoundTensor  *tensor.Tensor
}

// baseOp carries the fields and trivial method bodies common to every op
// variant.
type baseOp struct {
	name    string
	dst     tensor.Desc
	bound   *tensor.Tensor
	sources []Op
}

func (b *baseOp) Name() string                { return b.name }
func (b *baseOp) Dst() tensor.Desc            { return b.dst }
func (b *baseOp) SetDst(t *tensor.Tensor)     { b.bound = t }
func (b *baseOp) BoundTensor() *tensor.Tensor { return b.bound }
func (b *baseOp) Sources() []Op               { return b.sources }
func (b *baseOp) external() bool              { return false }
