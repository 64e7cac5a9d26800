package graph

import (
	"fmt"
	"log/slog"

	"github.com/rgbflow/denoisegraph/arena"
	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/tensor"
)

// defaultAlignment is the byte alignment the arena planner rounds every
// transient allocation up to; 32 bytes covers AVX/NEON-width SIMD access
// without wasting much space on the small tensors this core deals with.
const defaultAlignment = 32

// Graph is the ordered op DAG described in spec §3/§4: ops are added during
// a build phase, planned and bound at Finalize, then executed in
// insertion order by Run. A Graph is single-producer/single-consumer (spec
// §5): one goroutine builds it, one goroutine runs it; there is no
// internal synchronization.
type Graph struct {
	engine    engine.Engine
	alignment int

	ops        []Op
	index      map[Op]int
	deathIndex map[Op]int
	allocs     map[Op]*TensorAlloc
	concatOps  []*ConcatConv

	constTensors map[string]*tensor.Tensor

	scratchBuf              engine.Buffer
	offsets                 map[Op]int
	privateByteSize         int
	scratchByteSize         int
	tensorScratchByteOffset int

	dirty     bool
	finalized bool
	fastMath  bool
}

// NewGraph creates an empty Graph bound to eng. eng is consulted for its
// tensor block size (weight reorder target), scratch requirements, and as
// the kernel-submission target during Run.
func NewGraph(eng engine.Engine) *Graph {
	return &Graph{
		engine:       eng,
		alignment:    defaultAlignment,
		index:        make(map[Op]int),
		deathIndex:   make(map[Op]int),
		allocs:       make(map[Op]*TensorAlloc),
		constTensors: make(map[string]*tensor.Tensor),
		dirty:        true,
	}
}

// SetFastMath toggles whether ops may use lower-precision intermediate
// math where the engine offers it (advisory only; the reference engine
// ignores it).
func (g *Graph) SetFastMath(v bool) { g.fastMath = v }

// SetConstTensor registers a shared constant (weight or bias) under name,
// looked up by Conv/ConcatConv as name+".weight"/".bias".
func (g *Graph) SetConstTensor(name string, t *tensor.Tensor) {
	g.constTensors[name] = t
}

// Constant looks up a previously registered constant tensor.
func (g *Graph) Constant(name string) (*tensor.Tensor, bool) {
	t, ok := g.constTensors[name]
	return t, ok
}

func (g *Graph) checkCanAdd(srcs ...Op) error {
	if g.finalized {
		return ErrGraphFinalized
	}
	for _, s := range srcs {
		if _, ok := g.index[s]; !ok {
			return ErrForeignSource
		}
	}
	return nil
}

// register adds a transient (TensorAlloc-backed) op: used by Conv, Pool,
// Upsample, InputProcess.
func (g *Graph) register(op Op) {
	idx := len(g.ops)
	g.ops = append(g.ops, op)
	g.index[op] = idx
	g.allocs[op] = &TensorAlloc{Desc: op.Dst()}
	g.deathIndex[op] = idx
	g.extendSourceDeaths(op, idx)
	g.dirty = true
}

// registerExternal adds an op with no TensorAlloc (OutputProcess).
func (g *Graph) registerExternal(op Op) {
	idx := len(g.ops)
	g.ops = append(g.ops, op)
	g.index[op] = idx
	g.extendSourceDeaths(op, idx)
	g.dirty = true
}

// registerConcatConv is register plus the colocation bookkeeping spec
// §4.6's concat-source rule needs: per SPEC_FULL.md's resolution of the
// source's mixed-precision Open Question, colocation requires identical
// element byte size between the two sources, and is skipped (falling back
// to a materialized concat at Finalize) otherwise.
func (g *Graph) registerConcatConv(op *ConcatConv) {
	op.materialized = op.src1.Dst().DType.ByteSize() != op.src2.Dst().DType.ByteSize()
	if op.materialized {
		slog.Warn("graph: concat sources have mismatched element size, falling back to materialized concat",
			"op", op.name, "src1ByteSize", op.src1.Dst().DType.ByteSize(), "src2ByteSize", op.src2.Dst().DType.ByteSize())
	}
	g.register(op)
	g.concatOps = append(g.concatOps, op)
}

func (g *Graph) extendSourceDeaths(op Op, idx int) {
	for _, s := range op.Sources() {
		if _, ok := g.allocs[s]; ok {
			g.deathIndex[s] = idx
		}
	}
}

// IsSupported returns true only if every op's Support(engine) is true
// (spec §4.7).
func (g *Graph) IsSupported() bool {
	for _, op := range g.ops {
		if !op.Support(g.engine) {
			return false
		}
	}
	return true
}

// GetWorkAmount returns the sum of every op's WorkAmount.
func (g *Graph) GetWorkAmount() float64 {
	var total float64
	for _, op := range g.ops {
		total += op.WorkAmount()
	}
	return total
}

// GetPrivateByteSize returns the total size of private (non-scratch)
// tensors created so far (reordered weights, materialized concat inputs).
func (g *Graph) GetPrivateByteSize() int { return g.privateByteSize }

func (g *Graph) trackPrivate(t *tensor.Tensor) *tensor.Tensor {
	g.privateByteSize += t.Desc.ByteSize()
	return t
}

// GetScratchByteSize runs the arena planner if the graph is dirty and
// returns the total scratch buffer size needed: reserved engine scratch
// plus the tensor arena (spec §4.7's "[engine-scratch | tensor-arena]"
// layout). Per SPEC_FULL.md's resolution of the source's monotonicity
// Open Question, the returned size never decreases across calls on the
// same (un-Clear()'d) graph.
func (g *Graph) GetScratchByteSize() (int, error) {
	if !g.dirty {
		return g.scratchByteSize, nil
	}

	planner := arena.NewPlanner(g.alignment)
	ids := make(map[Op]arena.AllocationID, len(g.allocs))
	for op, alloc := range g.allocs {
		birth := g.index[op]
		death := g.deathIndex[op]
		id, err := planner.Allocate(alloc.Desc.ByteSize(), birth, death)
		if err != nil {
			return 0, fmt.Errorf("graph: planning %q: %w", op.Name(), err)
		}
		alloc.AllocationID = id
		ids[op] = id
	}
	for _, cc := range g.concatOps {
		if cc.materialized {
			continue
		}
		if err := planner.ColocateWith(ids[cc.src2], ids[cc.src1]); err != nil {
			return 0, fmt.Errorf("graph: colocating %q: %w", cc.Name(), err)
		}
	}

	layout, err := planner.Plan()
	if err != nil {
		return 0, err
	}

	g.offsets = make(map[Op]int, len(ids))
	for op, id := range ids {
		g.offsets[op] = layout.Offsets[id]
	}

	reserved := g.engine.ScratchByteSize()
	g.tensorScratchByteOffset = reserved
	total := reserved + layout.ScratchBytes
	if total > g.scratchByteSize {
		g.scratchByteSize = total
	}
	g.dirty = false
	return g.scratchByteSize, nil
}

// SetScratch assigns the scratch buffer and binds every transient tensor
// as a view over it at its planned offset (spec §4.7).
func (g *Graph) SetScratch(buf engine.Buffer) error {
	size, err := g.GetScratchByteSize()
	if err != nil {
		return err
	}
	if buf.ByteSize() < size {
		return fmt.Errorf("%w: have %d, need %d", ErrScratchTooSmall, buf.ByteSize(), size)
	}
	g.scratchBuf = buf
	for op, alloc := range g.allocs {
		off := g.tensorScratchByteOffset + g.offsets[op]
		t, err := tensor.NewTransient(alloc.Desc, buf, off)
		if err != nil {
			return fmt.Errorf("graph: binding %q: %w", op.Name(), err)
		}
		alloc.BoundTensor = t
		op.SetDst(t)
	}
	return nil
}

// Finalize requires the scratch buffer to be set; it runs every op's
// lazy Finalize hook in insertion order, then marks the graph executable.
// Calling Finalize twice is idempotent: each op's Finalize guards against
// re-reordering already-finalized state (spec §8 invariant 9).
func (g *Graph) Finalize() error {
	if g.scratchBuf == nil {
		return ErrScratchNotSet
	}
	if !g.IsSupported() {
		return ErrUnsupported
	}
	for _, op := range g.ops {
		if err := op.Finalize(g); err != nil {
			return fmt.Errorf("graph: finalizing %q: %w", op.Name(), err)
		}
	}
	g.finalized = true
	return nil
}

// Run executes every op in insertion order, reporting cumulative progress
// before each op and honoring cancellation (spec §5, §8 invariants 7-8):
// if progress.Update returns false before op k, op k and every op after it
// do not execute.
func (g *Graph) Run(progress Progress) error {
	if !g.finalized {
		return ErrNotFinalized
	}
	if progress == nil {
		progress = NoopProgress
	}
	total := g.GetWorkAmount()

	var cumulative float64
	for _, op := range g.ops {
		frac := 0.0
		if total > 0 {
			frac = cumulative / total
		}
		if !progress.Update(frac) {
			return ErrCancelled
		}
		if err := op.Execute(g.engine); err != nil {
			return fmt.Errorf("graph: executing %q: %w", op.Name(), err)
		}
		cumulative += op.WorkAmount()
	}
	progress.Update(1.0)
	return nil
}

// Clear drops every op, allocation and lazy finalizer and returns the
// graph to a fresh, unfinalized state (spec §4.7). Constant tensors are
// retained since spec §3 models them as shared, reference-counted across
// graphs rather than owned by one.
func (g *Graph) Clear() {
	g.ops = nil
	g.index = make(map[Op]int)
	g.deathIndex = make(map[Op]int)
	g.allocs = make(map[Op]*TensorAlloc)
	g.concatOps = nil
	g.offsets = nil
	g.scratchBuf = nil
	g.privateByteSize = 0
	g.scratchByteSize = 0
	g.tensorScratchByteOffset = 0
	g.dirty = true
	g.finalized = false
}
