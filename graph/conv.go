// conv.go implements Conv and ConcatConv (spec §4.4): a 3x3, stride-1,
// pad-1 convolution with an optional fused activation and an optional
// fused 2x2 stride-2 max pool, and its two-source variant that logically
// concatenates its inputs along the channel axis before convolving. The
// convolution accumulates directly rather than going through im2col,
// appropriate for a reference CPU path.
package graph

import (
	"fmt"

	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/tensor"
)

const convKernelSize = 3

// floatSampler is the minimal read surface convExecute needs from its
// input: a real *tensor.Tensor for Conv, or a two-source adapter for an
// unmaterialized ConcatConv (see concatView).
type floatSampler interface {
	Float32At(n, c, h, w int) (float32, error)
}

// Conv is a single-source 3x3 convolution.
type Conv struct {
	baseOp
	src        Op
	activation Activation
	postOp     PostOp

	weight          *tensor.Tensor // [outC, inC, 3, 3], reordered into engine layout at Finalize
	bias            *tensor.Tensor // [outC, 1, 1, 1]
	weightFinalized bool
}

func convOutputChannels(weight *tensor.Tensor) int { return weight.Desc.N }

func newConvDst(srcDst tensor.Desc, weight *tensor.Tensor, postOp PostOp) tensor.Desc {
	d := srcDst.WithChannels(convOutputChannels(weight))
	if postOp == PostOpPool {
		d = d.WithDims(d.H/2, d.W/2)
	}
	return d
}

// AddConv registers a Conv op named name whose weight/bias are looked up as
// name+".weight" and name+".bias" in the graph's constant tensors (spec
// §4.4). src must be a previously added op of this graph.
func (g *Graph) AddConv(name string, src Op, activation Activation, postOp PostOp) (*Conv, error) {
	if err := g.checkCanAdd(src); err != nil {
		return nil, err
	}
	weight, bias, err := g.lookupConvWeights(name, src.Dst().C)
	if err != nil {
		return nil, err
	}
	dst := newConvDst(src.Dst(), weight, postOp)

	op := &Conv{
		baseOp:     baseOp{name: name, dst: dst, sources: []Op{src}},
		src:        src,
		activation: activation,
		postOp:     postOp,
		weight:     weight,
		bias:       bias,
	}
	g.register(op)
	return op, nil
}

func (g *Graph) lookupConvWeights(name string, inC int) (weight, bias *tensor.Tensor, err error) {
	weight, ok := g.Constant(name + ".weight")
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.weight", ErrMissingConstant, name)
	}
	bias, ok = g.Constant(name + ".bias")
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.bias", ErrMissingConstant, name)
	}
	if weight.Desc.C != inC {
		return nil, nil, fmt.Errorf("%w: %s.weight has inC=%d, source has C=%d", ErrChannelMismatch, name, weight.Desc.C, inC)
	}
	if weight.Desc.H != convKernelSize || weight.Desc.W != convKernelSize {
		return nil, nil, fmt.Errorf("graph: %s.weight must be a %dx%d kernel, got %dx%d", name, convKernelSize, convKernelSize, weight.Desc.H, weight.Desc.W)
	}
	if bias.Desc.N != weight.Desc.N {
		return nil, nil, fmt.Errorf("%w: %s.bias has %d entries, weight has %d output channels", ErrChannelMismatch, name, bias.Desc.N, weight.Desc.N)
	}
	return weight, bias, nil
}

func (c *Conv) Support(eng engine.Engine) bool {
	return c.dst.DType == tensor.DTypeF32 || c.dst.DType == tensor.DTypeF16
}

func (c *Conv) WorkAmount() float64 {
	return float64(c.dst.Elements()) * float64(c.src.Dst().C) * convKernelSize * convKernelSize
}

func (c *Conv) Finalize(g *Graph) error {
	if c.weightFinalized {
		return nil
	}
	reordered, err := reorderToEngineLayout(c.weight, g.engine.TensorBlockSize())
	if err != nil {
		return err
	}
	c.weight = g.trackPrivate(reordered)
	c.weightFinalized = true
	return nil
}

func (c *Conv) Execute(eng engine.Engine) error {
	return convExecute(eng, c.src.BoundTensor(), c.src.Dst(), c.bound, c.weight, c.bias, c.activation, c.postOp)
}

// convExecute performs the reference convolution: for each output pixel
// (and, if postOp is Pool, for each of the 2x2 pre-pool positions feeding
// it) accumulate a 3x3xinC dot product, apply bias and activation, and
// (when pooling) keep the max across the four positions.
func convExecute(eng engine.Engine, src floatSampler, srcDesc tensor.Desc, dst, weight, bias *tensor.Tensor, act Activation, postOp PostOp) error {
	outC := dst.Desc.C
	inC := srcDesc.C
	convH, convW := srcDesc.H, srcDesc.W

	var execErr error
	rng := engine.Range{Rows: dst.Desc.H, Cols: dst.Desc.W}
	eng.SubmitKernel2D(rng, func(row, col int) {
		if execErr != nil {
			return
		}
		for oc := 0; oc < outC; oc++ {
			var best float32
			haveBest := false

			positions := [][2]int{{row, col}}
			if postOp == PostOpPool {
				positions = [][2]int{
					{2 * row, 2 * col}, {2 * row, 2*col + 1},
					{2*row + 1, 2 * col}, {2*row + 1, 2*col + 1},
				}
			}

			for _, pos := range positions {
				convRow, convCol := pos[0], pos[1]
				if convRow >= convH || convCol >= convW {
					continue
				}
				sum, err := convAccumulate(src, srcDesc, weight, oc, inC, convRow, convCol)
				if err != nil {
					execErr = err
					return
				}
				b, err := bias.Float32At(oc, 0, 0, 0)
				if err != nil {
					execErr = err
					return
				}
				v := act.apply(sum + b)
				if !haveBest || v > best {
					best = v
					haveBest = true
				}
			}

			if err := dst.SetFloat32At(0, oc, row, col, best); err != nil {
				execErr = err
				return
			}
		}
	})
	return execErr
}

func convAccumulate(src floatSampler, srcDesc tensor.Desc, weight *tensor.Tensor, oc, inC, convRow, convCol int) (float32, error) {
	var sum float32
	for ic := 0; ic < inC; ic++ {
		for kh := 0; kh < convKernelSize; kh++ {
			ih := convRow + kh - 1
			if ih < 0 || ih >= srcDesc.H {
				continue
			}
			for kw := 0; kw < convKernelSize; kw++ {
				iw := convCol + kw - 1
				if iw < 0 || iw >= srcDesc.W {
					continue
				}
				x, err := src.Float32At(0, ic, ih, iw)
				if err != nil {
					return 0, err
				}
				w, err := weight.Float32At(oc, ic, kh, kw)
				if err != nil {
					return 0, err
				}
				sum += x * w
			}
		}
	}
	return sum, nil
}

// ConcatConv logically concatenates two sources along the channel axis and
// convolves the result (spec §4.4). When the two sources have different
// element byte sizes (see Graph.registerConcatConv), they are not colocated
// in the arena, materialized is true, and Finalize builds an explicit
// concatenated private tensor instead of reading src1/src2 independently.
type ConcatConv struct {
	baseOp
	src1, src2 Op
	activation Activation

	weight          *tensor.Tensor
	bias            *tensor.Tensor
	weightFinalized bool

	materialized bool
	concatTensor *tensor.Tensor
}

// AddConcatConv registers a ConcatConv op. src1 and src2 must share H, W
// and this graph; the combined channel count src1.C+src2.C must match
// name+".weight"'s input channel count.
func (g *Graph) AddConcatConv(name string, src1, src2 Op, activation Activation) (*ConcatConv, error) {
	if err := g.checkCanAdd(src1, src2); err != nil {
		return nil, err
	}
	if src1.Dst().H != src2.Dst().H || src1.Dst().W != src2.Dst().W {
		return nil, fmt.Errorf("%w: %s has %dx%d, %s has %dx%d", ErrShapeMismatch, src1.Name(), src1.Dst().H, src1.Dst().W, src2.Name(), src2.Dst().H, src2.Dst().W)
	}
	combinedC := src1.Dst().C + src2.Dst().C
	weight, bias, err := g.lookupConvWeights(name, combinedC)
	if err != nil {
		return nil, err
	}
	dst := newConvDst(src1.Dst().WithChannels(combinedC), weight, PostOpNone)

	op := &ConcatConv{
		baseOp:     baseOp{name: name, dst: dst, sources: []Op{src1, src2}},
		src1:       src1,
		src2:       src2,
		activation: activation,
		weight:     weight,
		bias:       bias,
	}
	g.registerConcatConv(op)
	return op, nil
}

func (c *ConcatConv) Support(eng engine.Engine) bool {
	return c.dst.DType == tensor.DTypeF32 || c.dst.DType == tensor.DTypeF16
}

func (c *ConcatConv) WorkAmount() float64 {
	inC := c.src1.Dst().C + c.src2.Dst().C
	return float64(c.dst.Elements()) * float64(inC) * convKernelSize * convKernelSize
}

func (c *ConcatConv) Finalize(g *Graph) error {
	if c.weightFinalized {
		return nil
	}
	reordered, err := reorderToEngineLayout(c.weight, g.engine.TensorBlockSize())
	if err != nil {
		return err
	}
	c.weight = g.trackPrivate(reordered)

	if c.materialized {
		combined := c.src1.Dst().WithChannels(c.src1.Dst().C + c.src2.Dst().C)
		t := tensor.NewPrivate(combined)
		c.concatTensor = g.trackPrivate(t)
	}
	c.weightFinalized = true
	return nil
}

func (c *ConcatConv) Execute(eng engine.Engine) error {
	src, srcDesc, err := c.concatSource()
	if err != nil {
		return err
	}
	return convExecute(eng, src, srcDesc, c.bound, c.weight, c.bias, c.activation, PostOpNone)
}

// concatSource returns the sampler convExecute should read from: the
// materialized tensor if the sources were not colocated, or a zero-copy adapter reading
// straight through to src1/src2 otherwise.
func (c *ConcatConv) concatSource() (floatSampler, tensor.Desc, error) {
	c1, c2 := c.src1.Dst().C, c.src2.Dst().C
	combined := c.src1.Dst().WithChannels(c1 + c2)

	if !c.materialized {
		return newConcatView(c.src1.BoundTensor(), c.src2.BoundTensor(), c1), combined, nil
	}

	for ch := 0; ch < c1+c2; ch++ {
		from, localCh := c.src1.BoundTensor(), ch
		if ch >= c1 {
			from, localCh = c.src2.BoundTensor(), ch-c1
		}
		for h := 0; h < from.Desc.H; h++ {
			for w := 0; w < from.Desc.W; w++ {
				v, err := from.Float32At(0, localCh, h, w)
				if err != nil {
					return nil, tensor.Desc{}, err
				}
				if err := c.concatTensor.SetFloat32At(0, ch, h, w, v); err != nil {
					return nil, tensor.Desc{}, err
				}
			}
		}
	}
	return c.concatTensor, combined, nil
}

// concatView is a zero-copy read adapter over two channel-disjoint tensors,
// used when the arena successfully colocated them (see
// Graph.AddConcatConv): reading it never copies, only redirects to
// whichever of the two underlying tensors owns the requested channel.
type concatView struct {
	a, b *tensor.Tensor
	aC   int
}

func newConcatView(a, b *tensor.Tensor, aC int) *concatView {
	return &concatView{a: a, b: b, aC: aC}
}

func (v *concatView) Float32At(n, c, h, w int) (float32, error) {
	if c < v.aC {
		return v.a.Float32At(n, c, h, w)
	}
	return v.b.Float32At(n, c-v.aC, h, w)
}
