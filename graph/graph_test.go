package graph

import (
	"testing"

	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/imageproc"
	"github.com/rgbflow/denoisegraph/refengine"
	"github.com/rgbflow/denoisegraph/tensor"
	"github.com/rgbflow/denoisegraph/transfer"
)

func makeConvWeight(t *testing.T, outC, inC int) *tensor.Tensor {
	t.Helper()
	desc, err := tensor.NewDesc(outC, inC, convKernelSize, convKernelSize, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		t.Fatal(err)
	}
	w := tensor.NewPrivate(desc)
	for oc := 0; oc < outC; oc++ {
		for ic := 0; ic < inC; ic++ {
			if err := w.SetFloat32At(oc, ic, 1, 1, 1.0/float32(inC)); err != nil {
				t.Fatal(err)
			}
		}
	}
	return w
}

func makeConvBias(t *testing.T, outC int) *tensor.Tensor {
	t.Helper()
	desc, err := tensor.NewDesc(outC, 1, 1, 1, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		t.Fatal(err)
	}
	return tensor.NewPrivate(desc)
}

func addTestConv(t *testing.T, g *Graph, name string, src Op, outC int, act Activation, postOp PostOp) *Conv {
	t.Helper()
	g.SetConstTensor(name+".weight", makeConvWeight(t, outC, src.Dst().C))
	g.SetConstTensor(name+".bias", makeConvBias(t, outC))
	op, err := g.AddConv(name, src, act, postOp)
	if err != nil {
		t.Fatal(err)
	}
	return op
}

func TestS1BuildAndRunUNetShapedGraph(t *testing.T) {
	eng := refengine.New(2)
	g := NewGraph(eng)

	dims, err := tensor.NewDesc(1, 9, 16, 16, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		t.Fatal(err)
	}
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	enc1 := addTestConv(t, g, "enc1", ip, 8, ActivationReLU, PostOpNone)
	pool, err := g.AddPool("pool", enc1)
	if err != nil {
		t.Fatal(err)
	}
	enc2 := addTestConv(t, g, "enc2", pool, 8, ActivationReLU, PostOpNone)
	up, err := g.AddUpsample("up", enc2)
	if err != nil {
		t.Fatal(err)
	}
	dec1 := addTestConv(t, g, "dec1", up, 3, ActivationReLU, PostOpNone)
	out, err := g.AddOutputProcess("out", dec1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}

	if !g.IsSupported() {
		t.Fatal("expected isSupported() == true")
	}
	size, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Fatalf("GetScratchByteSize() = %d, want > 0", size)
	}

	buf, err := eng.NewBuffer(size, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SetScratch(buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}

	// Each row gets a distinct, strictly increasing value so that a lost
	// update from the engine's worker pool (rows racing on a shared
	// buffer) would show up as a row lower than the one above it instead
	// of silently passing a shape-only check. Equal neighbouring rows are
	// expected: the pool/upsample pair makes output rows come in pairs.
	color := imageproc.NewImage(16, 16, 3, imageproc.FormatF32)
	for h := 0; h < 16; h++ {
		rowVal := 0.02 * float32(h+1)
		for w := 0; w < 16; w++ {
			color.Set(h, w, 0, rowVal)
			color.Set(h, w, 1, rowVal)
			color.Set(h, w, 2, rowVal)
		}
	}
	if err := ip.SetInputs(color, nil, nil, imageproc.FullTile(16, 16)); err != nil {
		t.Fatal(err)
	}
	outImg := imageproc.NewImage(16, 16, 3, imageproc.FormatF32)
	out.SetOutput(outImg, imageproc.FullTile(16, 16), true)

	if err := g.Run(NoopProgress); err != nil {
		t.Fatal(err)
	}
	if outImg.H != color.H || outImg.W != color.W {
		t.Fatalf("output image shape %dx%d != input shape %dx%d", outImg.H, outImg.W, color.H, color.W)
	}

	prev := float32(-1)
	for h := 0; h < outImg.H; h++ {
		v, err := outImg.At(h, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if v != v { // NaN
			t.Fatalf("row %d: output is NaN", h)
		}
		if v < prev {
			t.Fatalf("row %d: output %v < previous row's %v; rows racing on a shared tensor would produce exactly this", h, v, prev)
		}
		prev = v
	}
	first, _ := outImg.At(0, 0, 0)
	last, _ := outImg.At(outImg.H-1, 0, 0)
	if first == last {
		t.Fatalf("expected output to vary by row for a row-varying input, got constant %v for all rows", first)
	}
}

func TestS2TileZeroPaddingThroughInputProcess(t *testing.T) {
	eng := refengine.New(1)
	g := NewGraph(eng)
	dims, _ := tensor.NewDesc(1, 9, 16, 16, tensor.DTypeF32, tensor.LayoutCHW)
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	size, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := eng.NewBuffer(size, 0)
	if err := g.SetScratch(buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}

	color := imageproc.NewImage(12, 12, 3, imageproc.FormatF32)
	for h := 0; h < 12; h++ {
		for w := 0; w < 12; w++ {
			for c := 0; c < 3; c++ {
				color.Set(h, w, c, 0.5)
			}
		}
	}
	tile := imageproc.Tile{HDstBegin: 2, WDstBegin: 2, H: 12, W: 12}
	if err := ip.SetInputs(color, nil, nil, tile); err != nil {
		t.Fatal(err)
	}
	if err := g.Run(NoopProgress); err != nil {
		t.Fatal(err)
	}

	dst := ip.BoundTensor()
	for h := 0; h < 16; h++ {
		for w := 0; w < 16; w++ {
			inTile := h >= 2 && h < 14 && w >= 2 && w < 14
			for c := 0; c < 9; c++ {
				v, err := dst.Float32At(0, c, h, w)
				if err != nil {
					t.Fatal(err)
				}
				if !inTile && v != 0 {
					t.Fatalf("pixel (%d,%d,%d) outside tile = %v, want 0", h, w, c, v)
				}
			}
		}
	}
}

func buildSingleConvGraph(t *testing.T) (*Graph, *refengine.Engine) {
	t.Helper()
	eng := refengine.New(2)
	g := NewGraph(eng)
	dims, _ := tensor.NewDesc(1, 3, 8, 8, tensor.DTypeF32, tensor.LayoutCHW)
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	conv := addTestConv(t, g, "c1", ip, 4, ActivationNone, PostOpNone)
	if _, err := g.AddOutputProcess("out", conv, transfer.NewLinear(1), false, false); err != nil {
		t.Fatal(err)
	}
	return g, eng
}

func TestS3ClearAndRebuildYieldsSameScratchSize(t *testing.T) {
	g, _ := buildSingleConvGraph(t)
	size1, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}

	g.Clear()

	dims, _ := tensor.NewDesc(1, 3, 8, 8, tensor.DTypeF32, tensor.LayoutCHW)
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	conv, err := g.AddConv("c1", ip, ActivationNone, PostOpNone)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddOutputProcess("out", conv, transfer.NewLinear(1), false, false); err != nil {
		t.Fatal(err)
	}

	size2, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	if size1 != size2 {
		t.Errorf("rebuilt graph has scratch size %d, want %d", size2, size1)
	}
}

func TestS4ConcatConvColocationAndMaterializedFallbackAgree(t *testing.T) {
	eng := refengine.New(1)

	desc3, _ := tensor.NewDesc(1, 3, 4, 4, tensor.DTypeF32, tensor.LayoutCHW)
	src1 := tensor.NewPrivate(desc3)
	src2 := tensor.NewPrivate(desc3)
	for h := 0; h < 4; h++ {
		for w := 0; w < 4; w++ {
			for c := 0; c < 3; c++ {
				src1.SetFloat32At(0, c, h, w, float32(h+w+c))
				src2.SetFloat32At(0, c, h, w, float32(10+h+w+c))
			}
		}
	}

	colocated := &ConcatConv{materialized: false}
	colocated.src1 = stubOp{dst: desc3, bound: src1}
	colocated.src2 = stubOp{dst: desc3, bound: src2}

	materialized := &ConcatConv{materialized: true}
	materialized.src1 = stubOp{dst: desc3, bound: src1}
	materialized.src2 = stubOp{dst: desc3, bound: src2}
	combined := desc3.WithChannels(6)
	materialized.concatTensor = tensor.NewPrivate(combined)

	sampA, descA, err := colocated.concatSource()
	if err != nil {
		t.Fatal(err)
	}
	sampB, descB, err := materialized.concatSource()
	if err != nil {
		t.Fatal(err)
	}
	if descA != descB {
		t.Fatalf("descriptors differ: %+v vs %+v", descA, descB)
	}
	for c := 0; c < 6; c++ {
		for h := 0; h < 4; h++ {
			for w := 0; w < 4; w++ {
				va, err := sampA.Float32At(0, c, h, w)
				if err != nil {
					t.Fatal(err)
				}
				vb, err := sampB.Float32At(0, c, h, w)
				if err != nil {
					t.Fatal(err)
				}
				if va != vb {
					t.Fatalf("colocated vs materialized disagree at c=%d h=%d w=%d: %v != %v", c, h, w, va, vb)
				}
			}
		}
	}
	_ = eng
}

// stubOp is a minimal Op used to feed fixed tensors into ConcatConv.concatSource
// without going through a full Graph build.
type stubOp struct {
	dst   tensor.Desc
	bound *tensor.Tensor
}

func (s stubOp) Name() string                  { return "stub" }
func (s stubOp) Dst() tensor.Desc              { return s.dst }
func (s stubOp) SetDst(*tensor.Tensor)         {}
func (s stubOp) BoundTensor() *tensor.Tensor   { return s.bound }
func (s stubOp) Sources() []Op                 { return nil }
func (s stubOp) Support(engine.Engine) bool    { return true }
func (s stubOp) WorkAmount() float64           { return 0 }
func (s stubOp) Finalize(*Graph) error         { return nil }
func (s stubOp) Execute(engine.Engine) error   { return nil }
func (s stubOp) external() bool                { return false }

func TestS5CancellationStopsBeforeCrossingThreshold(t *testing.T) {
	eng := refengine.New(1)
	g := NewGraph(eng)

	dims, _ := tensor.NewDesc(1, 3, 2, 2, tensor.DTypeF32, tensor.LayoutCHW)
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := g.AddPool("pool", ip)
	if err != nil {
		t.Fatal(err)
	}
	out, err := g.AddOutputProcess("out", pool, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}

	size, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := eng.NewBuffer(size, 0)
	if err := g.SetScratch(buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}

	color := imageproc.NewImage(2, 2, 3, imageproc.FormatF32)
	for h := 0; h < 2; h++ {
		for w := 0; w < 2; w++ {
			for c := 0; c < 3; c++ {
				color.Set(h, w, c, 0.9)
			}
		}
	}
	if err := ip.SetInputs(color, nil, nil, imageproc.FullTile(2, 2)); err != nil {
		t.Fatal(err)
	}
	outImg := imageproc.NewImage(1, 1, 3, imageproc.FormatF32)
	out.SetOutput(outImg, imageproc.Tile{H: 1, W: 1}, true)

	cancelled := false
	progress := ProgressFunc(func(frac float64) bool {
		if frac >= 0.5 {
			cancelled = true
			return false
		}
		return true
	})

	err = g.Run(progress)
	if err != ErrCancelled {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if !cancelled {
		t.Fatal("progress sink never saw fraction >= 0.5")
	}

	v, err := outImg.At(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("OutputProcess wrote %v, want 0 (it must not have executed)", v)
	}
}

func TestPlannerMonotonicity(t *testing.T) {
	eng := refengine.New(1)
	g := NewGraph(eng)
	dims, _ := tensor.NewDesc(1, 3, 4, 4, tensor.DTypeF32, tensor.LayoutCHW)
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	size1, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddConv("c1", ip, ActivationNone, PostOpNone); err == nil {
		t.Fatal("expected missing-constant error before registering weights")
	}
	g.SetConstTensor("c1.weight", makeConvWeight(t, 4, 3))
	g.SetConstTensor("c1.bias", makeConvBias(t, 4))
	if _, err := g.AddConv("c1", ip, ActivationNone, PostOpNone); err != nil {
		t.Fatal(err)
	}
	size2, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	if size2 < size1 {
		t.Errorf("GetScratchByteSize() decreased after AddConv: %d -> %d", size1, size2)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	g, eng := buildSingleConvGraph(t)
	size, err := g.GetScratchByteSize()
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := eng.NewBuffer(size, 0)
	if err := g.SetScratch(buf); err != nil {
		t.Fatal(err)
	}
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}
	privateSize1 := g.GetPrivateByteSize()
	if err := g.Finalize(); err != nil {
		t.Fatal(err)
	}
	privateSize2 := g.GetPrivateByteSize()
	if privateSize1 != privateSize2 {
		t.Errorf("GetPrivateByteSize() changed across repeated Finalize(): %d vs %d", privateSize1, privateSize2)
	}
}

func TestForeignSourceRejected(t *testing.T) {
	eng := refengine.New(1)
	g1 := NewGraph(eng)
	g2 := NewGraph(eng)
	dims, _ := tensor.NewDesc(1, 3, 4, 4, tensor.DTypeF32, tensor.LayoutCHW)
	ip1, err := g1.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g2.AddPool("pool", ip1); err != ErrForeignSource {
		t.Fatalf("err = %v, want ErrForeignSource", err)
	}
}
