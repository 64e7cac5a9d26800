package graph

import (
	"testing"

	"github.com/rgbflow/denoisegraph/imageproc"
	"github.com/rgbflow/denoisegraph/refengine"
	"github.com/rgbflow/denoisegraph/tensor"
	"github.com/rgbflow/denoisegraph/transfer"
)

func buildBenchGraph(b *testing.B, h, w int) (*Graph, *refengine.Engine, *InputProcess, *OutputProcess) {
	b.Helper()
	eng := refengine.New(0)
	g := NewGraph(eng)

	dims, err := tensor.NewDesc(1, 9, h, w, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		b.Fatal(err)
	}
	ip, err := g.AddInputProcess("in", dims, 1, transfer.NewLinear(1), false, false)
	if err != nil {
		b.Fatal(err)
	}

	g.SetConstTensor("enc1.weight", benchWeight(b, 8, 9))
	g.SetConstTensor("enc1.bias", benchBias(b, 8))
	enc1, err := g.AddConv("enc1", ip, ActivationReLU, PostOpNone)
	if err != nil {
		b.Fatal(err)
	}
	pool, err := g.AddPool("pool", enc1)
	if err != nil {
		b.Fatal(err)
	}
	g.SetConstTensor("enc2.weight", benchWeight(b, 8, 8))
	g.SetConstTensor("enc2.bias", benchBias(b, 8))
	enc2, err := g.AddConv("enc2", pool, ActivationReLU, PostOpNone)
	if err != nil {
		b.Fatal(err)
	}
	up, err := g.AddUpsample("up", enc2)
	if err != nil {
		b.Fatal(err)
	}
	g.SetConstTensor("dec1.weight", benchWeight(b, 3, 8))
	g.SetConstTensor("dec1.bias", benchBias(b, 3))
	dec1, err := g.AddConv("dec1", up, ActivationReLU, PostOpNone)
	if err != nil {
		b.Fatal(err)
	}
	out, err := g.AddOutputProcess("out", dec1, transfer.NewLinear(1), false, false)
	if err != nil {
		b.Fatal(err)
	}

	size, err := g.GetScratchByteSize()
	if err != nil {
		b.Fatal(err)
	}
	buf, err := eng.NewBuffer(size, 0)
	if err != nil {
		b.Fatal(err)
	}
	if err := g.SetScratch(buf); err != nil {
		b.Fatal(err)
	}
	if err := g.Finalize(); err != nil {
		b.Fatal(err)
	}
	return g, eng, ip, out
}

func benchWeight(b *testing.B, outC, inC int) *tensor.Tensor {
	b.Helper()
	desc, err := tensor.NewDesc(outC, inC, convKernelSize, convKernelSize, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		b.Fatal(err)
	}
	w := tensor.NewPrivate(desc)
	for oc := 0; oc < outC; oc++ {
		for ic := 0; ic < inC; ic++ {
			w.SetFloat32At(oc, ic, 1, 1, 1.0/float32(inC))
		}
	}
	return w
}

func benchBias(b *testing.B, outC int) *tensor.Tensor {
	b.Helper()
	desc, err := tensor.NewDesc(outC, 1, 1, 1, tensor.DTypeF32, tensor.LayoutCHW)
	if err != nil {
		b.Fatal(err)
	}
	return tensor.NewPrivate(desc)
}

func runBenchOnce(b *testing.B, h, w int) {
	g, _, ip, out := buildBenchGraph(b, h, w)
	color := imageproc.NewImage(h, w, 3, imageproc.FormatF32)
	outImg := imageproc.NewImage(h, w, 3, imageproc.FormatF32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ip.SetInputs(color, nil, nil, imageproc.FullTile(h, w)); err != nil {
			b.Fatal(err)
		}
		out.SetOutput(outImg, imageproc.FullTile(h, w), true)
		if err := g.Run(NoopProgress); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunSmallTile(b *testing.B) { runBenchOnce(b, 32, 32) }

func BenchmarkRunLargeTile(b *testing.B) { runBenchOnce(b, 128, 128) }

func BenchmarkGetScratchByteSizeCached(b *testing.B) {
	g, _, _, _ := buildBenchGraph(b, 32, 32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.GetScratchByteSize(); err != nil {
			b.Fatal(err)
		}
	}
}
