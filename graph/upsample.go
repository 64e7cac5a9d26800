package graph

import (
	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/tensor"
)

// Upsample is a nearest-neighbor 2x upsample (spec §4.5); channels are
// unchanged, H and W double.
type Upsample struct {
	baseOp
	src Op
}

// AddUpsample registers an Upsample op reading src.
func (g *Graph) AddUpsample(name string, src Op) (*Upsample, error) {
	if err := g.checkCanAdd(src); err != nil {
		return nil, err
	}
	dst := src.Dst().WithDims(src.Dst().H*2, src.Dst().W*2)
	op := &Upsample{
		baseOp: baseOp{name: name, dst: dst, sources: []Op{src}},
		src:    src,
	}
	g.register(op)
	return op, nil
}

func (u *Upsample) Support(eng engine.Engine) bool {
	return u.dst.DType == tensor.DTypeF32 || u.dst.DType == tensor.DTypeF16
}

func (u *Upsample) WorkAmount() float64 { return float64(u.dst.Elements()) }

func (u *Upsample) Finalize(g *Graph) error { return nil }

func (u *Upsample) Execute(eng engine.Engine) error {
	src := u.src.BoundTensor()
	dst := u.bound
	var execErr error
	eng.SubmitKernel2D(engine.Range{Rows: dst.Desc.H, Cols: dst.Desc.W}, func(row, col int) {
		if execErr != nil {
			return
		}
		for c := 0; c < dst.Desc.C; c++ {
			v, err := src.Float32At(0, c, row/2, col/2)
			if err != nil {
				execErr = err
				return
			}
			if err := dst.SetFloat32At(0, c, row, col, v); err != nil {
				execErr = err
				return
			}
		}
	})
	return execErr
}
