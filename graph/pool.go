package graph

import (
	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/tensor"
)

// Pool is a standalone 2x2 stride-2 max pool (spec §4.5); channels are
// unchanged, H and W are halved (floor).
type Pool struct {
	baseOp
	src Op
}

// AddPool registers a Pool op reading src.
func (g *Graph) AddPool(name string, src Op) (*Pool, error) {
	if err := g.checkCanAdd(src); err != nil {
		return nil, err
	}
	dst := src.Dst().WithDims(src.Dst().H/2, src.Dst().W/2)
	op := &Pool{
		baseOp: baseOp{name: name, dst: dst, sources: []Op{src}},
		src:    src,
	}
	g.register(op)
	return op, nil
}

func (p *Pool) Support(eng engine.Engine) bool {
	return p.dst.DType == tensor.DTypeF32 || p.dst.DType == tensor.DTypeF16
}

func (p *Pool) WorkAmount() float64 { return float64(p.dst.Elements()) * 4 }

func (p *Pool) Finalize(g *Graph) error { return nil }

func (p *Pool) Execute(eng engine.Engine) error {
	src := p.src.BoundTensor()
	dst := p.bound
	var execErr error
	eng.SubmitKernel2D(engine.Range{Rows: dst.Desc.H, Cols: dst.Desc.W}, func(row, col int) {
		if execErr != nil {
			return
		}
		for c := 0; c < dst.Desc.C; c++ {
			var best float32
			haveBest := false
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					v, err := src.Float32At(0, c, 2*row+dy, 2*col+dx)
					if err != nil {
						execErr = err
						return
					}
					if !haveBest || v > best {
						best = v
						haveBest = true
					}
				}
			}
			if err := dst.SetFloat32At(0, c, row, col, best); err != nil {
				execErr = err
				return
			}
		}
	})
	return execErr
}
