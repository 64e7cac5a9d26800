package graph

import (
	"fmt"

	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/imageproc"
	"github.com/rgbflow/denoisegraph/tensor"
	"github.com/rgbflow/denoisegraph/transfer"
)

// OutputProcess is the inverse of InputProcess for the primary color
// channels only (spec §4.3): it reads channels [0,3) of srcOp's bound
// tensor and writes an output image. It has no TensorAlloc of its own —
// see Op.external.
type OutputProcess struct {
	baseOp
	src          Op
	transferFunc transfer.Function
	hdr, snorm   bool

	dstImage *imageproc.Image
	tile     imageproc.Tile
	sdrClamp bool
}

// AddOutputProcess registers an OutputProcess reading channels [0,3) of
// srcOp's output.
func (g *Graph) AddOutputProcess(name string, srcOp Op, tf transfer.Function, hdr, snorm bool) (*OutputProcess, error) {
	if err := g.checkCanAdd(srcOp); err != nil {
		return nil, err
	}
	if srcOp.Dst().C < 3 {
		return nil, fmt.Errorf("%w: %s has only %d channels, need >= 3", ErrChannelMismatch, srcOp.Name(), srcOp.Dst().C)
	}
	op := &OutputProcess{
		baseOp:       baseOp{name: name, dst: srcOp.Dst().WithChannels(3), sources: []Op{srcOp}},
		src:          srcOp,
		transferFunc: tf,
		hdr:          hdr,
		snorm:        snorm,
		sdrClamp:     true,
	}
	g.registerExternal(op)
	return op, nil
}

// SetOutput binds the destination image, tile, and SDR-clamp behavior an
// OutputProcess writes at the next Run.
func (op *OutputProcess) SetOutput(dst *imageproc.Image, tile imageproc.Tile, sdrClamp bool) {
	op.dstImage = dst
	op.tile = tile
	op.sdrClamp = sdrClamp
}

func (op *OutputProcess) external() bool { return true }

func (op *OutputProcess) Support(eng engine.Engine) bool {
	return op.src.Dst().DType == tensor.DTypeF32 || op.src.Dst().DType == tensor.DTypeF16
}

func (op *OutputProcess) WorkAmount() float64 {
	return float64(op.tile.H) * float64(op.tile.W) * 3
}

func (op *OutputProcess) Finalize(g *Graph) error { return nil }

func (op *OutputProcess) Execute(eng engine.Engine) error {
	return imageproc.ReorderOutput(op.src.BoundTensor(), 0, op.tile, op.transferFunc, op.hdr, op.snorm, op.sdrClamp, op.dstImage)
}
