// inputprocess.go wraps imageproc.ReorderInput as a graph Op (spec §4.2).
// Unlike Conv/Pool/Upsample, its runtime inputs (which images are present,
// and which tile of them to process) are not fixed at build time — the
// same InputProcess op is re-bound to a new tile via SetInputs before each
// Run, the way a Graph's topology stays fixed across repeated tiled passes
// over one image (see Graph.RunTiles).
package graph

import (
	"github.com/rgbflow/denoisegraph/engine"
	"github.com/rgbflow/denoisegraph/imageproc"
	"github.com/rgbflow/denoisegraph/tensor"
	"github.com/rgbflow/denoisegraph/transfer"
)

// InputProcess is the tile-aware reorder from up to three source images
// into a network input tensor.
type InputProcess struct {
	baseOp
	tileAlignment int
	transferFunc  transfer.Function
	hdr, snorm    bool

	color, albedo, normal *imageproc.Image
	tile                  imageproc.Tile
}

// AddInputProcess registers an InputProcess op producing a tensor of the
// given descriptor. tileAlignment documents the tile-size granularity the
// caller intends to use with SetInputs (e.g. to keep interior tiles a
// multiple of the engine's preferred block width); it is not otherwise
// enforced by the core.
func (g *Graph) AddInputProcess(name string, dims tensor.Desc, tileAlignment int, tf transfer.Function, hdr, snorm bool) (*InputProcess, error) {
	if g.finalized {
		return nil, ErrGraphFinalized
	}
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	op := &InputProcess{
		baseOp:        baseOp{name: name, dst: dims},
		tileAlignment: tileAlignment,
		transferFunc:  tf,
		hdr:           hdr,
		snorm:         snorm,
		tile:          imageproc.FullTile(dims.H, dims.W),
	}
	g.register(op)
	return op, nil
}

// SetInputs binds the source images and tile an InputProcess reads at the
// next Run. At least one of color, albedo, normal must be non-nil.
func (ip *InputProcess) SetInputs(color, albedo, normal *imageproc.Image, tile imageproc.Tile) error {
	if color == nil && albedo == nil && normal == nil {
		return ErrNoSourceImages
	}
	ip.color, ip.albedo, ip.normal = color, albedo, normal
	ip.tile = tile
	return nil
}

func (ip *InputProcess) Support(eng engine.Engine) bool {
	return ip.dst.DType == tensor.DTypeF32 || ip.dst.DType == tensor.DTypeF16
}

func (ip *InputProcess) WorkAmount() float64 { return float64(ip.dst.Elements()) }

func (ip *InputProcess) Finalize(g *Graph) error { return nil }

func (ip *InputProcess) Execute(eng engine.Engine) error {
	return imageproc.ReorderInput(ip.bound, 0, ip.color, ip.albedo, ip.normal, ip.transferFunc, ip.hdr, ip.snorm, ip.tile)
}
