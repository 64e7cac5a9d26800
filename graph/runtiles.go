package graph

import "github.com/rgbflow/denoisegraph/imageproc"

// RunTiles drives a single InputProcess/OutputProcess pair across a
// non-overlapping grid of tiles covering the full extent of the source
// images, calling Run once per tile. This is the common case for
// processing an image larger than the network's working tensor size.
//
// ip and op must already belong to g (added via AddInputProcess/
// AddOutputProcess) and g must already be finalized. The tile size is
// ip.Dst()'s H and W; the last row/column of tiles is shrunk to fit the
// image exactly rather than overlapping the previous tile.
func (g *Graph) RunTiles(ip *InputProcess, op *OutputProcess, color, albedo, normal, dst *imageproc.Image, sdrClamp bool, progress Progress) error {
	imgH, imgW := sourceImageDims(color, albedo, normal)
	tileH, tileW := ip.Dst().H, ip.Dst().W
	if tileH <= 0 || tileW <= 0 {
		return ErrShapeMismatch
	}

	for hBegin := 0; hBegin < imgH; hBegin += tileH {
		h := min(tileH, imgH-hBegin)
		for wBegin := 0; wBegin < imgW; wBegin += tileW {
			w := min(tileW, imgW-wBegin)
			tile := imageproc.Tile{HSrcBegin: hBegin, WSrcBegin: wBegin, H: h, W: w}

			if err := ip.SetInputs(color, albedo, normal, tile); err != nil {
				return err
			}
			op.SetOutput(dst, tile, sdrClamp)

			if err := g.Run(progress); err != nil {
				return err
			}
		}
	}
	return nil
}

func sourceImageDims(imgs ...*imageproc.Image) (int, int) {
	for _, img := range imgs {
		if img != nil {
			return img.H, img.W
		}
	}
	return 0, 0
}
