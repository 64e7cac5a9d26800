package imageproc

import (
	"log/slog"
	"math"

	"github.com/rgbflow/denoisegraph/tensor"
	"github.com/rgbflow/denoisegraph/transfer"
)

// ReorderInput implements spec §4.2: it fills batch slot n of dst from up
// to three source images (color, albedo, normal, each optionally nil) for
// the given tile, zero-padding outside the tile and applying the transfer
// function's autoexposure scale and forward curve to color. When no color
// is present, albedo gets the scale and the forward curve and normal gets
// the scale only; normal never goes through the forward curve.
//
// dst must have at least 3*(present image count) channels; channels beyond
// those written are zeroed, per step 4 of the algorithm.
func ReorderInput(dst *tensor.Tensor, n int, color, albedo, normal *Image, tf transfer.Function, hdr, snorm bool, tile Tile) error {
	scale := tf.InputScale()
	hasColor := color != nil
	var nanCount int

	for hDst := 0; hDst < dst.Desc.H; hDst++ {
		h := hDst - tile.HDstBegin
		inTileH := h >= 0 && h < tile.H
		for wDst := 0; wDst < dst.Desc.W; wDst++ {
			w := wDst - tile.WDstBegin
			inTile := inTileH && w >= 0 && w < tile.W

			if !inTile {
				if err := zeroPixel(dst, n, hDst, wDst); err != nil {
					return err
				}
				continue
			}

			hSrc := h + tile.HSrcBegin
			wSrc := w + tile.WSrcBegin

			c := 0
			if color != nil {
				if err := writeColorChannels(dst, n, hDst, wDst, c, color, hSrc, wSrc, tf, scale, hdr, snorm, &nanCount); err != nil {
					return err
				}
				c += 3
			}
			if albedo != nil {
				if err := writeAuxChannels(dst, n, hDst, wDst, c, albedo, hSrc, wSrc, tf, scale, !hasColor, auxKindAlbedo, &nanCount); err != nil {
					return err
				}
				c += 3
			}
			if normal != nil {
				if err := writeAuxChannels(dst, n, hDst, wDst, c, normal, hSrc, wSrc, tf, scale, !hasColor, auxKindNormal, &nanCount); err != nil {
					return err
				}
				c += 3
			}
			for ; c < dst.Desc.C; c++ {
				if err := dst.SetFloat32At(n, c, hDst, wDst, 0); err != nil {
					return err
				}
			}
		}
	}
	if nanCount > 0 {
		slog.Warn("imageproc: sanitized NaN pixels", "count", nanCount, "batch", n)
	}
	return nil
}

func zeroPixel(dst *tensor.Tensor, n, h, w int) error {
	for c := 0; c < dst.Desc.C; c++ {
		if err := dst.SetFloat32At(n, c, h, w, 0); err != nil {
			return err
		}
	}
	return nil
}

func sanitize(v float32, nanCount *int) float32 {
	if math.IsNaN(float64(v)) {
		*nanCount++
		return 0
	}
	return v
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func writeColorChannels(dst *tensor.Tensor, n, hDst, wDst, cBase int, img *Image, hSrc, wSrc int, tf transfer.Function, scale float32, hdr, snorm bool, nanCount *int) error {
	lo := float32(0)
	if snorm {
		lo = -1
	}
	hi := float32(1)
	if hdr {
		hi = float32(math.Inf(1))
	}

	var v transfer.Vec3
	for ch := 0; ch < 3; ch++ {
		raw, err := img.At(hSrc, wSrc, ch)
		if err != nil {
			return err
		}
		x := sanitize(raw*scale, nanCount)
		x = clamp(x, lo, hi)
		if snorm {
			x = x*0.5 + 0.5
		}
		v[ch] = x
	}
	v = tf.Forward(v)
	for ch := 0; ch < 3; ch++ {
		if err := dst.SetFloat32At(n, cBase+ch, hDst, wDst, v[ch]); err != nil {
			return err
		}
	}
	return nil
}

type auxKind int

const (
	auxKindAlbedo auxKind = iota
	auxKindNormal
)

func writeAuxChannels(dst *tensor.Tensor, n, hDst, wDst, cBase int, img *Image, hSrc, wSrc int, tf transfer.Function, scale float32, isPrimary bool, kind auxKind, nanCount *int) error {
	for ch := 0; ch < 3; ch++ {
		raw, err := img.At(hSrc, wSrc, ch)
		if err != nil {
			return err
		}
		x := raw
		if isPrimary {
			x *= scale
		}
		x = sanitize(x, nanCount)

		switch kind {
		case auxKindAlbedo:
			x = clamp(x, 0, 1)
			if isPrimary {
				v := transfer.Vec3{x, x, x}
				x = tf.Forward(v)[0]
			}
		case auxKindNormal:
			x = clamp(x, -1, 1)
			x = x*0.5 + 0.5
		}
		if err := dst.SetFloat32At(n, cBase+ch, hDst, wDst, x); err != nil {
			return err
		}
	}
	return nil
}

// ReorderOutput implements spec §4.3: the inverse of ReorderInput for the
// primary color channels [0,3) of batch slot n of src, writing into dst at
// the tile's placement. If sdrClamp is true, output is clamped to [0,1]
// after undoing the snorm remap (SDR display targets); HDR output is left
// unclamped.
func ReorderOutput(src *tensor.Tensor, n int, tile Tile, tf transfer.Function, hdr, snorm, sdrClamp bool, dst *Image) error {
	scale := tf.InputScale()
	for h := 0; h < tile.H; h++ {
		hDst := h + tile.HDstBegin
		hSrc := h + tile.HSrcBegin
		for w := 0; w < tile.W; w++ {
			wDst := w + tile.WDstBegin
			wSrc := w + tile.WSrcBegin

			var v transfer.Vec3
			for ch := 0; ch < 3; ch++ {
				x, err := src.Float32At(n, ch, hDst, wDst)
				if err != nil {
					return err
				}
				v[ch] = x
			}
			v = tf.Inverse(v)
			for ch := range v {
				x := v[ch] / scale
				if snorm {
					x = (x - 0.5) * 2
				}
				if !hdr && sdrClamp {
					x = clamp(x, 0, 1)
				}
				if err := dst.Set(hSrc, wSrc, ch, x); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
