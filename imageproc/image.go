// Package imageproc implements the tile-aware reorder between external
// pixel buffers and the graph's internal tensors (spec §4.2/§4.3): the
// pixel-format conversion, zero-padding, NaN sanitization, HDR/SDR clamping
// and tone-curve application that turns a rectangular region of a color,
// albedo or normal image into a slab of a destination tensor, and back.
// Image is the external pixel buffer named by spec §3: it is never decoded
// from a file, just a raw buffer with an explicit pixel format and row
// stride, already in memory.
package imageproc

import (
	"fmt"
	"math"
)

// Format is the storage format of one pixel channel in an Image.
type Format int

const (
	// FormatU8 stores each channel as a byte in [0,255], read/written as
	// [0,1] float.
	FormatU8 Format = iota
	// FormatF32 stores each channel as a raw float32, read/written as-is
	// (used for HDR linear-light data).
	FormatF32
)

func (f Format) bytesPerChannel() int {
	switch f {
	case FormatU8:
		return 1
	case FormatF32:
		return 4
	default:
		panic(fmt.Sprintf("imageproc: unknown format %d", int(f)))
	}
}

// Image is the external pixel buffer named by spec §3: not owned by the
// graph, addressed by (row, col, channel) with an explicit row stride so
// callers may hand in a view over a larger buffer.
type Image struct {
	H, W     int
	Channels int
	Stride   int // bytes per row; 0 means tightly packed (W * Channels * bytesPerChannel)
	Format   Format
	Data     []byte
}

// NewImage allocates a tightly-packed Image of the given format.
func NewImage(h, w, channels int, format Format) *Image {
	stride := w * channels * format.bytesPerChannel()
	return &Image{
		H:        h,
		W:        w,
		Channels: channels,
		Stride:   stride,
		Format:   format,
		Data:     make([]byte, stride*h),
	}
}

func (img *Image) rowStride() int {
	if img.Stride != 0 {
		return img.Stride
	}
	return img.W * img.Channels * img.Format.bytesPerChannel()
}

func (img *Image) byteOffset(h, w, c int) int {
	bpc := img.Format.bytesPerChannel()
	return h*img.rowStride() + (w*img.Channels+c)*bpc
}

// At reads channel c of pixel (h, w) as a float32, normalizing FormatU8 to
// [0,1].
func (img *Image) At(h, w, c int) (float32, error) {
	if h < 0 || h >= img.H || w < 0 || w >= img.W || c < 0 || c >= img.Channels {
		return 0, fmt.Errorf("imageproc: pixel (%d,%d,%d) out of bounds for %dx%dx%d image", h, w, c, img.H, img.W, img.Channels)
	}
	off := img.byteOffset(h, w, c)
	switch img.Format {
	case FormatU8:
		return float32(img.Data[off]) / 255.0, nil
	case FormatF32:
		bits := uint32(img.Data[off]) | uint32(img.Data[off+1])<<8 | uint32(img.Data[off+2])<<16 | uint32(img.Data[off+3])<<24
		return math.Float32frombits(bits), nil
	default:
		return 0, fmt.Errorf("imageproc: unknown format %d", int(img.Format))
	}
}

// Set writes channel c of pixel (h, w) from a float32, in the same
// normalization direction as At.
func (img *Image) Set(h, w, c int, v float32) error {
	if h < 0 || h >= img.H || w < 0 || w >= img.W || c < 0 || c >= img.Channels {
		return fmt.Errorf("imageproc: pixel (%d,%d,%d) out of bounds for %dx%dx%d image", h, w, c, img.H, img.W, img.Channels)
	}
	off := img.byteOffset(h, w, c)
	switch img.Format {
	case FormatU8:
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		img.Data[off] = byte(v*255.0 + 0.5)
		return nil
	case FormatF32:
		bits := math.Float32bits(v)
		img.Data[off] = byte(bits)
		img.Data[off+1] = byte(bits >> 8)
		img.Data[off+2] = byte(bits >> 16)
		img.Data[off+3] = byte(bits >> 24)
		return nil
	default:
		return fmt.Errorf("imageproc: unknown format %d", int(img.Format))
	}
}

// Tile is a rectangular source region plus its placement in a padded
// destination, per spec §4.2 and the GLOSSARY's Tile entry.
type Tile struct {
	HSrcBegin, WSrcBegin int
	HDstBegin, WDstBegin int
	H, W                 int
}

// FullTile returns the Tile that covers an h x w image with no padding,
// placed at the origin of a same-size destination — the common case for a
// single-pass (non-tiled) run.
func FullTile(h, w int) Tile {
	return Tile{H: h, W: w}
}
