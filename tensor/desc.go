// Desc is a standalone value type rather than an interface: it describes a
// tensor's shape, element type and layout before any memory is bound to it
// (binding happens in Tensor, see tensor.go).
package tensor

import "fmt"

// Desc describes the shape, element type and memory layout of a tensor.
// Dims are always in N,C,H,W order; N is 1 for the tile-processing ops this
// core deals with but is kept explicit so descriptors round-trip cleanly.
type Desc struct {
	N, C, H, W int
	DType      DType
	Layout     Layout
}

// NewDesc builds a descriptor and validates it against the invariants in
// spec §3 (Tensor): C must be a multiple of the layout's block size, and
// H, W must be positive.
func NewDesc(n, c, h, w int, dtype DType, layout Layout) (Desc, error) {
	d := Desc{N: n, C: c, H: h, W: w, DType: dtype, Layout: layout}
	return d, d.Validate()
}

// Validate checks the shape/layout invariants spec §3 requires of a Tensor.
func (d Desc) Validate() error {
	if d.H <= 0 || d.W <= 0 {
		return fmt.Errorf("tensor: invalid spatial dims H=%d W=%d, must be > 0", d.H, d.W)
	}
	if d.N <= 0 {
		return fmt.Errorf("tensor: invalid batch dim N=%d, must be > 0", d.N)
	}
	if bs := d.Layout.BlockSize(); bs > 1 && d.C%bs != 0 {
		return fmt.Errorf("tensor: channel count C=%d is not a multiple of block size %d for layout %v", d.C, bs, d.Layout)
	}
	return nil
}

// Elements returns the total element count N*C*H*W.
func (d Desc) Elements() int {
	return d.N * d.C * d.H * d.W
}

// ByteSize returns the number of bytes a tensor of this descriptor occupies.
// Blocked layouts do not change the element count, only the stride math used
// to address an element (see Offset); total byte size is identical across
// layouts for the same dims and dtype.
func (d Desc) ByteSize() int {
	return d.Elements() * d.DType.ByteSize()
}

// channelGroups returns the number of outer channel groups for a blocked
// layout (C / block size); for planar layout it is C (one channel per group).
func (d Desc) channelGroups() int {
	bs := d.Layout.BlockSize()
	if bs == 1 {
		return d.C
	}
	return d.C / bs
}

// Offset returns the element offset (not byte offset) of pixel (h, w) in
// channel c, within batch n, under this descriptor's layout.
func (d Desc) Offset(n, c, h, w int) int {
	bs := d.Layout.BlockSize()
	if bs == 1 {
		// planar: N, C, H, W contiguous in that order
		return ((n*d.C+c)*d.H+h)*d.W + w
	}

	group := c / bs
	within := c % bs
	groups := d.channelGroups()
	// N, group, H, W, within — the inner block is contiguous per pixel.
	return (((n*groups+group)*d.H+h)*d.W+w)*bs + within
}

// WithDims returns a copy of d with new H, W (used by ops that change
// spatial extent, e.g. Pool halves H,W and Upsample doubles them).
func (d Desc) WithDims(h, w int) Desc {
	d2 := d
	d2.H, d2.W = h, w
	return d2
}

// WithChannels returns a copy of d with a new channel count (used by
// ConcatConv's view over a colocated pair of sources).
func (d Desc) WithChannels(c int) Desc {
	d2 := d
	d2.C = c
	return d2
}
