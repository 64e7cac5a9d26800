// Tensor binds a Desc to memory: either a byte offset into an external
// engine.Buffer (a transient tensor living in the scratch arena) or a
// private []byte allocation (a constant or weight).
package tensor

import (
	"fmt"
	"math"

	"github.com/rgbflow/denoisegraph/engine"
	"github.com/x448/float16"
)

// Tensor binds a Desc to memory. Exactly one of (buffer, private) is set: a
// transient tensor lives at an offset in a shared engine.Buffer (the scratch
// arena), a private tensor owns its own byte slice (constants, weights,
// reorder destinations per spec §4.4).
type Tensor struct {
	Desc Desc

	buffer     engine.Buffer
	byteOffset int

	private []byte
}

// NewTransient binds desc to a view of buf at byteOffset. The caller (the
// Graph, after planning) is responsible for ensuring the span fits inside
// buf — see spec §3's Tensor invariant.
func NewTransient(desc Desc, buf engine.Buffer, byteOffset int) (*Tensor, error) {
	if byteOffset < 0 || byteOffset+desc.ByteSize() > buf.ByteSize() {
		return nil, fmt.Errorf("tensor: byte span [%d,%d) does not fit in buffer of size %d", byteOffset, byteOffset+desc.ByteSize(), buf.ByteSize())
	}
	return &Tensor{Desc: desc, buffer: buf, byteOffset: byteOffset}, nil
}

// NewPrivate allocates a standalone tensor not backed by the scratch arena.
func NewPrivate(desc Desc) *Tensor {
	return &Tensor{Desc: desc, private: make([]byte, desc.ByteSize())}
}

// IsTransient reports whether this tensor is a view over a shared buffer
// (as opposed to a private allocation).
func (t *Tensor) IsTransient() bool {
	return t.buffer != nil
}

// ByteOffset returns the tensor's offset into its backing buffer. Only
// meaningful for transient tensors.
func (t *Tensor) ByteOffset() int {
	return t.byteOffset
}

// Bytes returns the raw bytes backing this tensor, reading through the
// buffer for transient tensors (Sync mode: spec §5 names Buffer.read/write
// in Sync mode as one of the two suspension points a Graph may hit).
func (t *Tensor) Bytes() ([]byte, error) {
	if t.private != nil {
		return t.private, nil
	}
	buf := make([]byte, t.Desc.ByteSize())
	if err := t.buffer.Read(t.byteOffset, len(buf), buf, engine.Sync); err != nil {
		return nil, fmt.Errorf("tensor: read: %w", err)
	}
	return buf, nil
}

// SetBytes writes raw bytes into this tensor's backing storage.
func (t *Tensor) SetBytes(data []byte) error {
	if len(data) != t.Desc.ByteSize() {
		return fmt.Errorf("tensor: SetBytes length %d does not match tensor byte size %d", len(data), t.Desc.ByteSize())
	}
	if t.private != nil {
		copy(t.private, data)
		return nil
	}
	return t.buffer.Write(t.byteOffset, len(data), data, engine.Sync)
}

// elementBytes reads just the bytes for the element at (n, c, h, w), through
// the buffer for transient tensors rather than the whole tensor region, so
// concurrent kernels touching disjoint elements of the same tensor (spec
// §5's row-parallel execution) never race on each other's bytes.
func (t *Tensor) elementBytes(n, c, h, w int) ([]byte, int, error) {
	elemSize := t.Desc.DType.ByteSize()
	off := t.Desc.Offset(n, c, h, w) * elemSize
	if t.private != nil {
		return t.private[off : off+elemSize], off, nil
	}
	buf := make([]byte, elemSize)
	if err := t.buffer.Read(t.byteOffset+off, elemSize, buf, engine.Sync); err != nil {
		return nil, off, fmt.Errorf("tensor: read: %w", err)
	}
	return buf, off, nil
}

// Float32At reads the element at (n, c, h, w), converting from the tensor's
// native dtype.
func (t *Tensor) Float32At(n, c, h, w int) (float32, error) {
	data, _, err := t.elementBytes(n, c, h, w)
	if err != nil {
		return 0, err
	}
	switch t.Desc.DType {
	case DTypeF32:
		return f32FromBytes(data), nil
	case DTypeF16:
		return float16.Frombits(u16FromBytes(data)).Float32(), nil
	default:
		return 0, fmt.Errorf("tensor: unsupported dtype %v", t.Desc.DType)
	}
}

// SetFloat32At writes a single element, converting to the tensor's native
// dtype. Only the element's own bytes are written, so disjoint-element
// writes from concurrent kernels (refengine.SubmitKernel2D's row fan-out)
// are safe.
func (t *Tensor) SetFloat32At(n, c, h, w int, v float32) error {
	elemSize := t.Desc.DType.ByteSize()
	data := make([]byte, elemSize)
	switch t.Desc.DType {
	case DTypeF32:
		putF32Bytes(data, v)
	case DTypeF16:
		putU16Bytes(data, float16.Fromfloat32(v).Bits())
	default:
		return fmt.Errorf("tensor: unsupported dtype %v", t.Desc.DType)
	}
	off := t.Desc.Offset(n, c, h, w) * elemSize
	if t.private != nil {
		copy(t.private[off:off+elemSize], data)
		return nil
	}
	return t.buffer.Write(t.byteOffset+off, elemSize, data, engine.Sync)
}

func f32FromBytes(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func putF32Bytes(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func u16FromBytes(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putU16Bytes(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
