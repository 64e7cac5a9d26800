// Package tensor provides the data types and layout descriptors shared by
// every tensor in the op graph.
package tensor

import "fmt"

// DType represents the element data type of a tensor.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
)

// String implements fmt.Stringer.
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	default:
		return "other"
	}
}

// ByteSize returns the size in bytes of a single element of this type.
func (d DType) ByteSize() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16:
		return 2
	default:
		panic(fmt.Sprintf("tensor: unknown dtype %v", int(d)))
	}
}
