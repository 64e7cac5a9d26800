// Package engine defines the narrow interfaces the graph core consumes from
// a compute backend. Per spec §1 the backend itself (CPU vector kernels, GPU
// command submission, device memory allocation) is an external collaborator;
// only the interface it must satisfy is specified here: allocate scratch
// memory, submit a 2D kernel, and report reserved workspace/block size.
package engine

import "context"

// Range describes a 2D iteration space a kernel is submitted over, e.g. the
// output rows and columns of a data-parallel op.
type Range struct {
	Rows, Cols int
}

// Kernel is a unit of work submitted to an Engine over a Range. row and col
// range over [0, Range.Rows) and [0, Range.Cols); engines are free to
// partition the range across however many workers they have.
type Kernel func(row, col int)

// Engine is the narrow compute-backend abstraction the graph depends on.
// Implementations may be synchronous (CPU) or queue work asynchronously
// (GPU command queue); see spec §5 for the ordering guarantee a Graph
// requires of execute().
type Engine interface {
	// TensorBlockSize returns the channel block size (1, 8 or 16) this
	// engine's blocked layouts use.
	TensorBlockSize() int

	// NewBuffer allocates a region of device/host/shared memory.
	NewBuffer(byteSize int, storage Storage) (Buffer, error)

	// SubmitKernel2D fans a kernel out over a 2D range. May be
	// asynchronous with respect to the engine's queue but is always
	// ordered after kernels submitted earlier on the same engine.
	SubmitKernel2D(rng Range, k Kernel)

	// ScratchByteSize returns additional workspace this engine needs
	// beyond the tensor arena (e.g. im2col buffers, GPU command state).
	ScratchByteSize() int

	// Wait drains all pending asynchronous work submitted so far.
	Wait(ctx context.Context) error
}
