// Package refengine is a pure-Go reference implementation of engine.Engine,
// used to execute and test graphs without a GPU backend. It fans kernels
// out across output rows using a worker pool, the same "engine owns the
// thread pool" split spec §5 assigns to the Engine rather than the Graph.
// Row fan-out uses golang.org/x/sync/errgroup rather than a hand-rolled
// WaitGroup and channel.
package refengine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rgbflow/denoisegraph/engine"
)

// Engine is a synchronous, planar-layout-only CPU implementation of
// engine.Engine. It never queues asynchronous work, so Wait always
// returns immediately.
type Engine struct {
	workers int
}

// New returns a reference Engine. workers <= 0 defaults to
// runtime.GOMAXPROCS(0).
func New(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{workers: workers}
}

// TensorBlockSize always reports 1: the reference engine only ever uses
// the planar layout.
func (e *Engine) TensorBlockSize() int { return 1 }

// NewBuffer allocates a host-backed Buffer.
func (e *Engine) NewBuffer(byteSize int, storage engine.Storage) (engine.Buffer, error) {
	return newHostBuffer(byteSize), nil
}

// SubmitKernel2D runs k synchronously across rng.Rows, fanning rows out
// across e.workers goroutines. Within a row, columns run sequentially in
// the calling goroutine.
func (e *Engine) SubmitKernel2D(rng engine.Range, k engine.Kernel) {
	if rng.Rows == 0 || rng.Cols == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(e.workers)
	for row := 0; row < rng.Rows; row++ {
		row := row
		g.Go(func() error {
			for col := 0; col < rng.Cols; col++ {
				k(row, col)
			}
			return nil
		})
	}
	// The reference engine's kernels never fail (spec models kernel
	// failure as an engine-specific fatal condition); Wait propagates
	// nothing since g.Wait()'s error is always nil here.
	_ = g.Wait()
}

// ScratchByteSize is 0: the reference engine needs no workspace beyond the
// tensor arena (no im2col staging, no command-queue state).
func (e *Engine) ScratchByteSize() int { return 0 }

// Wait has no pending work to drain, since SubmitKernel2D already blocks
// until its kernels finish; it only returns ctx.Err().
func (e *Engine) Wait(ctx context.Context) error {
	return ctx.Err()
}
