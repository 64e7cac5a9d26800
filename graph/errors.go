package graph

import "errors"

// Misconfiguration errors (spec §7): programmer errors, fail fast.
var (
	ErrForeignSource    = errors.New("graph: source op belongs to a different graph")
	ErrGraphFinalized   = errors.New("graph: cannot add ops after finalize")
	ErrNotFinalized     = errors.New("graph: run called before finalize")
	ErrScratchNotSet    = errors.New("graph: finalize called before setScratch")
	ErrScratchTooSmall  = errors.New("graph: scratch buffer smaller than getScratchByteSize()")
	ErrMissingConstant  = errors.New("graph: missing constant tensor")
	ErrChannelMismatch  = errors.New("graph: constant tensor channel count does not match source channels")
	ErrShapeMismatch    = errors.New("graph: source ops do not have compatible shapes")
	ErrNoSourceImages   = errors.New("graph: inputProcess requires at least one of color, albedo, normal")
)

// ErrUnsupported is returned by Finalize when IsSupported() is false;
// callers are expected to check IsSupported() first (spec §7 calls this
// non-fatal, caller's decision), but Finalize still refuses to proceed
// rather than bind tensors for ops the engine cannot run.
var ErrUnsupported = errors.New("graph: op unsupported by engine")

// ErrCancelled is returned by Run when the progress sink requests
// cancellation.
var ErrCancelled = errors.New("graph: run cancelled")
