// Package transfer provides the tone curves applied to pixel values before
// (forward) and after (inverse) network inference, per spec §6
// (TransferFunction) and §4.2/§4.3 (InputProcess/OutputProcess). The scale
// is a single autoexposure-derived input scale and the "normalization" is a
// monotone curve rather than an affine one.
package transfer

// Vec3 is a single RGB pixel value, passed by the core exactly at the
// three color channels (spec §4.2 step 3).
type Vec3 [3]float32

// Function is the tone-curve interface the core consumes (spec §6).
// Implementations are pure and stateless; InputScale folds autoexposure
// into a single multiplicative factor so kernels downstream only ever see
// curve-normalized data.
type Function interface {
	// InputScale returns the autoexposure scale to apply before Forward.
	InputScale() float32

	// Forward maps a linear, input-scaled pixel into curve space.
	Forward(v Vec3) Vec3

	// Inverse undoes Forward.
	Inverse(v Vec3) Vec3
}
