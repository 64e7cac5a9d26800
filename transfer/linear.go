// linear.go - identity tone curve, scale-only.
package transfer

// Linear applies no curve at all beyond the input scale; used for SDR data
// that is already perceptually encoded upstream, or for testing the rest of
// the pipeline without a tone-mapping confound.
type Linear struct {
	Scale float32
}

// NewLinear returns a Linear transfer function with the given input scale.
// A scale of 1 is the common case (no autoexposure).
func NewLinear(scale float32) Linear {
	if scale == 0 {
		scale = 1
	}
	return Linear{Scale: scale}
}

func (l Linear) InputScale() float32 { return l.Scale }

func (l Linear) Forward(v Vec3) Vec3 { return v }

func (l Linear) Inverse(v Vec3) Vec3 { return v }
