// pu.go - Perceptually-uniform tone curve for HDR linear light, following
// the PU21 formulation (Aydin et al., "A Perceptually-Uniform Encoding for
// a Large Range Luminance"). Unlike sRGB/Linear this curve has no closed
// per-channel symmetric shape; it is a single rational-power curve applied
// identically to each channel, analytically invertible.
package transfer

import "math"

const (
	pu21a = 1.070275272
	pu21b = 0.4088273932
	pu21c = 0.153224308
	pu21d = 0.2520326168
	pu21e = 1.063512885
	pu21f = 1.14115047
	pu21k = 521.4527484
)

// PU is the perceptual-uniform transfer function used for HDR color data.
type PU struct {
	Scale float32
}

// NewPU returns a PU transfer function with the given autoexposure input
// scale.
func NewPU(scale float32) PU {
	if scale == 0 {
		scale = 1
	}
	return PU{Scale: scale}
}

func (p PU) InputScale() float32 { return p.Scale }

func (p PU) Forward(v Vec3) Vec3 {
	return Vec3{pu21Forward(v[0]), pu21Forward(v[1]), pu21Forward(v[2])}
}

func (p PU) Inverse(v Vec3) Vec3 {
	return Vec3{pu21Inverse(v[0]), pu21Inverse(v[1]), pu21Inverse(v[2])}
}

func pu21Forward(x float32) float32 {
	xf := float64(x)
	if xf < 0 {
		xf = 0
	}
	xc := math.Pow(xf, pu21d)
	ratio := (pu21a + pu21b*xc) / (1 + pu21c*xc)
	return float32(pu21k * (math.Pow(ratio, pu21e) - pu21f))
}

func pu21Inverse(y float32) float32 {
	yf := float64(y)
	u := math.Pow(yf/pu21k+pu21f, 1/pu21e)
	denom := u*pu21c - pu21b
	if denom == 0 {
		return 0
	}
	xc := (pu21a - u) / denom
	if xc < 0 {
		xc = 0
	}
	return float32(math.Pow(xc, 1/pu21d))
}
