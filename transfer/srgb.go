// srgb.go - sRGB opto-electronic transfer function, for SDR color data.
package transfer

import "math"

const (
	srgbLinearThreshold = 0.0031308
	srgbEncodedThreshold = 0.04045
	srgbAlpha            = 1.055
)

// SRGB is the standard sRGB tone curve used for SDR display-referred data.
type SRGB struct {
	Scale float32
}

// NewSRGB returns an SRGB transfer function with the given autoexposure
// input scale (1 for no autoexposure).
func NewSRGB(scale float32) SRGB {
	if scale == 0 {
		scale = 1
	}
	return SRGB{Scale: scale}
}

func (s SRGB) InputScale() float32 { return s.Scale }

func (s SRGB) Forward(v Vec3) Vec3 {
	return Vec3{srgbForward1(v[0]), srgbForward1(v[1]), srgbForward1(v[2])}
}

func (s SRGB) Inverse(v Vec3) Vec3 {
	return Vec3{srgbInverse1(v[0]), srgbInverse1(v[1]), srgbInverse1(v[2])}
}

func srgbForward1(x float32) float32 {
	if x <= srgbLinearThreshold {
		return 12.92 * x
	}
	return float32(srgbAlpha*math.Pow(float64(x), 1.0/2.4) - (srgbAlpha - 1))
}

func srgbInverse1(x float32) float32 {
	if x <= srgbEncodedThreshold {
		return x / 12.92
	}
	return float32(math.Pow((float64(x)+(srgbAlpha-1))/srgbAlpha, 2.4))
}
