package graph

import "github.com/rgbflow/denoisegraph/tensor"

// reorderToEngineLayout copies t into a new private tensor laid out for
// the engine's tensor block size (spec §4.4's "weight/bias reorder into
// engine-preferred layout" step). For the reference engine's block size
// of 1 this is a plain copy; for a blocked engine the channel axis is
// re-addressed into Chw8c/Chw16c groups so Conv's inner loop can read
// weights with the same addressing math it uses for activations.
func reorderToEngineLayout(t *tensor.Tensor, blockSize int) (*tensor.Tensor, error) {
	layout, err := tensor.BlockedLayoutFor(blockSize)
	if err != nil {
		return nil, err
	}

	dstDesc := t.Desc
	dstDesc.Layout = layout
	out := tensor.NewPrivate(dstDesc)

	for n := 0; n < dstDesc.N; n++ {
		for c := 0; c < dstDesc.C; c++ {
			for h := 0; h < dstDesc.H; h++ {
				for w := 0; w < dstDesc.W; w++ {
					v, err := t.Float32At(n, c, h, w)
					if err != nil {
						return nil, err
					}
					if err := out.SetFloat32At(n, c, h, w, v); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}
