package knn

import "github.com/brensch/fvi/dataset"

// normalizer maps attribute values to [0,1] using the ranges seen in
// training. Attributes that were constant in training map to 0. Values
// outside the training range fall outside [0,1].
type normalizer struct {
	min   []float64
	scale []float64
}

func newNormalizer(ds *dataset.Dataset) *normalizer {
	m := ds.Schema().Attributes
	lo := append([]float64(nil), ds.Row(0)...)
	hi := append([]float64(nil), ds.Row(0)...)
	for i := 1; i < ds.Len(); i++ {
		for j, v := range ds.Row(i) {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}
	scale := make([]float64, m)
	for j := range scale {
		if hi[j] > lo[j] {
			scale[j] = 1 / (hi[j] - lo[j])
		}
	}
	return &normalizer{min: lo, scale: scale}
}

// apply returns a normalised copy of v. A nil normalizer copies v unchanged.
func (n *normalizer) apply(v []float64) []float64 {
	out := make([]float64, len(v))
	if n == nil {
		copy(out, v)
		return out
	}
	for j, x := range v {
		out[j] = (x - n.min[j]) * n.scale[j]
	}
	return out
}
