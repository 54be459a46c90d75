package kernel

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// quantileGrid is the number of points of the tabulated CDF.
const quantileGrid = 20001

// Quantiles returns the values of the density's inverse CDF at each
// probability in probs. The CDF is tabulated by the trapezoidal rule on a
// fine grid over the support and inverted by linear interpolation.
func (d *Density) Quantiles(probs []float64) ([]float64, error) {
	for _, p := range probs {
		if !(p >= 0 && p <= 1) {
			return nil, fmt.Errorf("probability %g outside [0, 1]", p)
		}
	}
	x := floats.Span(make([]float64, quantileGrid), d.Support.Min, d.Support.Max)
	cdf := make([]float64, quantileGrid)
	prev := d.At(x[0])
	for i := 1; i < quantileGrid; i++ {
		cur := d.At(x[i])
		cdf[i] = cdf[i-1] + (prev+cur)/2*(x[i]-x[i-1])
		prev = cur
	}
	floats.Scale(1/cdf[quantileGrid-1], cdf)

	out := make([]float64, len(probs))
	for k, p := range probs {
		i := sort.SearchFloat64s(cdf, p)
		switch {
		case i == 0:
			out[k] = x[0]
		case i >= quantileGrid:
			out[k] = x[quantileGrid-1]
		default:
			lo, hi := cdf[i-1], cdf[i]
			t := 0.0
			if hi > lo {
				t = (p - lo) / (hi - lo)
			}
			out[k] = x[i-1] + t*(x[i]-x[i-1])
		}
	}
	return out, nil
}

// StratifiedSample returns n deterministic draws from the density: the
// quantiles at probabilities (i+0.5)/n.
func (d *Density) StratifiedSample(n int) []float64 {
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = (float64(i) + 0.5) / float64(n)
	}
	out, _ := d.Quantiles(probs)
	return out
}
