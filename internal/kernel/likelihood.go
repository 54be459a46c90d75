package kernel

import (
	"fmt"
	"math"
)

// NegLogLikelihood returns the weighted negative log-likelihood
//
//	NLL = -sum_i w[i] * log(density(l[i]))
//
// of the density normalized from p. The density is checked at every sample
// point, so a degenerate parameter set yields the *ComputationError from
// Normalize unchanged.
func NegLogLikelihood(n *Normalizer, p ShapeParameters, l, w []float64) (float64, error) {
	if len(l) != len(w) {
		return 0, fmt.Errorf("sample length mismatch: %d values, %d weights", len(l), len(w))
	}
	d, err := n.Normalize(p, l)
	if err != nil {
		return 0, err
	}
	var nll float64
	for i, li := range l {
		nll -= w[i] * math.Log(d.At(li))
	}
	return nll, nil
}
