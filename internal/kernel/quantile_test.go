package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestDensity_Quantiles(t *testing.T) {
	n := DefaultNormalizer()
	// Zero tilt and sharp, symmetric edges: close to uniform on [10, 20].
	d, err := n.Normalize(ShapeParameters{Alpha: 0, LLeft: 10, ULeft: 200, LRight: 20, URight: 200}, nil)
	require.NoError(t, err)

	q, err := d.Quantiles([]float64{0.25, 0.5, 0.75})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, q[0], 0.01)
	assert.InDelta(t, 15.0, q[1], 0.01)
	assert.InDelta(t, 17.5, q[2], 0.01)

	_, err = d.Quantiles([]float64{0.5, 1.5})
	assert.Error(t, err)
}

func TestDensity_StratifiedSample(t *testing.T) {
	n := DefaultNormalizer()
	p := ShapeParameters{Alpha: 0.3, LLeft: 4, ULeft: 3, LRight: 9, URight: 2}
	d, err := n.Normalize(p, nil)
	require.NoError(t, err)

	xs := d.StratifiedSample(5000)
	require.Len(t, xs, 5000)
	for i := 1; i < len(xs); i++ {
		require.GreaterOrEqual(t, xs[i], xs[i-1], "sample must be non-decreasing")
	}

	// The sample mean matches the density's mean.
	grid := floats.Span(make([]float64, 30001), 0, 30)
	var mean float64
	step := grid[1] - grid[0]
	for _, l := range grid {
		mean += l * d.At(l) * step
	}
	assert.InDelta(t, mean, stat.Mean(xs, nil), 0.01)
}
