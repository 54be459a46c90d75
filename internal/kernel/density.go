package kernel

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

// Support is the closed interval of log mass ratios the density is
// normalized over.
type Support struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultSupport is the modelling convention for the mass-ratio axis:
// non-negative and bounded above by 30 log units. Changing it changes every
// derived kernel coefficient, so it is never re-derived from data.
var DefaultSupport = Support{Min: 0, Max: 30}

// Width returns Max - Min.
func (s Support) Width() float64 { return s.Max - s.Min }

// Contains reports whether l lies in [Min, Max].
func (s Support) Contains(l float64) bool { return l >= s.Min && l <= s.Max }

// Validate checks that the support is a finite, non-empty interval.
func (s Support) Validate() error {
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || math.IsInf(s.Min, 0) || math.IsInf(s.Max, 0) {
		return fmt.Errorf("support bounds must be finite, got [%g, %g]", s.Min, s.Max)
	}
	if s.Max <= s.Min {
		return fmt.Errorf("support max (%g) must exceed min (%g)", s.Max, s.Min)
	}
	return nil
}

const (
	// DefaultPanels is the number of equal-width base panels of the
	// composite rule.
	DefaultPanels = 60
	// DefaultNodes is the number of Gauss-Legendre nodes per panel.
	DefaultNodes = 16
)

// edgeOffsets are the distances from a logistic edge, in units of 1/|u|,
// at which extra panel breaks are placed. The panels around the edge are one
// transition width wide and grow geometrically away from it; past the last
// offset the logistic factor is within exp(-64) of 0 or 1.
var edgeOffsets = []float64{1, 2, 4, 8, 16, 32, 64}

// Normalizer integrates the kernel shape over a fixed support using a
// composite Gauss-Legendre rule. The base panels are equal width; for each
// parameter set the panels are further split at both logistic edges and at
// edgeOffsets around them, so steep edges that fall inside a base panel are
// still resolved. A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	support Support
	// grid holds the base panel boundaries, Min and Max included.
	grid []float64
	// nodes and weights are the Legendre rule on [-1, 1].
	nodes   []float64
	weights []float64
}

// NewNormalizer builds a normalizer for support with the given number of
// base panels and Legendre nodes per panel. Non-positive panels or nodes
// select the defaults.
func NewNormalizer(support Support, panels, nodes int) (*Normalizer, error) {
	if err := support.Validate(); err != nil {
		return nil, err
	}
	if panels <= 0 {
		panels = DefaultPanels
	}
	if nodes <= 0 {
		nodes = DefaultNodes
	}

	n := &Normalizer{
		support: support,
		grid:    make([]float64, panels+1),
		nodes:   make([]float64, nodes),
		weights: make([]float64, nodes),
	}
	width := support.Width() / float64(panels)
	for i := range n.grid {
		n.grid[i] = support.Min + float64(i)*width
	}
	n.grid[panels] = support.Max
	quad.Legendre{}.FixedLocations(n.nodes, n.weights, -1, 1)
	return n, nil
}

// DefaultNormalizer returns a normalizer over DefaultSupport with the
// default rule.
func DefaultNormalizer() *Normalizer {
	n, err := NewNormalizer(DefaultSupport, DefaultPanels, DefaultNodes)
	if err != nil {
		panic(err)
	}
	return n
}

// Support returns the integration support.
func (n *Normalizer) Support() Support { return n.support }

// Integral returns the integral of Shape(., p) over the support.
func (n *Normalizer) Integral(p ShapeParameters) float64 {
	breaks := n.breakpoints(p)
	var z float64
	for i := 1; i < len(breaks); i++ {
		mid := (breaks[i] + breaks[i-1]) / 2
		half := (breaks[i] - breaks[i-1]) / 2
		var panel float64
		for j, t := range n.nodes {
			panel += n.weights[j] * Shape(mid+half*t, p)
		}
		z += half * panel
	}
	return z
}

// breakpoints returns the sorted, distinct panel boundaries used for p.
func (n *Normalizer) breakpoints(p ShapeParameters) []float64 {
	breaks := make([]float64, len(n.grid), len(n.grid)+2*(2*len(edgeOffsets)+1))
	copy(breaks, n.grid)
	breaks = n.addEdge(breaks, p.LLeft, p.ULeft)
	breaks = n.addEdge(breaks, p.LRight, p.URight)
	sort.Float64s(breaks)

	out := breaks[:1]
	for _, b := range breaks[1:] {
		if b > out[len(out)-1] {
			out = append(out, b)
		}
	}
	return out
}

// addEdge appends the breaks for a logistic edge at l with steepness u,
// keeping only those strictly inside the support.
func (n *Normalizer) addEdge(breaks []float64, l, u float64) []float64 {
	add := func(x float64) {
		if x > n.support.Min && x < n.support.Max {
			breaks = append(breaks, x)
		}
	}
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return breaks
	}
	add(l)
	scale := math.Abs(u)
	if !(scale > 0) || math.IsInf(scale, 0) {
		return breaks
	}
	for _, k := range edgeOffsets {
		add(l - k/scale)
		add(l + k/scale)
	}
	return breaks
}

// Normalize computes the normalizing constant for p and returns the
// resulting probability density. Every value in points is checked: if the
// integral is not finite and positive, or the density at any point is
// non-positive or non-finite, Normalize returns a *ComputationError carrying
// p and the offending value instead of a density.
func (n *Normalizer) Normalize(p ShapeParameters, points []float64) (*Density, error) {
	z := n.Integral(p)
	if !(z > 0) || math.IsInf(z, 0) {
		return nil, &ComputationError{Params: p, L: math.NaN(), Value: z, Reason: "normalizing integral is not finite and positive"}
	}
	d := &Density{Params: p, Z: z, Support: n.support}
	for _, l := range points {
		v := d.At(l)
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, &ComputationError{Params: p, L: l, Value: v, Reason: "non-positive density"}
		}
	}
	return d, nil
}

// Density is a shape normalized to integrate to one over Support.
type Density struct {
	Params  ShapeParameters
	Z       float64
	Support Support
}

// At returns Shape(l)/Z.
func (d *Density) At(l float64) float64 {
	return Shape(l, d.Params) / d.Z
}

// LogAt returns log(At(l)).
func (d *Density) LogAt(l float64) float64 {
	return LogShape(l, d.Params) - math.Log(d.Z)
}

// Evaluate fills dst with the density at each point of ls and returns it.
// dst is allocated when nil.
func (d *Density) Evaluate(dst, ls []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(ls))
	}
	if len(dst) != len(ls) {
		panic("kernel: slice length mismatch")
	}
	for i, l := range ls {
		dst[i] = d.At(l)
	}
	return dst
}
