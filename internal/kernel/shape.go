package kernel

import (
	"fmt"
	"math"
)

// NumParams is the number of free parameters of the shape family.
const NumParams = 5

// ShapeParameters defines the unnormalized bounded exponential shape: an
// exponential tilt Alpha truncated on the left at LLeft (steepness ULeft)
// and on the right at LRight (steepness URight).
type ShapeParameters struct {
	Alpha  float64 `json:"alpha"`
	LLeft  float64 `json:"l_left"`
	ULeft  float64 `json:"u_left"`
	LRight float64 `json:"l_right"`
	URight float64 `json:"u_right"`
}

// Vector returns the parameters in optimizer order
// (alpha, l_left, u_left, l_right, u_right).
func (p ShapeParameters) Vector() []float64 {
	return []float64{p.Alpha, p.LLeft, p.ULeft, p.LRight, p.URight}
}

// ParamsFromVector is the inverse of ShapeParameters.Vector.
// It panics if x does not hold exactly NumParams values.
func ParamsFromVector(x []float64) ShapeParameters {
	if len(x) != NumParams {
		panic(fmt.Sprintf("kernel: expected %d parameters, got %d", NumParams, len(x)))
	}
	return ShapeParameters{
		Alpha:  x[0],
		LLeft:  x[1],
		ULeft:  x[2],
		LRight: x[3],
		URight: x[4],
	}
}

// Validate checks that the parameters describe a well-formed kernel:
// all values finite, positive steepness on both sides, and LLeft <= LRight.
// The optimizer works unconstrained, so fitted parameters are not required
// to pass Validate; callers decide what to do with a result that does not.
func (p ShapeParameters) Validate() error {
	for i, v := range p.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %d is not finite: %v", i, v)
		}
	}
	if p.ULeft <= 0 {
		return fmt.Errorf("u_left must be positive, got %g", p.ULeft)
	}
	if p.URight <= 0 {
		return fmt.Errorf("u_right must be positive, got %g", p.URight)
	}
	if p.LLeft > p.LRight {
		return fmt.Errorf("l_left (%g) must not exceed l_right (%g)", p.LLeft, p.LRight)
	}
	return nil
}

// Biomass returns the shape of the biomass-weighted density. Weighting by
// prey mass shifts the exponential tilt by exactly one unit; the edges are
// shared with the number-weighted fit.
func (p ShapeParameters) Biomass() ShapeParameters {
	b := p
	b.Alpha = p.Alpha - 1
	return b
}

// String formats the parameters for logs and error messages.
func (p ShapeParameters) String() string {
	return fmt.Sprintf("alpha=%g l_left=%g u_left=%g l_right=%g u_right=%g",
		p.Alpha, p.LLeft, p.ULeft, p.LRight, p.URight)
}

// LogShape returns the natural log of Shape(l, p). The two logistic
// denominators are evaluated as softplus terms so that |l| far outside
// [LLeft, LRight] never overflows to Inf/Inf.
func LogShape(l float64, p ShapeParameters) float64 {
	return p.Alpha*l - softplus(p.ULeft*(p.LLeft-l)) - softplus(p.URight*(l-p.LRight))
}

// Shape evaluates the unnormalized kernel shape
//
//	exp(alpha*l) / (1 + exp(u_left*(l_left-l))) / (1 + exp(u_right*(l-l_right)))
func Shape(l float64, p ShapeParameters) float64 {
	return math.Exp(LogShape(l, p))
}

// softplus computes log(1 + exp(x)) without overflow.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
