package kernel

import "fmt"

// ComputationError reports that the normalized density is degenerate for
// Params: the normalizing integral is not a finite positive number, or the
// density is non-positive (or non-finite) at an evaluation point. It marks an
// invalid parameter region, not a problem with the caller's data.
type ComputationError struct {
	Params ShapeParameters
	// L is the offending evaluation point. It is NaN when the failure is in
	// the normalizing integral rather than at a point.
	L float64
	// Value is the offending density value, or the integral when L is NaN.
	Value  float64
	Reason string
}

func (e *ComputationError) Error() string {
	if e.L != e.L {
		return fmt.Sprintf("degenerate density (%s): %s: Z=%g", e.Params, e.Reason, e.Value)
	}
	return fmt.Sprintf("degenerate density (%s): %s at l=%g: density=%g", e.Params, e.Reason, e.L, e.Value)
}
