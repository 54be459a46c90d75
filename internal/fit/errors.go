package fit

import (
	"errors"
	"fmt"

	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/optim"
	"github.com/sizespectrum/kernelfit/internal/samples"
)

// OptimizationError reports that a species could not be fitted: the
// objective was undefined at the starting point, the search ended without
// converging, or the final point was degenerate. Err holds the underlying
// cause, typically a *kernel.ComputationError.
type OptimizationError struct {
	SpeciesID string
	Status    optim.Status
	// Reason is the optimizer's own termination reason, if it ran.
	Reason string
	// Params is the last parameter point reached, or the starting point when
	// the search never started.
	Params kernel.ShapeParameters
	Err    error
}

func (e *OptimizationError) Error() string {
	msg := fmt.Sprintf("species %q: optimization %s", e.SpeciesID, e.Status)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimizationError) Unwrap() error { return e.Err }

// Error kinds used in tables and persisted failure rows.
const (
	KindData         = "data"
	KindComputation  = "computation"
	KindOptimization = "optimization"
	KindOther        = "other"
)

// ErrorKind classifies err into one of the Kind constants. An
// OptimizationError is reported as such even when it wraps a
// ComputationError.
func ErrorKind(err error) string {
	var (
		de *samples.DataError
		oe *OptimizationError
		ce *kernel.ComputationError
	)
	switch {
	case errors.As(err, &de):
		return KindData
	case errors.As(err, &oe):
		return KindOptimization
	case errors.As(err, &ce):
		return KindComputation
	default:
		return KindOther
	}
}
