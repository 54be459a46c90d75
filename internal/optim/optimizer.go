// Package optim provides unconstrained local minimization behind a small
// interface, so fitting code never depends on a particular numerical
// library. The implementations here are backed by gonum/optimize.
package optim

import (
	"errors"
	"fmt"
	"math"
)

// Objective evaluates the function to minimize at x. An error marks x as
// infeasible: the objective is undefined there. Objective must not modify x.
type Objective func(x []float64) (float64, error)

// Status summarises how a minimization ended.
type Status int

const (
	// StatusConverged means a convergence criterion (gradient norm or lack of
	// function improvement) was met.
	StatusConverged Status = iota
	// StatusIterationLimit means the iteration or evaluation budget ran out
	// before convergence.
	StatusIterationLimit
	// StatusFailed means the method could not make progress and the final
	// location does not satisfy the stall tolerance.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of a minimization.
type Result struct {
	X      []float64
	F      float64
	Status Status
	// Reason is the library's own termination status, kept for diagnostics.
	Reason      string
	Iterations  int
	Evaluations int
	// Rejected counts evaluations at which the objective returned an error
	// and the point was treated as infeasible.
	Rejected int
	// LastErr is the most recent objective error seen during the search.
	LastErr error
}

// Converged reports whether Status is StatusConverged.
func (r Result) Converged() bool { return r.Status == StatusConverged }

// Optimizer minimizes an objective from an initial point.
//
// Minimize returns a non-nil error only when the search cannot start, most
// notably when the objective fails at x0 (an *InitialPointError). Running out
// of budget or stalling is reported through Result.Status.
type Optimizer interface {
	Minimize(obj Objective, x0 []float64) (Result, error)
}

// InitialPointError reports that the objective is undefined or not finite at
// the starting point, so no search was attempted.
type InitialPointError struct {
	X   []float64
	Err error
}

func (e *InitialPointError) Error() string {
	return fmt.Sprintf("objective undefined at initial point %v: %v", e.X, e.Err)
}

func (e *InitialPointError) Unwrap() error { return e.Err }

// ErrEmptyPoint is returned when the initial point has no coordinates.
var ErrEmptyPoint = errors.New("optim: empty initial point")

// Settings bound and tune a minimization.
type Settings struct {
	// MaxIterations caps the number of major iterations. Zero means no cap.
	MaxIterations int `json:"max_iterations"`
	// MaxEvaluations caps objective evaluations. Zero means no cap.
	MaxEvaluations int `json:"max_evaluations"`
	// GradientThreshold stops with convergence once the infinity norm of the
	// gradient falls below it.
	GradientThreshold float64 `json:"gradient_threshold"`
	// FunctionTolerance is the absolute and relative improvement below which
	// an iteration does not count as progress.
	FunctionTolerance float64 `json:"function_tolerance"`
	// ConvergeIterations is the number of consecutive iterations without
	// progress after which the search has converged.
	ConvergeIterations int `json:"converge_iterations"`
	// FDStep is the finite-difference step for numerical gradients. Zero
	// selects the formula default.
	FDStep float64 `json:"fd_step"`
	// StallGradient is the gradient norm under which a stalled line search
	// is still accepted as converged.
	StallGradient float64 `json:"stall_gradient"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:      1000,
		GradientThreshold:  1e-6,
		FunctionTolerance:  1e-10,
		ConvergeIterations: 20,
		StallGradient:      1e-3,
	}
}

// New returns the optimizer registered under method. Supported methods are
// "bfgs" (the default for an empty name) and "nelder-mead".
func New(method string, s Settings) (Optimizer, error) {
	switch method {
	case "", MethodBFGS:
		return &BFGS{Settings: s}, nil
	case MethodNelderMead:
		return &NelderMead{Settings: s}, nil
	default:
		return nil, fmt.Errorf("unknown optimization method %q", method)
	}
}

// Method names accepted by New.
const (
	MethodBFGS       = "bfgs"
	MethodNelderMead = "nelder-mead"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !finite(v) {
			return false
		}
	}
	return true
}
