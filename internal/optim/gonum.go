package optim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// BFGS minimizes with the quasi-Newton BFGS method using a numerical
// central-difference gradient. Steps are chosen by bisection until the strong
// Wolfe conditions hold, which keeps the inverse Hessian update positive
// definite. An infeasible trial point evaluates to +Inf and becomes the upper
// end of the bracket, so the line search backs away from degenerate regions
// on its own.
type BFGS struct {
	Settings Settings
}

// Minimize implements Optimizer.
func (b *BFGS) Minimize(obj Objective, x0 []float64) (Result, error) {
	method := &optimize.BFGS{
		Linesearcher:      &optimize.Bisection{},
		GradStopThreshold: b.Settings.GradientThreshold,
	}
	return run(obj, x0, b.Settings, method, true)
}

// NelderMead minimizes with the derivative-free downhill simplex method.
type NelderMead struct {
	Settings Settings
}

// Minimize implements Optimizer.
func (n *NelderMead) Minimize(obj Objective, x0 []float64) (Result, error) {
	return run(obj, x0, n.Settings, &optimize.NelderMead{}, false)
}

// evaluator adapts an Objective to gonum's error-free function signature and
// keeps count of rejected points. gonum runs evaluations on a single worker
// goroutine when Concurrent is unset, and Minimize does not return until that
// worker is finished, so the counters need no locking.
type evaluator struct {
	obj      Objective
	evals    int
	rejected int
	lastErr  error
	// gradFailed is set when the most recent gradient had no finite
	// difference formula available and was zeroed.
	gradFailed bool
}

func (e *evaluator) value(x []float64) float64 {
	e.evals++
	v, err := e.obj(x)
	if err != nil {
		e.rejected++
		e.lastErr = err
		return math.Inf(1)
	}
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// gradient returns a numerical gradient. Central differences are tried
// first; next to an infeasible region one side of the stencil is +Inf, so
// one-sided formulas are tried before giving up. A gradient that stays
// non-finite is zeroed so the line search cannot loop on NaN steps, and the
// point is flagged so it is never reported as converged.
func (e *evaluator) gradient(step float64) func(grad, x []float64) {
	formulas := []fd.Formula{fd.Central, fd.Forward, fd.Backward}
	return func(grad, x []float64) {
		for _, f := range formulas {
			fd.Gradient(grad, e.value, x, &fd.Settings{Formula: f, Step: step})
			if allFinite(grad) {
				e.gradFailed = false
				return
			}
		}
		e.gradFailed = true
		for i := range grad {
			grad[i] = 0
		}
	}
}

func run(obj Objective, x0 []float64, s Settings, method optimize.Method, useGrad bool) (Result, error) {
	if len(x0) == 0 {
		return Result{}, ErrEmptyPoint
	}
	start := append([]float64(nil), x0...)

	f0, err := obj(start)
	if err != nil {
		return Result{X: start, F: math.NaN(), Status: StatusFailed, Evaluations: 1, Rejected: 1, LastErr: err},
			&InitialPointError{X: start, Err: err}
	}
	if !finite(f0) {
		return Result{X: start, F: f0, Status: StatusFailed, Evaluations: 1},
			&InitialPointError{X: start, Err: fmt.Errorf("objective is not finite: %g", f0)}
	}

	ev := &evaluator{obj: obj, evals: 1}
	problem := optimize.Problem{Func: ev.value}
	if useGrad {
		problem.Grad = ev.gradient(s.FDStep)
	}
	settings := &optimize.Settings{
		GradientThreshold: s.GradientThreshold,
		MajorIterations:   s.MaxIterations,
		FuncEvaluations:   s.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.FunctionTolerance,
			Relative:   s.FunctionTolerance,
			Iterations: s.ConvergeIterations,
		},
	}

	res, err := optimize.Minimize(problem, start, settings, method)
	out := Result{X: start, F: f0}
	if res != nil {
		out.X = append([]float64(nil), res.X...)
		out.F = res.F
		out.Reason = res.Status.String()
		out.Iterations = res.MajorIterations
	}
	out.Status = classify(res, err, ev, s)
	if err != nil && out.Reason == "" {
		out.Reason = err.Error()
	}
	out.Evaluations = ev.evals
	out.Rejected = ev.rejected
	out.LastErr = ev.lastErr
	return out, nil
}

func classify(res *optimize.Result, err error, ev *evaluator, s Settings) Status {
	if res == nil || !finite(res.F) || ev.gradFailed {
		return StatusFailed
	}
	if err != nil {
		if stalled(err) && stallAccepted(res, ev, s) {
			return StatusConverged
		}
		return StatusFailed
	}
	switch res.Status {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return StatusConverged
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit, optimize.RuntimeLimit:
		return StatusIterationLimit
	default:
		return StatusFailed
	}
}

// stalled reports whether err is a line-search failure, which near a
// minimum usually means the numerical gradient is below the noise floor of
// the objective rather than a real failure.
func stalled(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

func stallAccepted(res *optimize.Result, ev *evaluator, s Settings) bool {
	if s.StallGradient <= 0 {
		return false
	}
	grad := make([]float64, len(res.X))
	ev.gradient(s.FDStep)(grad, res.X)
	if ev.gradFailed {
		return false
	}
	return floats.Norm(grad, math.Inf(1)) <= s.StallGradient
}
