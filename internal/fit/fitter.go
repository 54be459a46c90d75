// Package fit owns per-species maximum-likelihood fitting of feeding
// kernels.
//
// Responsibilities: building the negative log-likelihood objective for a
// weighted sample, driving an optim.Optimizer from the deterministic initial
// guess, classifying failures, and mapping over a species-keyed batch with
// per-species isolation.
// Key types: Fitter, FitResult, BatchResult, OptimizationError.
//
// Dependency rule: fit may import kernel, optim, and samples. Storage and
// CLI concerns live in db and cmd.
package fit

import (
	"errors"

	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/optim"
	"github.com/sizespectrum/kernelfit/internal/samples"
)

// FitResult is the outcome of a successful fit for one species.
type FitResult struct {
	SpeciesID string                 `json:"species_id"`
	Params    kernel.ShapeParameters `json:"params"`
	Initial   kernel.ShapeParameters `json:"initial"`
	NLL       float64                `json:"nll"`
	// SampleSize is the number of weighted observations fitted.
	SampleSize  int    `json:"sample_size"`
	Iterations  int    `json:"iterations"`
	Evaluations int    `json:"evaluations"`
	Rejected    int    `json:"rejected"`
	Reason      string `json:"reason"`
}

// Coefficients maps the fitted parameters to kernel coefficients.
func (r FitResult) Coefficients(lambda float64) kernel.KernelCoefficients {
	return kernel.MapCoefficients(r.Params, lambda)
}

// Fitter fits the bounded exponential kernel to weighted samples. It holds
// no per-fit state and is safe for concurrent use.
type Fitter struct {
	opts Options
	norm *kernel.Normalizer
	opt  optim.Optimizer
}

// NewFitter validates opts and prepares the normalizer and optimizer.
func NewFitter(opts Options) (*Fitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	norm, err := kernel.NewNormalizer(opts.Support, opts.Panels, opts.Nodes)
	if err != nil {
		return nil, err
	}
	opt, err := optim.New(opts.Method, opts.Optimizer)
	if err != nil {
		return nil, err
	}
	return &Fitter{opts: opts, norm: norm, opt: opt}, nil
}

// Options returns the options the fitter was built with.
func (f *Fitter) Options() Options { return f.opts }

// Normalizer returns the normalizer used for every fit.
func (f *Fitter) Normalizer() *kernel.Normalizer { return f.norm }

// Fit fits s from the deterministic initial guess.
func (f *Fitter) Fit(s samples.WeightedSample) (FitResult, error) {
	if err := s.Validate(); err != nil {
		return FitResult{}, err
	}
	return f.FitFrom(s, InitialGuess(s, f.opts))
}

// FitFrom fits s starting from guess. There is no retry: a failure is
// returned as a *samples.DataError for a bad sample or an
// *OptimizationError otherwise, and repairing it (for example by calling
// FitFrom with another guess) is up to the caller.
func (f *Fitter) FitFrom(s samples.WeightedSample, guess kernel.ShapeParameters) (FitResult, error) {
	if err := s.Validate(); err != nil {
		return FitResult{}, err
	}
	objective := func(x []float64) (float64, error) {
		return kernel.NegLogLikelihood(f.norm, kernel.ParamsFromVector(x), s.L, s.ByNumber)
	}

	res, err := f.opt.Minimize(objective, guess.Vector())
	if err != nil {
		oe := &OptimizationError{SpeciesID: s.SpeciesID, Status: optim.StatusFailed, Params: guess, Err: err}
		var ipe *optim.InitialPointError
		if errors.As(err, &ipe) {
			oe.Reason = "objective undefined at initial point"
			oe.Err = ipe.Err
		}
		opsf("species %q: %v", s.SpeciesID, oe)
		return FitResult{}, oe
	}

	params := kernel.ParamsFromVector(res.X)
	if !res.Converged() {
		oe := &OptimizationError{SpeciesID: s.SpeciesID, Status: res.Status, Reason: res.Reason, Params: params, Err: res.LastErr}
		opsf("species %q: %v", s.SpeciesID, oe)
		return FitResult{}, oe
	}

	// The optimizer only reports a finite value; confirm the final point is
	// a proper density at every sample before handing it out.
	nll, err := kernel.NegLogLikelihood(f.norm, params, s.L, s.ByNumber)
	if err != nil {
		oe := &OptimizationError{SpeciesID: s.SpeciesID, Status: optim.StatusFailed, Reason: "degenerate final point", Params: params, Err: err}
		opsf("species %q: %v", s.SpeciesID, oe)
		return FitResult{}, oe
	}
	if verr := params.Validate(); verr != nil {
		opsf("species %q: fitted kernel is not well formed: %v", s.SpeciesID, verr)
	}

	diagf("species %q: n=%d nll=%.6g iterations=%d evaluations=%d rejected=%d (%s)",
		s.SpeciesID, s.Len(), nll, res.Iterations, res.Evaluations, res.Rejected, res.Reason)
	return FitResult{
		SpeciesID:   s.SpeciesID,
		Params:      params,
		Initial:     guess,
		NLL:         nll,
		SampleSize:  s.Len(),
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Rejected:    res.Rejected,
		Reason:      res.Reason,
	}, nil
}
