package fit

import (
	"fmt"

	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/optim"
	"github.com/sizespectrum/kernelfit/internal/samples"
)

// Options configures a Fitter.
type Options struct {
	Support kernel.Support
	// Panels and Nodes define the composite Gauss-Legendre rule of the
	// normalizer. Non-positive values select the kernel defaults.
	Panels int
	Nodes  int

	// Method names the optimizer (see optim.New).
	Method    string
	Optimizer optim.Settings

	// Initial guess values that do not come from the data.
	InitialAlpha  float64
	InitialULeft  float64
	InitialURight float64

	// Workers bounds how many species FitBatch fits at once.
	Workers int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Support:       kernel.DefaultSupport,
		Panels:        kernel.DefaultPanels,
		Nodes:         kernel.DefaultNodes,
		Method:        optim.MethodBFGS,
		Optimizer:     optim.DefaultSettings(),
		InitialAlpha:  -0.5,
		InitialULeft:  5,
		InitialURight: 5,
		Workers:       1,
	}
}

// Validate checks the options that NewFitter cannot repair.
func (o Options) Validate() error {
	if err := o.Support.Validate(); err != nil {
		return err
	}
	if !(o.InitialULeft > 0) || !(o.InitialURight > 0) {
		return fmt.Errorf("initial steepness must be positive, got u_left=%g u_right=%g", o.InitialULeft, o.InitialURight)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", o.Workers)
	}
	return nil
}

// InitialGuess returns the deterministic starting point for s: the
// configured alpha and steepness, with the edges at the extremes of the
// observed log mass ratios. s must not be empty.
func InitialGuess(s samples.WeightedSample, o Options) kernel.ShapeParameters {
	return kernel.ShapeParameters{
		Alpha:  o.InitialAlpha,
		LLeft:  s.MinL(),
		ULeft:  o.InitialULeft,
		LRight: s.MaxL(),
		URight: o.InitialURight,
	}
}
