package fit

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/samples"
)

// BatchResult holds the per-species outcome of a batch: a FitResult for every
// species that succeeded and an error for every species that did not.
type BatchResult struct {
	Fits     map[string]FitResult
	Failures map[string]error
}

// NewBatchResult returns an empty result.
func NewBatchResult() *BatchResult {
	return &BatchResult{
		Fits:     make(map[string]FitResult),
		Failures: make(map[string]error),
	}
}

// AddFailure records err for speciesID, replacing any fit for it.
func (b *BatchResult) AddFailure(speciesID string, err error) {
	delete(b.Fits, speciesID)
	b.Failures[speciesID] = err
}

// SpeciesIDs returns every species in the batch, successful or not, in
// ascending order.
func (b *BatchResult) SpeciesIDs() []string {
	all := make(map[string]struct{}, len(b.Fits)+len(b.Failures))
	for id := range b.Fits {
		all[id] = struct{}{}
	}
	for id := range b.Failures {
		all[id] = struct{}{}
	}
	return samples.SortedKeys(all)
}

// FitBatch fits every sample independently. With more than one worker,
// species are fitted concurrently; the result does not depend on the worker
// count. A failing species is recorded in Failures and never stops the
// others. The returned error is non-nil only when ctx is cancelled, in which
// case the partial result is still returned and every species that never
// started is listed in Failures with an error wrapping the context error.
func (f *Fitter) FitBatch(ctx context.Context, batch map[string]samples.WeightedSample) (*BatchResult, error) {
	ids := samples.SortedKeys(batch)
	fits := make([]FitResult, len(ids))
	errs := make([]error, len(ids))
	done := make([]bool, len(ids))

	workers := f.opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := batch[id]
			if s.SpeciesID == "" {
				s.SpeciesID = id
			}
			fits[i], errs[i] = f.Fit(s)
			done[i] = true
			return nil
		})
	}
	waitErr := g.Wait()

	skipped := waitErr
	if skipped == nil {
		skipped = ctx.Err()
	}
	out := NewBatchResult()
	for i, id := range ids {
		if !done[i] {
			out.Failures[id] = fmt.Errorf("species %q not fitted: %w", id, skipped)
			continue
		}
		if errs[i] != nil {
			out.Failures[id] = errs[i]
			continue
		}
		out.Fits[id] = fits[i]
	}
	diagf("batch: %d species, %d fitted, %d failed", len(ids), len(out.Fits), len(out.Failures))
	return out, waitErr
}

// FitObservations runs the whole pipeline over raw observations: drop
// records with a non-positive mass ratio, restrict to the requested species
// (all when empty), weigh each species, and fit the batch. Species that are
// missing or fail weighing are reported as failures next to the fits.
func (f *Fitter) FitObservations(ctx context.Context, obs []samples.Observation, species []string) (*BatchResult, error) {
	kept, dropped := samples.FilterPositiveRatio(obs)
	if dropped > 0 {
		diagf("dropped %d of %d observations with a non-positive mass ratio", dropped, len(obs))
	}
	kept, missing := samples.RestrictSpecies(kept, species)
	weighted, weighErrs := samples.WeighAll(kept)

	out, err := f.FitBatch(ctx, weighted)
	for id, e := range missing {
		out.AddFailure(id, e)
	}
	for id, e := range weighErrs {
		out.AddFailure(id, e)
	}
	return out, err
}

// FitRow is one line of the species-keyed fit table. Exactly one of Params
// and Error is set.
type FitRow struct {
	SpeciesID string                  `json:"species_id"`
	Params    *kernel.ShapeParameters `json:"params,omitempty"`
	ErrorKind string                  `json:"error_kind,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// CoefficientRow is one line of the species-keyed kernel table. Exactly one
// of Coefficients and Error is set.
type CoefficientRow struct {
	SpeciesID    string                     `json:"species_id"`
	Coefficients *kernel.KernelCoefficients `json:"coefficients,omitempty"`
	ErrorKind    string                     `json:"error_kind,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

// FitTable returns one row per species, in species order, with the fitted
// parameters or the failure.
func (b *BatchResult) FitTable() []FitRow {
	ids := b.SpeciesIDs()
	rows := make([]FitRow, 0, len(ids))
	for _, id := range ids {
		row := FitRow{SpeciesID: id}
		if err, ok := b.Failures[id]; ok {
			row.ErrorKind, row.Error = ErrorKind(err), err.Error()
		} else {
			p := b.Fits[id].Params
			row.Params = &p
		}
		rows = append(rows, row)
	}
	return rows
}

// CoefficientTable returns one row per species, in species order, with the
// kernel coefficients for lambda or the failure.
func (b *BatchResult) CoefficientTable(lambda float64) []CoefficientRow {
	ids := b.SpeciesIDs()
	rows := make([]CoefficientRow, 0, len(ids))
	for _, id := range ids {
		row := CoefficientRow{SpeciesID: id}
		if err, ok := b.Failures[id]; ok {
			row.ErrorKind, row.Error = ErrorKind(err), err.Error()
		} else {
			c := b.Fits[id].Coefficients(lambda)
			row.Coefficients = &c
		}
		rows = append(rows, row)
	}
	return rows
}
