// Package diagnostics bins weighted samples into normalized histogram
// densities and compares them against fitted kernels. Nothing here feeds
// back into fitting.
package diagnostics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sizespectrum/kernelfit/internal/samples"
)

// DefaultBinCount is the number of bins used for diagnostic histograms.
const DefaultBinCount = 30

// Bin is one equal-width histogram bin. The densities are normalized so that
// summing density*width over all bins gives one for each weighting scheme.
type Bin struct {
	RangeStart     float64 `json:"range_start"`
	CountDensity   float64 `json:"count_density"`
	BiomassDensity float64 `json:"biomass_density"`
}

// Histogram is the binned view of one species' sample.
type Histogram struct {
	SpeciesID string  `json:"species_id"`
	Width     float64 `json:"width"`
	Bins      []Bin   `json:"bins"`
}

// Center returns the midpoint of bin i.
func (h Histogram) Center(i int) float64 {
	return h.Bins[i].RangeStart + h.Width/2
}

// BinSample bins s into the given number of equal-width bins. The bins are
// centred on an evenly spaced grid from min(l) to max(l), so together they
// cover [min(l) - width/2, max(l) + width/2] with width = (max-min)/(bins-1).
// A sample whose values are all equal gets bins of width one.
func BinSample(s samples.WeightedSample, bins int) (Histogram, error) {
	if bins < 2 {
		return Histogram{}, fmt.Errorf("bin count must be at least 2, got %d", bins)
	}
	if err := s.Validate(); err != nil {
		return Histogram{}, err
	}

	lo, hi := s.MinL(), s.MaxL()
	width := (hi - lo) / float64(bins-1)
	if width == 0 {
		width = 1
	}
	// Equal to [lo - width/2, hi + width/2], and still bins*width wide when
	// the span is degenerate.
	mid, half := (lo+hi)/2, width*float64(bins)/2
	dividers := floats.Span(make([]float64, bins+1), mid-half, mid+half)

	// stat.Histogram needs the values sorted, so permute the weights along.
	l := append([]float64(nil), s.L...)
	idx := make([]int, len(l))
	floats.Argsort(l, idx)
	byNumber := make([]float64, len(l))
	byBiomass := make([]float64, len(l))
	for i, j := range idx {
		byNumber[i] = s.ByNumber[j]
		byBiomass[i] = s.ByBiomass[j]
	}

	counts := stat.Histogram(nil, dividers, l, byNumber)
	biomass := stat.Histogram(nil, dividers, l, byBiomass)
	countTotal := floats.Sum(counts) * width
	biomassTotal := floats.Sum(biomass) * width

	h := Histogram{SpeciesID: s.SpeciesID, Width: width, Bins: make([]Bin, bins)}
	for i := range h.Bins {
		h.Bins[i] = Bin{
			RangeStart:     dividers[i],
			CountDensity:   counts[i] / countTotal,
			BiomassDensity: biomass[i] / biomassTotal,
		}
	}
	return h, nil
}
