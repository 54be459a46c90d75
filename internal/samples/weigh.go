package samples

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// WeightTolerance is how far each weight slice may sum from one.
const WeightTolerance = 1e-9

// WeightedSample is the per-species input to the fitter: log mass ratios
// with their weights by number and by biomass. Each weight slice sums to one.
type WeightedSample struct {
	SpeciesID string    `json:"species_id"`
	L         []float64 `json:"l"`
	ByNumber  []float64 `json:"by_number"`
	ByBiomass []float64 `json:"by_biomass"`
}

// Len returns the number of samples.
func (s WeightedSample) Len() int { return len(s.L) }

// MinL returns the smallest log mass ratio. It panics on an empty sample.
func (s WeightedSample) MinL() float64 { return floats.Min(s.L) }

// MaxL returns the largest log mass ratio. It panics on an empty sample.
func (s WeightedSample) MaxL() float64 { return floats.Max(s.L) }

// Validate checks the WeightedSample invariants: non-empty, parallel slices,
// finite values, and both weight slices summing to one.
func (s WeightedSample) Validate() error {
	n := len(s.L)
	if n == 0 {
		return &DataError{SpeciesID: s.SpeciesID, Index: -1, Reason: "empty sample"}
	}
	if len(s.ByNumber) != n || len(s.ByBiomass) != n {
		return &DataError{SpeciesID: s.SpeciesID, Index: -1,
			Reason: fmt.Sprintf("length mismatch: %d values, %d number weights, %d biomass weights", n, len(s.ByNumber), len(s.ByBiomass))}
	}
	if floats.HasNaN(s.L) || floats.HasNaN(s.ByNumber) || floats.HasNaN(s.ByBiomass) {
		return &DataError{SpeciesID: s.SpeciesID, Index: -1, Reason: "sample contains NaN"}
	}
	if sum := floats.Sum(s.ByNumber); !scalar.EqualWithinAbs(sum, 1, WeightTolerance) {
		return &DataError{SpeciesID: s.SpeciesID, Index: -1, Reason: fmt.Sprintf("number weights sum to %g", sum)}
	}
	if sum := floats.Sum(s.ByBiomass); !scalar.EqualWithinAbs(sum, 1, WeightTolerance) {
		return &DataError{SpeciesID: s.SpeciesID, Index: -1, Reason: fmt.Sprintf("biomass weights sum to %g", sum)}
	}
	return nil
}

// Weigh normalizes the prey counts of one species group into weights:
//
//	ByNumber[i]  = count[i] / sum(count)
//	ByBiomass[i] = count[i]*prey_mass[i] / sum(count[j]*prey_mass[j])
//
// It returns a *DataError when the group is empty, a record belongs to
// another species or is malformed, or either total is zero.
func Weigh(speciesID string, obs []Observation) (WeightedSample, error) {
	if len(obs) == 0 {
		return WeightedSample{}, &DataError{SpeciesID: speciesID, Index: -1, Reason: "species has no observations"}
	}
	s := WeightedSample{
		SpeciesID: speciesID,
		L:         make([]float64, len(obs)),
		ByNumber:  make([]float64, len(obs)),
		ByBiomass: make([]float64, len(obs)),
	}
	for i, o := range obs {
		if o.SpeciesID != speciesID {
			return WeightedSample{}, &DataError{SpeciesID: speciesID, Index: i,
				Reason: fmt.Sprintf("record belongs to species %q", o.SpeciesID)}
		}
		if err := o.validate(); err != nil {
			return WeightedSample{}, &DataError{SpeciesID: speciesID, Index: i, Reason: err.Error()}
		}
		s.L[i] = o.LogRatio()
		s.ByNumber[i] = o.PreyCount
		s.ByBiomass[i] = o.PreyCount * o.PreyMass
	}

	count := floats.Sum(s.ByNumber)
	if count == 0 {
		return WeightedSample{}, &DataError{SpeciesID: speciesID, Index: -1, Reason: "total prey count is zero"}
	}
	biomass := floats.Sum(s.ByBiomass)
	if !(biomass > 0) || math.IsInf(biomass, 0) {
		return WeightedSample{}, &DataError{SpeciesID: speciesID, Index: -1,
			Reason: fmt.Sprintf("total prey biomass is not finite and positive: %g", biomass)}
	}
	floats.Scale(1/count, s.ByNumber)
	floats.Scale(1/biomass, s.ByBiomass)
	return s, nil
}

// WeighAll groups observations by species and weighs each group on its own.
// A failing species is reported in the error map and never prevents the
// others from being weighed.
func WeighAll(obs []Observation) (map[string]WeightedSample, map[string]error) {
	groups := GroupBySpecies(obs)
	out := make(map[string]WeightedSample, len(groups))
	errs := make(map[string]error)
	for id, group := range groups {
		s, err := Weigh(id, group)
		if err != nil {
			errs[id] = err
			continue
		}
		out[id] = s
	}
	return out, errs
}
