package samples

import (
	"fmt"
	"math"
	"sort"
)

// Observation is one predator/prey feeding record.
type Observation struct {
	SpeciesID    string  `json:"species_id"`
	PredatorMass float64 `json:"predator_mass"`
	PreyMass     float64 `json:"prey_mass"`
	// PreyCount is the number of prey items the record stands for and must
	// be set: zero is a real count that contributes no weight, and a species
	// whose counts are all zero is a DataError. NewObservation and the
	// readers default it to 1.
	PreyCount float64 `json:"prey_count"`
	// L is a precomputed log mass ratio. Zero means "derive from the masses";
	// a genuine ratio of zero is excluded by FilterPositiveRatio anyway.
	L float64 `json:"l,omitempty"`
}

// NewObservation returns a record of a single prey item.
func NewObservation(speciesID string, predatorMass, preyMass float64) Observation {
	return Observation{SpeciesID: speciesID, PredatorMass: predatorMass, PreyMass: preyMass, PreyCount: 1}
}

// LogRatio returns log(PredatorMass/PreyMass), or the precomputed L.
func (o Observation) LogRatio() float64 {
	if o.L != 0 {
		return o.L
	}
	return math.Log(o.PredatorMass / o.PreyMass)
}

// validate checks the fields the Sample Weighter relies on.
func (o Observation) validate() error {
	if !(o.PreyMass > 0) || math.IsInf(o.PreyMass, 0) {
		return fmt.Errorf("prey mass must be finite and positive, got %g", o.PreyMass)
	}
	if o.PreyCount < 0 || math.IsNaN(o.PreyCount) || math.IsInf(o.PreyCount, 0) {
		return fmt.Errorf("prey count must be finite and non-negative, got %g", o.PreyCount)
	}
	if l := o.LogRatio(); math.IsNaN(l) || math.IsInf(l, 0) {
		return fmt.Errorf("log mass ratio is not finite (predator mass %g)", o.PredatorMass)
	}
	return nil
}

// FilterPositiveRatio returns the observations with a finite log mass ratio
// l > 0, in input order, and the number dropped.
func FilterPositiveRatio(obs []Observation) ([]Observation, int) {
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		l := o.LogRatio()
		if l > 0 && !math.IsInf(l, 0) {
			out = append(out, o)
		}
	}
	return out, len(obs) - len(out)
}

// RestrictSpecies keeps only observations of the requested species. An empty
// request keeps everything. Requested species with no observations are
// returned as DataErrors keyed by species identifier.
func RestrictSpecies(obs []Observation, species []string) ([]Observation, map[string]error) {
	if len(species) == 0 {
		return obs, nil
	}
	want := make(map[string]bool, len(species))
	for _, id := range species {
		want[id] = false
	}
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if _, ok := want[o.SpeciesID]; ok {
			want[o.SpeciesID] = true
			out = append(out, o)
		}
	}
	var missing map[string]error
	for id, seen := range want {
		if seen {
			continue
		}
		if missing == nil {
			missing = make(map[string]error)
		}
		missing[id] = &DataError{SpeciesID: id, Index: -1, Reason: "species has no observations"}
	}
	return out, missing
}

// GroupBySpecies partitions observations by species identifier, keeping
// input order within each group.
func GroupBySpecies(obs []Observation) map[string][]Observation {
	groups := make(map[string][]Observation)
	for _, o := range obs {
		groups[o.SpeciesID] = append(groups[o.SpeciesID], o)
	}
	return groups
}

// SortedKeys returns the keys of a species-keyed map in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
