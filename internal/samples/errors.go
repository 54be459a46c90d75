package samples

import "fmt"

// DataError reports an empty or malformed per-species sample: no
// observations, zero total weight, or a record that cannot be weighted.
type DataError struct {
	SpeciesID string
	// Index is the offending record within the species group, or -1 when the
	// problem concerns the group as a whole.
	Index  int
	Reason string
}

func (e *DataError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("species %q: record %d: %s", e.SpeciesID, e.Index, e.Reason)
	}
	return fmt.Sprintf("species %q: %s", e.SpeciesID, e.Reason)
}
