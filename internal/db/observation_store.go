package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/sizespectrum/kernelfit/internal/samples"
	"github.com/sizespectrum/kernelfit/internal/timeutil"
)

// ObservationStore persists raw feeding observations.
type ObservationStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewObservationStore creates a new ObservationStore. A nil clock uses the
// wall clock.
func NewObservationStore(db *DB, clock timeutil.Clock) *ObservationStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ObservationStore{db: db.DB, clock: clock}
}

// InsertObservations stores obs in one transaction, tagged with source (for
// example the imported file name). Either every record is stored or none.
func (s *ObservationStore) InsertObservations(source string, obs []samples.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	importedAt := timeutil.FormatStamp(timeutil.Stamp(s.clock))
	query := `
		INSERT INTO observations (
			species_id, predator_mass, prey_mass, prey_count, log_ratio, source, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, o := range obs {
			if o.SpeciesID == "" {
				return fmt.Errorf("record %d has no species id", i)
			}
			if _, err := stmt.Exec(o.SpeciesID, o.PredatorMass, o.PreyMass, o.PreyCount, o.L, nullStr(source), importedAt); err != nil {
				return fmt.Errorf("record %d (%s): %w", i, o.SpeciesID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("inserting %d observations: %w", len(obs), err)
	}
	logf("stored %d observations from %q", len(obs), source)
	return nil
}

// ListObservations returns the stored observations of the given species, or
// of every species when none are named, ordered by species and insertion.
func (s *ObservationStore) ListObservations(species ...string) ([]samples.Observation, error) {
	query := `
		SELECT species_id, predator_mass, prey_mass, prey_count, log_ratio
		FROM observations
	`
	args := make([]interface{}, 0, len(species))
	if len(species) > 0 {
		query += "WHERE species_id IN (?" + strings.Repeat(", ?", len(species)-1) + ")\n"
		for _, id := range species {
			args = append(args, id)
		}
	}
	query += "ORDER BY species_id, observation_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing observations: %w", err)
	}
	defer rows.Close()

	var out []samples.Observation
	for rows.Next() {
		var o samples.Observation
		if err := rows.Scan(&o.SpeciesID, &o.PredatorMass, &o.PreyMass, &o.PreyCount, &o.L); err != nil {
			return nil, fmt.Errorf("scanning observation row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SpeciesCounts returns the number of stored observations per species.
func (s *ObservationStore) SpeciesCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT species_id, COUNT(*) FROM observations GROUP BY species_id`)
	if err != nil {
		return nil, fmt.Errorf("counting observations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning species count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// DeleteSpecies removes every observation of speciesID and reports how many
// were removed.
func (s *ObservationStore) DeleteSpecies(speciesID string) (int64, error) {
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM observations WHERE species_id = ?`, speciesID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting observations of %s: %w", speciesID, err)
	}
	return n, nil
}
