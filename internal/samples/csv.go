package samples

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Recognised CSV column names. Header matching is case-insensitive.
const (
	ColSpeciesID    = "species_id"
	ColPredatorMass = "predator_mass"
	ColPreyMass     = "prey_mass"
	ColPreyCount    = "prey_count"
	ColL            = "l"
)

// ReadObservationsCSV reads observation records from a header-led CSV table.
// species_id and prey_mass are required. The log mass ratio comes from a
// precomputed l column when present, otherwise predator_mass is required.
// prey_count defaults to 1. Extra columns are ignored. The first malformed
// row aborts the read with its line number.
func ReadObservationsCSV(r io.Reader) ([]Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read csv header: empty input")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{ColSpeciesID, ColPreyMass} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("missing required csv column %q", req)
		}
	}
	_, hasL := cols[ColL]
	if _, ok := cols[ColPredatorMass]; !ok && !hasL {
		return nil, fmt.Errorf("csv needs a %q or %q column", ColPredatorMass, ColL)
	}

	var obs []Observation
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		o, err := parseObservation(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func parseObservation(record []string, cols map[string]int) (Observation, error) {
	get := func(col string) (string, bool) {
		idx, ok := cols[col]
		if !ok || idx >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[idx])
		return v, v != ""
	}
	number := func(col string) (float64, bool, error) {
		s, ok := get(col)
		if !ok {
			return 0, false, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, true, fmt.Errorf("invalid %s %q", col, s)
		}
		return v, true, nil
	}

	id, ok := get(ColSpeciesID)
	if !ok {
		return Observation{}, fmt.Errorf("%s is empty", ColSpeciesID)
	}
	o := NewObservation(id, 0, 0)

	var err error
	if o.PreyMass, ok, err = number(ColPreyMass); err != nil {
		return Observation{}, err
	} else if !ok {
		return Observation{}, fmt.Errorf("%s is empty", ColPreyMass)
	}
	if o.L, _, err = number(ColL); err != nil {
		return Observation{}, err
	}
	var hasPred bool
	if o.PredatorMass, hasPred, err = number(ColPredatorMass); err != nil {
		return Observation{}, err
	}
	if !hasPred && o.L == 0 {
		return Observation{}, fmt.Errorf("row has neither %s nor %s", ColPredatorMass, ColL)
	}
	if c, ok, err := number(ColPreyCount); err != nil {
		return Observation{}, err
	} else if ok {
		o.PreyCount = c
	}
	return o, nil
}

// WriteObservationsCSV writes observations with the columns read by
// ReadObservationsCSV.
func WriteObservationsCSV(w io.Writer, obs []Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColSpeciesID, ColPredatorMass, ColPreyMass, ColPreyCount, ColL}); err != nil {
		return err
	}
	for _, o := range obs {
		row := []string{
			o.SpeciesID,
			formatFloat(o.PredatorMass),
			formatFloat(o.PreyMass),
			formatFloat(o.PreyCount),
			"",
		}
		if o.L != 0 {
			row[4] = formatFloat(o.L)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
