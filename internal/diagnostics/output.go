package diagnostics

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteHistogramCSV writes one row per bin: range_start, count_density,
// biomass_density.
func WriteHistogramCSV(w io.Writer, h Histogram) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"range_start", "count_density", "biomass_density"}); err != nil {
		return err
	}
	for _, b := range h.Bins {
		if err := cw.Write([]string{formatFloat(b.RangeStart), formatFloat(b.CountDensity), formatFloat(b.BiomassDensity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReportCSV writes the binned empirical densities next to the fitted
// densities at each bin centre.
func WriteReportCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	header := []string{"range_start", "center", "count_density", "fitted_count_density", "biomass_density", "fitted_biomass_density"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range r.Bins {
		rec := []string{
			formatFloat(b.RangeStart),
			formatFloat(b.Center),
			formatFloat(b.CountDensity),
			formatFloat(b.FittedCountDensity),
			formatFloat(b.BiomassDensity),
			formatFloat(b.FittedBiomassDensity),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
