package fit

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteFitsCSV writes a fit table with columns species_id, the five shape
// parameters, error_kind, and error. Failed species leave the parameter
// columns empty.
func WriteFitsCSV(w io.Writer, rows []FitRow) error {
	cw := csv.NewWriter(w)
	header := []string{"species_id", "alpha", "l_left", "u_left", "l_right", "u_right", "error_kind", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, len(header))
		rec[0] = r.SpeciesID
		if r.Params != nil {
			for i, v := range r.Params.Vector() {
				rec[1+i] = formatFloat(v)
			}
		}
		rec[6], rec[7] = r.ErrorKind, r.Error
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCoefficientsCSV writes a kernel table with columns species_id,
// kernel_exp, kernel_l_l, kernel_u_l, kernel_l_r, kernel_u_r, error_kind,
// and error, ready to be merged into a species-parameter table.
func WriteCoefficientsCSV(w io.Writer, rows []CoefficientRow) error {
	cw := csv.NewWriter(w)
	header := []string{"species_id", "kernel_exp", "kernel_l_l", "kernel_u_l", "kernel_l_r", "kernel_u_r", "error_kind", "error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, len(header))
		rec[0] = r.SpeciesID
		if c := r.Coefficients; c != nil {
			rec[1] = formatFloat(c.KernelExp)
			rec[2] = formatFloat(c.KernelLL)
			rec[3] = formatFloat(c.KernelUL)
			rec[4] = formatFloat(c.KernelLR)
			rec[5] = formatFloat(c.KernelUR)
		}
		rec[6], rec[7] = r.ErrorKind, r.Error
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
