package fit

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/samples"
)

var other = kernel.ShapeParameters{Alpha: -0.2, LLeft: 2, ULeft: 4, LRight: 6, URight: 3}

// wideObservations spans ratios so far apart that the initial density
// underflows to zero at the largest one.
func wideObservations(species string) []samples.Observation {
	var obs []samples.Observation
	for _, l := range []float64{1, 2, 3, 2000} {
		obs = append(obs, samples.Observation{SpeciesID: species, PreyMass: 1, PreyCount: 1, L: l})
	}
	return obs
}

func TestFitBatch_IsolatesFailures(t *testing.T) {
	wide, err := samples.Weigh("wide", wideObservations("wide"))
	require.NoError(t, err)
	batch := map[string]samples.WeightedSample{
		"cod":   sampleFrom(t, "cod", truth, 800),
		"empty": {SpeciesID: "empty"},
		"wide":  wide,
		"hake":  sampleFrom(t, "hake", other, 800),
	}

	f := newFitter(t, nil)
	res, err := f.FitBatch(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, []string{"cod", "empty", "hake", "wide"}, res.SpeciesIDs())
	assert.Len(t, res.Fits, 2)
	assert.Contains(t, res.Fits, "cod")
	assert.Contains(t, res.Fits, "hake")
	require.Len(t, res.Failures, 2)
	assert.Equal(t, KindData, ErrorKind(res.Failures["empty"]))
	assert.Equal(t, KindOptimization, ErrorKind(res.Failures["wide"]))

	var ce *kernel.ComputationError
	require.ErrorAs(t, res.Failures["wide"], &ce)
	assert.Equal(t, 2000.0, ce.L)

	// Each successful species matches its own independent fit.
	solo, err := f.Fit(batch["hake"])
	require.NoError(t, err)
	if diff := cmp.Diff(solo, res.Fits["hake"]); diff != "" {
		t.Errorf("batch fit differs from single fit (-single +batch):\n%s", diff)
	}
}

func TestFitBatch_WorkerCountDoesNotChangeResults(t *testing.T) {
	batch := map[string]samples.WeightedSample{
		"a": sampleFrom(t, "a", truth, 400),
		"b": sampleFrom(t, "b", other, 400),
		"c": sampleFrom(t, "c", truth, 250),
		"d": sampleFrom(t, "d", other, 250),
	}
	serial, err := newFitter(t, nil).FitBatch(context.Background(), batch)
	require.NoError(t, err)
	parallel, err := newFitter(t, func(o *Options) { o.Workers = 4 }).FitBatch(context.Background(), batch)
	require.NoError(t, err)

	if diff := cmp.Diff(serial.Fits, parallel.Fits); diff != "" {
		t.Errorf("results depend on worker count (-serial +parallel):\n%s", diff)
	}
	assert.Empty(t, serial.Failures)
}

func TestFitObservations(t *testing.T) {
	var obs []samples.Observation
	obs = append(obs, observationsFrom(t, "cod", truth, 600)...)
	obs = append(obs, wideObservations("wide")...)
	obs = append(obs,
		samples.Observation{SpeciesID: "zero", PredatorMass: 10, PreyMass: 1, PreyCount: 0},
		samples.Observation{SpeciesID: "cod", PredatorMass: 1, PreyMass: 10, PreyCount: 1},
		samples.Observation{SpeciesID: "skipped", PredatorMass: 10, PreyMass: 1, PreyCount: 1},
	)

	f := newFitter(t, nil)
	res, err := f.FitObservations(context.Background(), obs, []string{"cod", "wide", "zero", "ghost"})
	require.NoError(t, err)

	rows := res.FitTable()
	require.Len(t, rows, 4)
	kinds := map[string]string{}
	for _, r := range rows {
		kinds[r.SpeciesID] = r.ErrorKind
		if r.ErrorKind == "" {
			require.NotNil(t, r.Params, "species %s", r.SpeciesID)
		} else {
			assert.Nil(t, r.Params)
			assert.NotEmpty(t, r.Error)
		}
	}
	assert.Equal(t, map[string]string{
		"cod":   "",
		"ghost": KindData,
		"wide":  KindOptimization,
		"zero":  KindData,
	}, kinds)
	assert.Equal(t, 600, res.Fits["cod"].SampleSize, "the negative-ratio record is filtered out")

	coeffs := res.CoefficientTable(2.05)
	require.Len(t, coeffs, 4)
	assert.Equal(t, "cod", coeffs[0].SpeciesID)
	require.NotNil(t, coeffs[0].Coefficients)
	assert.InDelta(t, res.Fits["cod"].Params.Alpha+4.0/3.0-2.05, coeffs[0].Coefficients.KernelExp, 1e-12)
}

func TestBatchResult_AddFailure(t *testing.T) {
	b := NewBatchResult()
	b.Fits["cod"] = FitResult{SpeciesID: "cod"}
	b.AddFailure("cod", &samples.DataError{SpeciesID: "cod", Index: -1, Reason: "late"})
	assert.Empty(t, b.Fits)
	assert.Equal(t, []string{"cod"}, b.SpeciesIDs())
}

func TestWriteCSV(t *testing.T) {
	b := NewBatchResult()
	b.Fits["cod"] = FitResult{SpeciesID: "cod", Params: kernel.ShapeParameters{Alpha: -0.5, LLeft: 1, ULeft: 2, LRight: 3.5, URight: 4}}
	b.AddFailure("hake", &samples.DataError{SpeciesID: "hake", Index: -1, Reason: "species has no observations"})

	t.Run("fits", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFitsCSV(&buf, b.FitTable()))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"species_id", "alpha", "l_left", "u_left", "l_right", "u_right", "error_kind", "error"}, records[0])
		assert.Equal(t, []string{"cod", "-0.5", "1", "2", "3.5", "4", "", ""}, records[1])
		assert.Equal(t, "hake", records[2][0])
		assert.Equal(t, "", records[2][1])
		assert.Equal(t, KindData, records[2][6])
		assert.True(t, strings.Contains(records[2][7], "no observations"))
	})

	t.Run("coefficients", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteCoefficientsCSV(&buf, b.CoefficientTable(2.05)))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "kernel_exp", records[0][1])
		assert.True(t, strings.HasPrefix(records[1][1], "-1.21666666666"), "kernel_exp = %s", records[1][1])
		assert.Equal(t, []string{"1", "2", "3.5", "4"}, records[1][2:6])
		assert.Equal(t, KindData, records[2][6])
	})
}
