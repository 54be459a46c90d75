package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizespectrum/kernelfit/internal/fit"
	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/optim"
	"github.com/sizespectrum/kernelfit/internal/samples"
	"github.com/sizespectrum/kernelfit/internal/testutil"
	"github.com/sizespectrum/kernelfit/internal/timeutil"
)

var codParams = kernel.ShapeParameters{Alpha: -0.5, LLeft: 1, ULeft: 2, LRight: 3.5, URight: 4}

func sampleBatch() *fit.BatchResult {
	b := fit.NewBatchResult()
	b.Fits["cod"] = fit.FitResult{SpeciesID: "cod", Params: codParams, NLL: 1.75, SampleSize: 120, Iterations: 31, Evaluations: 212}
	b.AddFailure("hake", &samples.DataError{SpeciesID: "hake", Index: -1, Reason: "species has no observations"})
	b.AddFailure("ling", &fit.OptimizationError{SpeciesID: "ling", Status: optim.StatusIterationLimit, Reason: "IterationLimit"})
	return b
}

func TestFitRunStore_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	store := NewFitRunStore(db, clock)

	run, err := store.CreateRun("bfgs", 2.05, json.RawMessage(`{"lambda":2.05}`))
	require.NoError(t, err)
	_, err = uuid.Parse(run.RunID)
	require.NoError(t, err, "run IDs are UUIDs")
	assert.Equal(t, RunStatusRunning, run.Status)

	clock.Advance(42 * time.Second)
	require.NoError(t, store.RecordBatch(run.RunID, sampleBatch()))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SpeciesFitted)
	assert.Equal(t, 2, got.SpeciesFailed)
	assert.Equal(t, 2.05, got.Lambda)
	assert.JSONEq(t, `{"lambda":2.05}`, string(got.Config))
	assert.True(t, got.StartedAt.Equal(start))
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 42*time.Second, got.CompletedAt.Sub(got.StartedAt))

	fits, err := store.SpeciesFits(run.RunID)
	require.NoError(t, err)
	require.Len(t, fits, 3)
	assert.Equal(t, "cod", fits[0].SpeciesID)
	require.NotNil(t, fits[0].Params)
	assert.Equal(t, codParams, *fits[0].Params)
	assert.Equal(t, 120, fits[0].SampleSize)
	testutil.AssertWithin(t, "nll", fits[0].NLL, 1.75, 0)

	assert.Nil(t, fits[1].Params)
	assert.Equal(t, fit.KindData, fits[1].ErrorKind)
	assert.Contains(t, fits[1].Error, "no observations")
	assert.Equal(t, fit.KindOptimization, fits[2].ErrorKind)

	row := fits[2].FitRow()
	assert.Equal(t, "ling", row.SpeciesID)
	assert.Nil(t, row.Params)
}

func TestFitRunStore_Coefficients(t *testing.T) {
	db := newTestDB(t)
	store := NewFitRunStore(db, nil)

	run, err := store.CreateRun("bfgs", 2.05, nil)
	require.NoError(t, err)
	require.NoError(t, store.RecordBatch(run.RunID, sampleBatch()))

	rows, err := store.Coefficients(run.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NotNil(t, rows[0].Coefficients)
	testutil.AssertWithin(t, "kernel_exp", rows[0].Coefficients.KernelExp, -1.2166666666666666, 1e-12)
	assert.Equal(t, 3.5, rows[0].Coefficients.KernelLR)
	assert.Nil(t, rows[1].Coefficients)
	assert.Equal(t, fit.KindData, rows[1].ErrorKind)

	_, err = store.Coefficients("no-such-run")
	testutil.AssertError(t, err)
}

func TestFitRunStore_LatestAndList(t *testing.T) {
	db := newTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewFitRunStore(db, clock)

	latest, err := store.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest, "no runs yet")

	first, err := store.CreateRun("bfgs", 2.05, nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := store.CreateRun("nelder-mead", 2.0, nil)
	require.NoError(t, err)

	latest, err = store.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.RunID, latest.RunID)

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
	assert.Empty(t, runs[1].Config)

	missing, err := store.GetRun("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFitRunStore_FailRun(t *testing.T) {
	db := newTestDB(t)
	store := NewFitRunStore(db, nil)

	run, err := store.CreateRun("bfgs", 2.05, nil)
	require.NoError(t, err)
	require.NoError(t, store.FailRun(run.RunID, errors.New("context canceled")))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "context canceled", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestFitRunStore_RecordBatchUnknownRun(t *testing.T) {
	db := newTestDB(t)
	store := NewFitRunStore(db, nil)

	err := store.RecordBatch("no-such-run", fit.NewBatchResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such run")
}
