package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sizespectrum/kernelfit/internal/fsutil"
	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/monitoring"
	"github.com/sizespectrum/kernelfit/internal/timeutil"
)

var truth = kernel.ShapeParameters{Alpha: 0.3, LLeft: 4, ULeft: 3, LRight: 9, URight: 2}

// quiet mutes the shared logger and pins the command clock.
func quiet(t *testing.T) {
	t.Helper()
	originalLogf, originalClock := monitoring.Logf, clock
	monitoring.SetLogger(nil)
	clock = timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	t.Cleanup(func() {
		monitoring.Logf = originalLogf
		clock = originalClock
	})
}

// writeSampleCSV writes a deterministic sample of species cod drawn from
// truth and returns its path.
func writeSampleCSV(t *testing.T, size int) string {
	t.Helper()
	d, err := kernel.DefaultNormalizer().Normalize(truth, nil)
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("species_id,prey_mass,l,prey_count\n")
	for _, l := range d.StratifiedSample(size) {
		fmt.Fprintf(&b, "cod,1,%g,1\n", l)
	}
	path := filepath.Join(t.TempDir(), "stomachs.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRun_Dispatch(t *testing.T) {
	quiet(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"no args", nil, 2, "", "Usage: kernelfit"},
		{"help", []string{"help"}, 0, "Commands:", ""},
		{"version", []string{"version"}, 0, "kernelfit dev", ""},
		{"unknown", []string{"smooth"}, 2, "", "Unknown command: smooth"},
		{"flag help", []string{"fit", "-h"}, 0, "", "-lambda"},
		{"bad flag", []string{"fit", "-nope"}, 1, "", "flag provided but not defined"},
		{"fit needs input", []string{"fit"}, 1, "", "exactly one of -db and -csv"},
		{"bins needs species", []string{"bins", "-csv", "x.csv"}, 1, "", "needs -species"},
		{"import needs files", []string{"import", "-db", filepath.Join(t.TempDir(), "x.db")}, 1, "", "at least one CSV file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCmd(t, tt.args...)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", stderr)
			assert.Contains(t, stdout, tt.wantOut)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
}

func TestFit_CSV(t *testing.T) {
	quiet(t)
	csvPath := writeSampleCSV(t, 400)
	coefPath := filepath.Join(t.TempDir(), "kernels.csv")

	code, stdout, stderr := runCmd(t, "fit", "-csv", csvPath, "-species", "cod,ghost", "-coefficients", coefPath)
	require.Equal(t, 0, code, "stderr: %s", stderr)

	records := readCSV(t, stdout)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"species_id", "alpha", "l_left", "u_left", "l_right", "u_right", "error_kind", "error"}, records[0])
	assert.Equal(t, "cod", records[1][0])
	assert.Equal(t, "ghost", records[2][0])
	assert.Equal(t, "data", records[2][6])
	assert.Empty(t, records[2][1], "failed species has no parameters")

	data, err := os.ReadFile(coefPath)
	require.NoError(t, err)
	coefs := readCSV(t, string(data))
	require.Len(t, coefs, 3)
	assert.Equal(t, "kernel_exp", coefs[0][1])
}

func TestFit_MemoryFiles(t *testing.T) {
	quiet(t)
	mem := fsutil.NewMemoryFileSystem()
	original := files
	files = mem
	t.Cleanup(func() { files = original })

	// Two species: one usable, one with no prey counted.
	mem.WriteFile("obs.csv", []byte("species_id,predator_mass,prey_mass,prey_count\n"+
		"cod,100,1,1\ncod,300,2,1\ncod,50,1,2\n"+
		"hake,100,1,0\n"))

	code, _, stderr := runCmd(t, "fit", "-csv", "obs.csv", "-out", "fits.csv", "-coefficients", "kernels.csv")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	data, err := mem.ReadFile("fits.csv")
	require.NoError(t, err)
	fits := readCSV(t, string(data))
	require.Len(t, fits, 3)
	assert.Equal(t, "hake", fits[2][0])
	assert.Equal(t, "data", fits[2][6])

	data, err = mem.ReadFile("kernels.csv")
	require.NoError(t, err)
	assert.Len(t, readCSV(t, string(data)), 3)

	code, _, stderr = runCmd(t, "fit", "-csv", "missing.csv")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "missing.csv")
}

func TestFit_InvalidOverride(t *testing.T) {
	quiet(t)
	csvPath := writeSampleCSV(t, 50)

	code, _, stderr := runCmd(t, "fit", "-csv", csvPath, "-method", "simplex")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "simplex")
}

func TestDatabaseWorkflow(t *testing.T) {
	quiet(t)
	csvPath := writeSampleCSV(t, 400)
	dbPath := filepath.Join(t.TempDir(), "fits.db")

	code, stdout, stderr := runCmd(t, "migrate", "-db", dbPath)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "schema version 2")

	code, stdout, stderr = runCmd(t, "import", "-db", dbPath, csvPath)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "imported 400 observations")

	// Re-importing with -replace keeps the species count unchanged.
	code, stdout, stderr = runCmd(t, "import", "-db", dbPath, "-replace", csvPath)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "cod\t400")

	code, stdout, stderr = runCmd(t, "fit", "-db", dbPath, "-lambda", "2.05")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	fits := readCSV(t, stdout)
	require.Len(t, fits, 2)
	assert.Equal(t, "cod", fits[1][0])

	code, stdout, stderr = runCmd(t, "runs", "-db", dbPath)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	runs := readCSV(t, stdout)
	require.Len(t, runs, 2)
	assert.Equal(t, "completed", runs[1][4])
	assert.Equal(t, "2025-03-01T12:00:00Z", runs[1][1])
	runID := runs[1][0]

	code, stdout, stderr = runCmd(t, "coefficients", "-db", dbPath, "-run", runID)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	stored := readCSV(t, stdout)
	require.Len(t, stored, 2)

	code, stdout, stderr = runCmd(t, "coefficients", "-db", dbPath, "-lambda", "1.05")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	shifted := readCSV(t, stdout)
	require.Len(t, shifted, 2)
	if stored[1][6] == "" {
		// kernel_exp moves one-for-one with lambda; the bounds do not.
		assert.NotEqual(t, stored[1][1], shifted[1][1])
		assert.Equal(t, stored[1][2:6], shifted[1][2:6])
	}

	code, stdout, stderr = runCmd(t, "bins", "-db", dbPath, "-species", "cod", "-bins", "10")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Len(t, readCSV(t, stdout), 11)

	if stored[1][6] == "" {
		code, stdout, stderr = runCmd(t, "bins", "-db", dbPath, "-species", "cod", "-run", "latest")
		require.Equal(t, 0, code, "stderr: %s", stderr)
		report := readCSV(t, stdout)
		require.Len(t, report, 31)
		assert.Equal(t, "fitted_count_density", report[0][3])
	}

	code, _, stderr = runCmd(t, "coefficients", "-db", dbPath, "-run", "no-such-run")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestBins_Params(t *testing.T) {
	quiet(t)
	csvPath := writeSampleCSV(t, 2000)

	code, stdout, stderr := runCmd(t, "bins", "-csv", csvPath, "-species", "cod",
		"-params", "0.3,4,3,9,2")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Len(t, readCSV(t, stdout), 31)

	code, _, stderr = runCmd(t, "bins", "-csv", csvPath, "-species", "cod", "-params", "1,2,3")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "needs 5 comma-separated values")
}

func TestBins_Renderings(t *testing.T) {
	quiet(t)
	mem := fsutil.NewMemoryFileSystem()
	original := files
	files = mem
	t.Cleanup(func() { files = original })

	mem.WriteFile("obs.csv", []byte("species_id,predator_mass,prey_mass,prey_count\n"+
		"cod,100,1,1\ncod,300,2,1\ncod,50,1,2\ncod,2000,3,1\ncod,800,1,1\n"))

	code, _, stderr := runCmd(t, "bins", "-csv", "obs.csv", "-species", "cod", "-bins", "5",
		"-params", "0.3,4,3,9,2", "-plot", "cod.svg", "-html", "cod.html", "-out", "cod.csv")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	svg, err := mem.ReadFile("cod.svg")
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	page, err := mem.ReadFile("cod.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), "Number density")

	table, err := mem.ReadFile("cod.csv")
	require.NoError(t, err)
	assert.Len(t, readCSV(t, string(table)), 6)

	code, _, stderr = runCmd(t, "bins", "-csv", "obs.csv", "-species", "cod", "-plot", "cod.png")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "need a fit to compare against")
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(" -0.5, 1, 2 ,3.5,4")
	require.NoError(t, err)
	assert.Equal(t, kernel.ShapeParameters{Alpha: -0.5, LLeft: 1, ULeft: 2, LRight: 3.5, URight: 4}, *p)

	_, err = parseParams("a,1,2,3,4")
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"cod", "hake"}, splitList(" cod, ,hake,"))
	assert.Nil(t, splitList(""))
}
