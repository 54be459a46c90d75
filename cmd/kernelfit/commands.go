package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sizespectrum/kernelfit/internal/config"
	"github.com/sizespectrum/kernelfit/internal/db"
	"github.com/sizespectrum/kernelfit/internal/diagnostics"
	"github.com/sizespectrum/kernelfit/internal/fit"
	"github.com/sizespectrum/kernelfit/internal/fsutil"
	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/monitoring"
	"github.com/sizespectrum/kernelfit/internal/samples"
	"github.com/sizespectrum/kernelfit/internal/timeutil"
)

var (
	logf                    = monitoring.Component("kernelfit")
	clock timeutil.Clock    = timeutil.RealClock{}
	files fsutil.FileSystem = fsutil.OSFileSystem{}
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// setFlags reports which flags were given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadConfig(path string) (*config.FitConfig, error) {
	if path == "" {
		return config.DefaultFitConfig(), nil
	}
	return config.LoadFitConfig(path)
}

func readCSVFile(path string) ([]samples.Observation, error) {
	f, err := files.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	obs, err := samples.ReadObservationsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obs, nil
}

// writeOutput writes to stdout, or to path when it is set.
func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}
	f, err := files.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func handleMigrate(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("migrate", stderr)
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	down := fs.Bool("down", false, "Roll back the most recent migration instead")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if *down {
		err = database.MigrateDown(db.Migrations())
	} else {
		err = database.MigrateUp(db.Migrations())
	}
	if err != nil {
		return err
	}
	v, dirty, err := database.MigrateVersion(db.Migrations())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: schema version %d (dirty=%v)\n", *dbPath, v, dirty)
	return nil
}

func handleImport(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("import", stderr)
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	source := fs.String("source", "", "Source label stored with the rows (default: file name)")
	replace := fs.Bool("replace", false, "Delete stored observations of each imported species first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import needs at least one CSV file")
	}

	database, err := db.OpenMigrated(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewObservationStore(database, clock)

	for _, path := range fs.Args() {
		obs, err := readCSVFile(path)
		if err != nil {
			return err
		}
		if *replace {
			for _, id := range samples.SortedKeys(samples.GroupBySpecies(obs)) {
				if _, err := store.DeleteSpecies(id); err != nil {
					return err
				}
			}
		}
		label := *source
		if label == "" {
			label = filepath.Base(path)
		}
		if err := store.InsertObservations(label, obs); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: imported %d observations\n", path, len(obs))
	}

	counts, err := store.SpeciesCounts()
	if err != nil {
		return err
	}
	for _, id := range samples.SortedKeys(counts) {
		fmt.Fprintf(stdout, "  %s\t%d\n", id, counts[id])
	}
	return nil
}

func handleFit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("fit", stderr)
	dbPath := fs.String("db", "", "SQLite database with imported observations; the run is stored there")
	csvPath := fs.String("csv", "", "Read observations from a CSV file instead of a database")
	configPath := fs.String("config", "", "Fitting configuration JSON (built-in defaults when empty)")
	speciesList := fs.String("species", "", "Comma-separated species to fit (default: all)")
	lambda := fs.Float64("lambda", 0, "Spectral exponent for the coefficient table (overrides config)")
	method := fs.String("method", "", "Optimizer, bfgs or nelder-mead (overrides config)")
	workers := fs.Int("workers", 0, "Species fitted concurrently (overrides config)")
	out := fs.String("out", "", "Write the fit table here instead of stdout")
	coefOut := fs.String("coefficients", "", "Also write the kernel coefficient table to this file")
	verbose := fs.Bool("v", false, "Log per-species progress to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*dbPath == "") == (*csvPath == "") {
		return errors.New("fit needs exactly one of -db and -csv")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["lambda"] {
		cfg.Lambda = lambda
	}
	if set["method"] {
		cfg.Method = method
	}
	if set["workers"] {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fit.SetLogWriters(stderr, nil)
	if *verbose {
		fit.SetLogWriters(stderr, stderr)
	}
	defer fit.SetLogWriters(nil, nil)

	fitter, err := fit.NewFitter(cfg.FitterOptions())
	if err != nil {
		return err
	}
	species := splitList(*speciesList)
	start := clock.Now()

	var (
		obs  []samples.Observation
		runs *db.FitRunStore
		run  *db.FitRun
	)
	if *csvPath != "" {
		if obs, err = readCSVFile(*csvPath); err != nil {
			return err
		}
	} else {
		database, err := db.OpenMigrated(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if obs, err = db.NewObservationStore(database, clock).ListObservations(species...); err != nil {
			return err
		}
		snapshot, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		runs = db.NewFitRunStore(database, clock)
		if run, err = runs.CreateRun(cfg.GetMethod(), cfg.GetLambda(), snapshot); err != nil {
			return err
		}
	}

	res, err := fitter.FitObservations(ctx, obs, species)
	if err != nil {
		if run != nil {
			if ferr := runs.FailRun(run.RunID, err); ferr != nil {
				logf("%v", ferr)
			}
		}
		return fmt.Errorf("fit interrupted: %w", err)
	}
	if run != nil {
		if err := runs.RecordBatch(run.RunID, res); err != nil {
			return err
		}
		logf("stored run %s", run.RunID)
	}
	logf("fitted %d species, %d failed, in %v", len(res.Fits), len(res.Failures),
		clock.Since(start).Round(time.Millisecond))

	if err := writeOutput(*out, stdout, func(w io.Writer) error {
		return fit.WriteFitsCSV(w, res.FitTable())
	}); err != nil {
		return err
	}
	if *coefOut != "" {
		return writeOutput(*coefOut, stdout, func(w io.Writer) error {
			return fit.WriteCoefficientsCSV(w, res.CoefficientTable(cfg.GetLambda()))
		})
	}
	return nil
}

// resolveRun returns the run named by id, or the latest run for "" and
// "latest".
func resolveRun(store *db.FitRunStore, id string) (*db.FitRun, error) {
	var (
		run *db.FitRun
		err error
	)
	if id == "" || id == "latest" {
		run, err = store.LatestRun()
	} else {
		run, err = store.GetRun(id)
	}
	if err != nil {
		return nil, err
	}
	if run == nil {
		if id == "" || id == "latest" {
			return nil, errors.New("no fit runs stored")
		}
		return nil, fmt.Errorf("fit run %s not found", id)
	}
	return run, nil
}

func handleCoefficients(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("coefficients", stderr)
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	runID := fs.String("run", "latest", "Fit run ID")
	lambda := fs.Float64("lambda", 0, "Recompute with this spectral exponent instead of the run's")
	out := fs.String("out", "", "Write the table here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.OpenMigrated(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	store := db.NewFitRunStore(database, clock)

	run, err := resolveRun(store, *runID)
	if err != nil {
		return err
	}

	var rows []fit.CoefficientRow
	if setFlags(fs)["lambda"] {
		fits, err := store.SpeciesFits(run.RunID)
		if err != nil {
			return err
		}
		for _, f := range fits {
			row := fit.CoefficientRow{SpeciesID: f.SpeciesID, ErrorKind: f.ErrorKind, Error: f.Error}
			if f.Params != nil {
				c := kernel.MapCoefficients(*f.Params, *lambda)
				row.Coefficients = &c
			}
			rows = append(rows, row)
		}
	} else if rows, err = store.Coefficients(run.RunID); err != nil {
		return err
	}
	return writeOutput(*out, stdout, func(w io.Writer) error {
		return fit.WriteCoefficientsCSV(w, rows)
	})
}

func handleRuns(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("runs", stderr)
	dbPath := fs.String("db", defaultDBPath, "SQLite database path")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.OpenMigrated(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := db.NewFitRunStore(database, clock).ListRuns(*limit)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(stdout)
	cw.Write([]string{"run_id", "started_at", "method", "lambda", "status", "species_fitted", "species_failed"})
	for _, r := range runs {
		cw.Write([]string{
			r.RunID,
			timeutil.FormatStamp(r.StartedAt),
			r.Method,
			strconv.FormatFloat(r.Lambda, 'g', -1, 64),
			r.Status,
			strconv.Itoa(r.SpeciesFitted),
			strconv.Itoa(r.SpeciesFailed),
		})
	}
	cw.Flush()
	return cw.Error()
}

func handleBins(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("bins", stderr)
	dbPath := fs.String("db", "", "SQLite database with imported observations")
	csvPath := fs.String("csv", "", "Read observations from a CSV file instead of a database")
	configPath := fs.String("config", "", "Fitting configuration JSON (support, quadrature, bin count)")
	speciesID := fs.String("species", "", "Species to bin (required)")
	bins := fs.Int("bins", 0, "Number of bins (overrides config)")
	runID := fs.String("run", "", "Compare against this stored fit run (or \"latest\"); needs -db")
	params := fs.String("params", "", "Compare against alpha,l_left,u_left,l_right,u_right")
	out := fs.String("out", "", "Write the table here instead of stdout")
	plotPath := fs.String("plot", "", "Also render the comparison as an image (.png, .svg or .pdf)")
	htmlPath := fs.String("html", "", "Also render the comparison as an interactive HTML page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *speciesID == "" {
		return errors.New("bins needs -species")
	}
	if (*plotPath != "" || *htmlPath != "") && *runID == "" && *params == "" {
		return errors.New("-plot and -html need a fit to compare against (-run or -params)")
	}
	if (*dbPath == "") == (*csvPath == "") {
		return errors.New("bins needs exactly one of -db and -csv")
	}
	if *runID != "" && *dbPath == "" {
		return errors.New("-run needs -db")
	}
	if *runID != "" && *params != "" {
		return errors.New("-run and -params are mutually exclusive")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if setFlags(fs)["bins"] {
		cfg.BinCount = bins
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var obs []samples.Observation
	var fitted *kernel.ShapeParameters
	if *csvPath != "" {
		if obs, err = readCSVFile(*csvPath); err != nil {
			return err
		}
		obs, _ = samples.RestrictSpecies(obs, []string{*speciesID})
	} else {
		database, err := db.OpenMigrated(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if obs, err = db.NewObservationStore(database, clock).ListObservations(*speciesID); err != nil {
			return err
		}
		if *runID != "" {
			if fitted, err = storedParams(db.NewFitRunStore(database, clock), *runID, *speciesID); err != nil {
				return err
			}
		}
	}
	if *params != "" {
		if fitted, err = parseParams(*params); err != nil {
			return err
		}
	}

	obs, _ = samples.FilterPositiveRatio(obs)
	s, err := samples.Weigh(*speciesID, obs)
	if err != nil {
		return err
	}

	if fitted == nil {
		h, err := diagnostics.BinSample(s, cfg.GetBinCount())
		if err != nil {
			return err
		}
		return writeOutput(*out, stdout, func(w io.Writer) error {
			return diagnostics.WriteHistogramCSV(w, h)
		})
	}

	opts := cfg.FitterOptions()
	norm, err := kernel.NewNormalizer(opts.Support, opts.Panels, opts.Nodes)
	if err != nil {
		return err
	}
	report, err := diagnostics.Compare(s, norm, *fitted, cfg.GetBinCount())
	if err != nil {
		return err
	}
	logf("%s: Hellinger distance %.4f by number, %.4f by biomass",
		report.SpeciesID, report.HellingerNumber, report.HellingerBiomass)
	if *plotPath != "" {
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(*plotPath)), ".")
		if format == "" {
			format = "png"
		}
		err := writeOutput(*plotPath, stdout, func(w io.Writer) error {
			return diagnostics.PlotReport(w, report, format)
		})
		if err != nil {
			return err
		}
		logf("wrote %s plot to %s", format, *plotPath)
	}
	if *htmlPath != "" {
		err := writeOutput(*htmlPath, stdout, func(w io.Writer) error {
			return diagnostics.WriteReportHTML(w, report)
		})
		if err != nil {
			return err
		}
		logf("wrote chart page to %s", *htmlPath)
	}
	return writeOutput(*out, stdout, func(w io.Writer) error {
		return diagnostics.WriteReportCSV(w, report)
	})
}

func storedParams(store *db.FitRunStore, runID, speciesID string) (*kernel.ShapeParameters, error) {
	run, err := resolveRun(store, runID)
	if err != nil {
		return nil, err
	}
	fits, err := store.SpeciesFits(run.RunID)
	if err != nil {
		return nil, err
	}
	for _, f := range fits {
		if f.SpeciesID != speciesID {
			continue
		}
		if f.Params == nil {
			return nil, fmt.Errorf("species %s failed in run %s: %s", speciesID, run.RunID, f.Error)
		}
		return f.Params, nil
	}
	return nil, fmt.Errorf("species %s not in run %s", speciesID, run.RunID)
}

func parseParams(s string) (*kernel.ShapeParameters, error) {
	parts := strings.Split(s, ",")
	if len(parts) != kernel.NumParams {
		return nil, fmt.Errorf("-params needs %d comma-separated values, got %d", kernel.NumParams, len(parts))
	}
	x := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("-params value %d: %w", i+1, err)
		}
		x[i] = v
	}
	p := kernel.ParamsFromVector(x)
	return &p, nil
}
