package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sizespectrum/kernelfit/internal/fit"
	"github.com/sizespectrum/kernelfit/internal/kernel"
	"github.com/sizespectrum/kernelfit/internal/timeutil"
)

// Fit run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// FitRun is one persisted batch fit.
type FitRun struct {
	RunID         string          `json:"run_id"`
	Method        string          `json:"method"`
	Lambda        float64         `json:"lambda"`
	Config        json.RawMessage `json:"config,omitempty"`
	Status        string          `json:"status"`
	SpeciesFitted int             `json:"species_fitted"`
	SpeciesFailed int             `json:"species_failed"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// SpeciesFit is the stored outcome of one species in a run. Params is nil
// for a failed species, which carries ErrorKind and Error instead.
type SpeciesFit struct {
	RunID       string                  `json:"run_id"`
	SpeciesID   string                  `json:"species_id"`
	Params      *kernel.ShapeParameters `json:"params,omitempty"`
	NLL         float64                 `json:"nll,omitempty"`
	SampleSize  int                     `json:"sample_size,omitempty"`
	Iterations  int                     `json:"iterations,omitempty"`
	Evaluations int                     `json:"evaluations,omitempty"`
	ErrorKind   string                  `json:"error_kind,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// FitRow converts the stored fit into a fit table row.
func (f SpeciesFit) FitRow() fit.FitRow {
	return fit.FitRow{SpeciesID: f.SpeciesID, Params: f.Params, ErrorKind: f.ErrorKind, Error: f.Error}
}

// FitRunStore persists fit runs and their per-species results.
type FitRunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewFitRunStore creates a new FitRunStore. A nil clock uses the wall clock.
func NewFitRunStore(db *DB, clock timeutil.Clock) *FitRunStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FitRunStore{db: db.DB, clock: clock}
}

// CreateRun records the start of a run and returns it with a fresh run ID.
// config is an optional JSON snapshot of the settings used.
func (s *FitRunStore) CreateRun(method string, lambda float64, config json.RawMessage) (*FitRun, error) {
	run := &FitRun{
		RunID:     uuid.NewString(),
		Method:    method,
		Lambda:    lambda,
		Config:    config,
		Status:    RunStatusRunning,
		StartedAt: timeutil.Stamp(s.clock),
	}
	query := `
		INSERT INTO fit_runs (run_id, method, lambda, config_json, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			run.RunID,
			run.Method,
			run.Lambda,
			nullStr(string(config)),
			run.Status,
			timeutil.FormatStamp(run.StartedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inserting fit run %s: %w", run.RunID, err)
	}
	return run, nil
}

// RecordBatch stores every species of b under runID and marks the run
// completed, in one transaction.
func (s *FitRunStore) RecordBatch(runID string, b *fit.BatchResult) error {
	insert := `
		INSERT INTO species_fits (
			run_id, species_id, alpha, l_left, u_left, l_right, u_right,
			nll, sample_size, iterations, evaluations, error_kind, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	complete := `
		UPDATE fit_runs
		SET status = ?, species_fitted = ?, species_failed = ?, completed_at = ?
		WHERE run_id = ?
	`
	completedAt := timeutil.FormatStamp(timeutil.Stamp(s.clock))

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(insert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range b.SpeciesIDs() {
			if cause, failed := b.Failures[id]; failed {
				_, err = stmt.Exec(runID, id, nil, nil, nil, nil, nil, nil, nil, nil, nil,
					fit.ErrorKind(cause), cause.Error())
			} else {
				r := b.Fits[id]
				p := r.Params
				_, err = stmt.Exec(runID, id, p.Alpha, p.LLeft, p.ULeft, p.LRight, p.URight,
					r.NLL, r.SampleSize, r.Iterations, r.Evaluations, nil, nil)
			}
			if err != nil {
				return fmt.Errorf("species %s: %w", id, err)
			}
		}

		res, err := tx.Exec(complete, RunStatusCompleted, len(b.Fits), len(b.Failures), completedAt, runID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("no such run")
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("recording batch for run %s: %w", runID, err)
	}
	logf("run %s: stored %d fits and %d failures", runID, len(b.Fits), len(b.Failures))
	return nil
}

// FailRun marks a run as failed with cause. Species already recorded are
// kept.
func (s *FitRunStore) FailRun(runID string, cause error) error {
	query := `UPDATE fit_runs SET status = ?, error = ?, completed_at = ? WHERE run_id = ?`
	completedAt := timeutil.FormatStamp(timeutil.Stamp(s.clock))
	err := retryOnBusy(func() error {
		_, err := s.db.Exec(query, RunStatusFailed, nullStr(cause.Error()), completedAt, runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `
	run_id, method, lambda, config_json, status, species_fitted, species_failed,
	error, started_at, completed_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*FitRun, error) {
	var run FitRun
	var config, errMsg, completedAt sql.NullString
	var startedAt string
	if err := row.Scan(&run.RunID, &run.Method, &run.Lambda, &config, &run.Status,
		&run.SpeciesFitted, &run.SpeciesFailed, &errMsg, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	if config.Valid {
		run.Config = json.RawMessage(config.String)
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	t, err := timeutil.ParseStamp(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at for run %s: %w", run.RunID, err)
	}
	run.StartedAt = t
	if completedAt.Valid {
		t, err := timeutil.ParseStamp(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for run %s: %w", run.RunID, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

// GetRun returns a run by ID, or nil if there is none.
func (s *FitRunStore) GetRun(runID string) (*FitRun, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM fit_runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying fit run %s: %w", runID, err)
	}
	return run, nil
}

// LatestRun returns the most recently started run, or nil if there is none.
func (s *FitRunStore) LatestRun() (*FitRun, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM fit_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest fit run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, most recent first.
func (s *FitRunStore) ListRuns(limit int) ([]FitRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM fit_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing fit runs: %w", err)
	}
	defer rows.Close()

	var runs []FitRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fit run row: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SpeciesFits returns the stored per-species results of a run, in species
// order.
func (s *FitRunStore) SpeciesFits(runID string) ([]SpeciesFit, error) {
	query := `
		SELECT species_id, alpha, l_left, u_left, l_right, u_right,
		       nll, sample_size, iterations, evaluations, error_kind, error_message
		FROM species_fits
		WHERE run_id = ?
		ORDER BY species_id
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("listing species fits for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []SpeciesFit
	for rows.Next() {
		f := SpeciesFit{RunID: runID}
		var alpha, lLeft, uLeft, lRight, uRight, nll sql.NullFloat64
		var size, iters, evals sql.NullInt64
		var kind, msg sql.NullString
		if err := rows.Scan(&f.SpeciesID, &alpha, &lLeft, &uLeft, &lRight, &uRight,
			&nll, &size, &iters, &evals, &kind, &msg); err != nil {
			return nil, fmt.Errorf("scanning species fit row: %w", err)
		}
		if alpha.Valid {
			f.Params = &kernel.ShapeParameters{
				Alpha:  alpha.Float64,
				LLeft:  lLeft.Float64,
				ULeft:  uLeft.Float64,
				LRight: lRight.Float64,
				URight: uRight.Float64,
			}
			f.NLL = nll.Float64
			f.SampleSize = int(size.Int64)
			f.Iterations = int(iters.Int64)
			f.Evaluations = int(evals.Int64)
		}
		f.ErrorKind = kind.String
		f.Error = msg.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Coefficients rebuilds the kernel table of a run from its stored shape
// parameters and the run's lambda.
func (s *FitRunStore) Coefficients(runID string) ([]fit.CoefficientRow, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("fit run %s not found", runID)
	}
	fits, err := s.SpeciesFits(runID)
	if err != nil {
		return nil, err
	}
	rows := make([]fit.CoefficientRow, 0, len(fits))
	for _, f := range fits {
		row := fit.CoefficientRow{SpeciesID: f.SpeciesID, ErrorKind: f.ErrorKind, Error: f.Error}
		if f.Params != nil {
			c := kernel.MapCoefficients(*f.Params, run.Lambda)
			row.Coefficients = &c
		}
		rows = append(rows, row)
	}
	return rows, nil
}
