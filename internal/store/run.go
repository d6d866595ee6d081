package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run is one processed video.
type Run struct {
	ID         string          `json:"id"`
	Video      string          `json:"video"`
	Status     RunStatus       `json:"status"`
	Frames     int             `json:"frames"`
	Stats      json.RawMessage `json:"stats"`
	Config     json.RawMessage `json:"config"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunRepository provides operations on runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, video, status, frames, stats, config, error, created_at, finished_at`

// Create inserts a new run in the running state.
func (r *RunRepository) Create(run *Run) error {
	run.Status = RunRunning
	run.CreatedAt = time.Now().UTC()
	if len(run.Stats) == 0 {
		run.Stats = json.RawMessage(`{}`)
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage(`{}`)
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, video, status, stats, config, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Video, string(run.Status), string(run.Stats), string(run.Config), run.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status, stats, config string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.Video, &status, &run.Frames, &stats, &config, &run.Error, &run.CreatedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Stats = json.RawMessage(stats)
	run.Config = json.RawMessage(config)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Finish marks a run finished and records its frame count and stats, which
// are stored as JSON.
func (r *RunRepository) Finish(id string, frames int, stats any) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	return r.finalize(id, RunFinished, frames, string(data), "")
}

// Fail marks a run failed with the given cause.
func (r *RunRepository) Fail(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.finalize(id, RunFailed, 0, "{}", msg)
}

func (r *RunRepository) finalize(id string, status RunStatus, frames int, stats, msg string) error {
	res, err := r.db.Exec(
		`UPDATE runs SET status = ?, frames = ?, stats = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), frames, stats, msg, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// Delete removes a run and, through the foreign keys, its rows.
func (r *RunRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
