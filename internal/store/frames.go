package store

import (
	"database/sql"
)

// FrameSummary records how a frame's landmarks were chosen.
type FrameSummary struct {
	FrameID   int     `json:"frame_id"`
	Category  string  `json:"category"`
	Winner    string  `json:"winner"`
	Score     float64 `json:"score"`
	Label     string  `json:"label"`
	Attempts  int     `json:"attempts"`
	Merged    bool    `json:"merged"`
	EarlyExit bool    `json:"early_exit"`
}

// FrameRepository provides operations on per-frame summaries.
type FrameRepository struct {
	db *sql.DB
}

// Frames returns the frame summary repository for this store.
func (s *Store) Frames() *FrameRepository {
	return &FrameRepository{db: s.db}
}

// InsertSummaries stores the frame summaries of a run in one transaction.
func (r *FrameRepository) InsertSummaries(runID string, summaries []FrameSummary) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO frame_summaries (run_id, frame_id, category, winner, score, label, attempts, merged, early_exit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fs := range summaries {
		if _, err := stmt.Exec(
			runID, fs.FrameID, fs.Category, fs.Winner, fs.Score, fs.Label, fs.Attempts, fs.Merged, fs.EarlyExit,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByRunID returns the summaries of a run ordered by frame id.
func (r *FrameRepository) GetByRunID(runID string) ([]FrameSummary, error) {
	rows, err := r.db.Query(
		`SELECT frame_id, category, winner, score, label, attempts, merged, early_exit
		 FROM frame_summaries WHERE run_id = ? ORDER BY frame_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameSummary
	for rows.Next() {
		var fs FrameSummary
		if err := rows.Scan(&fs.FrameID, &fs.Category, &fs.Winner, &fs.Score, &fs.Label, &fs.Attempts, &fs.Merged, &fs.EarlyExit); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}
