package store

import (
	"database/sql"
	"fmt"

	"github.com/ayusman/posetrace/internal/pose"
)

// RowRepository provides operations on landmark output rows.
type RowRepository struct {
	db *sql.DB
}

// Rows returns the landmark row repository for this store.
func (s *Store) Rows() *RowRepository {
	return &RowRepository{db: s.db}
}

// InsertSequence stores the rows of a run in a single transaction. Either
// all rows are written or none.
func (r *RowRepository) InsertSequence(runID string, rows []pose.Row) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO landmark_rows (run_id, frame_id, landmark_id, x, y, z, visibility, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			runID, row.FrameID, int(row.LandmarkID), row.X, row.Y, row.Z, row.Visibility, string(row.Status),
		); err != nil {
			return fmt.Errorf("frame %d landmark %d: %w", row.FrameID, row.LandmarkID, err)
		}
	}

	return tx.Commit()
}

// GetByRunID returns the rows of a run ordered by frame and landmark id. A
// non-empty status keeps only rows with that status.
func (r *RowRepository) GetByRunID(runID string, status pose.Status) ([]pose.Row, error) {
	query := `SELECT frame_id, landmark_id, x, y, z, visibility, status FROM landmark_rows WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY frame_id, landmark_id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pose.Row
	for rows.Next() {
		var row pose.Row
		var id int
		var st string
		if err := rows.Scan(&row.FrameID, &id, &row.X, &row.Y, &row.Z, &row.Visibility, &st); err != nil {
			return nil, err
		}
		row.LandmarkID = pose.LandmarkID(id)
		row.Status = pose.Status(st)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountByStatus tallies the rows of a run per status.
func (r *RowRepository) CountByStatus(runID string) (map[pose.Status]int, error) {
	rows, err := r.db.Query(
		`SELECT status, COUNT(*) FROM landmark_rows WHERE run_id = ? GROUP BY status`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[pose.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[pose.Status(st)] = n
	}
	return counts, rows.Err()
}
