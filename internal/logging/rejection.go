package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-rejection
// LogRejection writes a threshold breach to the arbiter_rejections table.
func LogRejection(db *sql.DB, entry RejectionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO arbiter_rejections (candidate_id, brief_hash, arbiter, score, threshold, iteration, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CandidateID,
		nullIfEmpty(entry.BriefHash),
		entry.Arbiter,
		entry.Score,
		entry.Threshold,
		entry.Iteration,
		nullIfEmpty(entry.Feedback),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log rejection: %w", err)
	}
	return nil
}
// #endregion log-rejection

// #region stats
// Stats aggregates the rejection log per arbiter.
func Stats(db *sql.DB) (RejectionStats, error) {
	var out RejectionStats

	rows, err := db.Query(
		`SELECT arbiter, COUNT(*), AVG(score), MAX(threshold)
		 FROM arbiter_rejections GROUP BY arbiter ORDER BY COUNT(*) DESC, arbiter ASC`,
	)
	if err != nil {
		return out, fmt.Errorf("query rejection stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ArbiterStats
		if err := rows.Scan(&s.Arbiter, &s.Rejections, &s.AverageScore, &s.Threshold); err != nil {
			return out, fmt.Errorf("scan rejection stats: %w", err)
		}
		out.Total += s.Rejections
		out.ByArbiter = append(out.ByArbiter, s)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	err = db.QueryRow(`SELECT COUNT(*) FROM arbiter_rejections WHERE iteration > 1`).Scan(&out.Refinement)
	if err != nil {
		return out, fmt.Errorf("count refinement rejections: %w", err)
	}
	return out, nil
}
// #endregion stats

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
