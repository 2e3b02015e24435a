package logging

import "time"

// #region rejection-entry
// RejectionEntry is a single row in the arbiter_rejections table.
type RejectionEntry struct {
	CandidateID string
	BriefHash   string
	Arbiter     string
	Score       float64
	Threshold   float64
	Iteration   int
	Feedback    string
	CreatedAt   time.Time
}
// #endregion rejection-entry

// #region rejection-stats
// ArbiterStats aggregates rejections for one arbiter.
type ArbiterStats struct {
	Arbiter      string  `json:"arbiter"`
	Rejections   int     `json:"rejections"`
	AverageScore float64 `json:"average_score"`
	Threshold    float64 `json:"threshold"`
}

// RejectionStats summarizes the rejection log, most-rejecting arbiter first.
type RejectionStats struct {
	Total      int            `json:"total"`
	ByArbiter  []ArbiterStats `json:"by_arbiter"`
	Refinement int            `json:"refinement_rejections"`
}
// #endregion rejection-stats
