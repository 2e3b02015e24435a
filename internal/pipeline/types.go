package pipeline

import (
	"context"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
	"github.com/danielpatrickdp/concept-arbiter/internal/store"
)

// #region config
// MaxBatchWidth caps concurrent generation calls per run.
const MaxBatchWidth = 10

// Config controls one pipeline run.
type Config struct {
	MaxParallel        int           `yaml:"max_parallel"`        // concurrent generation and scoring calls
	Temperature        float64       `yaml:"temperature"`         // first-draft sampling temperature
	MaxTokens          int           `yaml:"max_tokens"`          // per generation call
	Deadline           time.Duration `yaml:"deadline"`            // whole-run budget
	CallTimeout        time.Duration `yaml:"call_timeout"`        // per generation call
	ScoringReserve     time.Duration `yaml:"scoring_reserve"`     // tail of the deadline kept for scoring parsed concepts
	HistoryWindow      int           `yaml:"history_window"`      // recent concepts compared for originality
	RegenerationBudget int           `yaml:"regeneration_budget"` // duplicates regenerated per run
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallel:        MaxBatchWidth,
		Temperature:        1.0,
		MaxTokens:          1200,
		Deadline:           90 * time.Second,
		CallTimeout:        45 * time.Second,
		ScoringReserve:     15 * time.Second,
		HistoryWindow:      20,
		RegenerationBudget: 2,
	}
}

// GenerationWindow is the part of the deadline open to generation calls.
// The rest is left for scoring and ranking whatever parsed in time. A reserve
// that does not fit inside the deadline falls back to a quarter of it.
func (c Config) GenerationWindow() time.Duration {
	if c.ScoringReserve > 0 && c.ScoringReserve < c.Deadline {
		return c.Deadline - c.ScoringReserve
	}
	return c.Deadline * 3 / 4
}

// BatchWidth is how many slots to generate for count requested concepts:
// enough spares to survive rejections, never more than limit.
func BatchWidth(count, limit int) int {
	if count < concept.MinOutput {
		count = concept.MinOutput
	}
	if limit <= 0 || limit > MaxBatchWidth {
		limit = MaxBatchWidth
	}
	w := count * 2
	if w < count+3 {
		w = count + 3
	}
	if w > limit {
		w = limit
	}
	return w
}

// #endregion config

// #region collaborators
// Generator is the text-generation model.
type Generator interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Selector supplies per-slot inspiration.
type Selector interface {
	SelectBatch(ctx context.Context, brief concept.Brief, n int) []retrieval.Selection
}

// UsageLedger records which devices and examples produced a concept.
type UsageLedger interface {
	Commit(namespace string, keys ...string) error
}

// Recorder is the persistent concept log.
type Recorder interface {
	SaveConcept(rec store.ConceptRecord) (string, error)
	RecentTexts(limit int) ([]string, error)
}

// #endregion collaborators

// #region result
// Stats counts what happened to the batch.
type Stats struct {
	Requested        int           `json:"requested"`
	BatchWidth       int           `json:"batch_width"`
	GenerationErrors int           `json:"generation_errors"`
	Unparsable       int           `json:"unparsable"`
	Parsed           int           `json:"parsed"`
	Duplicates       int           `json:"duplicates"`
	Regenerated      int           `json:"regenerated"`
	Repaired         int           `json:"repaired"`
	Passed           int           `json:"passed"`
	NeedsReview      int           `json:"needs_review"`
	Failed           int           `json:"failed"`
	Persisted        int           `json:"persisted"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Result is the outcome of Generate. Reason explains an empty or short result.
type Result struct {
	Candidates []concept.Candidate `json:"candidates"`
	Reason     string              `json:"reason,omitempty"`
	Stats      Stats               `json:"stats"`
}

// slot is one generation attempt.
type slot struct {
	sel    retrieval.Selection
	result concept.Result[concept.Candidate]
}

// #endregion result
