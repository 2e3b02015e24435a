package diversity

import "github.com/danielpatrickdp/concept-arbiter/internal/concept"

// #region config
// Config holds similarity thresholds for diversity decisions.
type Config struct {
	BatchThreshold   float64 `yaml:"batch_threshold"`   // max embedding similarity between batch survivors
	HistoryThreshold float64 `yaml:"history_threshold"` // max embedding similarity to a recent concept
	LexicalThreshold float64 `yaml:"lexical_threshold"` // max shared-token ratio when embeddings are missing
	Bonus            float64 `yaml:"bonus"`             // ranking bonus for a candidate with no close sibling
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchThreshold:   0.80,
		HistoryThreshold: 0.85,
		LexicalThreshold: 0.6,
		Bonus:            5,
	}
}

// #endregion config

// #region decision
// Method names how similarity was measured.
type Method string

const (
	MethodEmbedding Method = "embedding"
	MethodLexical   Method = "lexical"
)

// Decision records what the gate decided for one candidate.
type Decision struct {
	CandidateID string
	Slot        int
	Status      concept.DiversityStatus
	NearestID   string
	Similarity  float64
	Method      Method
	Reason      string
}

// Result partitions a batch. Survivors keep the input ranking order.
type Result struct {
	Survivors  []concept.Candidate
	Regenerate []concept.Candidate
	Rejected   []concept.Candidate
	Decisions  []Decision
}

// #endregion decision
