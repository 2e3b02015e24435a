package arbiter

import (
	"context"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region names
const (
	Originality         = "originality"
	Relevance           = "relevance"
	CulturalSensitivity = "cultural_sensitivity"
	RhetoricalStrength  = "rhetorical_strength"
	Practicality        = "practicality"
	AudienceResonance   = "audience_resonance"
	AwardPotential      = "award_potential"

	// HeadlineLength is the soft check on headline size; it is not an arbiter.
	HeadlineLength = "headline_length"
)

// hard lists the criteria whose failure drops a candidate outright when it
// cannot be refined. Everything else is a soft failure.
var hard = map[string]bool{
	Originality: true,
	Relevance:   true,
}

// IsHard reports whether failing criterion is a hard reject.
func IsHard(criterion string) bool {
	return hard[criterion]
}
// #endregion names

// #region config
// Thresholds are the per-arbiter pass marks on a 0-100 scale.
type Thresholds struct {
	Originality         float64 `yaml:"originality"`
	Relevance           float64 `yaml:"relevance"`
	CulturalSensitivity float64 `yaml:"cultural_sensitivity"`
	RhetoricalStrength  float64 `yaml:"rhetorical_strength"`
	Practicality        float64 `yaml:"practicality"`
	AudienceResonance   float64 `yaml:"audience_resonance"`
	AwardPotential      float64 `yaml:"award_potential"`
}

// DefaultThresholds returns the calibrated pass marks.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Originality:         50,
		Relevance:           55,
		CulturalSensitivity: 60,
		RhetoricalStrength:  55,
		Practicality:        55,
		AudienceResonance:   50,
		AwardPotential:      40,
	}
}

// HeadlineLimits bound the soft headline check.
const (
	MaxHeadlineWords     = 12
	MaxLeadHeadlineChars = 50
)
// #endregion config

// #region interfaces
// Context is what an arbiter may read besides the candidate.
type Context struct {
	Brief          concept.Brief
	History        []string
	TargetAudience string
}

// Arbiter scores one quality dimension. Score must not fail: backend errors
// degrade to a neutral passing score.
type Arbiter interface {
	Name() string
	Threshold() float64
	Score(ctx context.Context, c concept.Candidate, actx Context) concept.Score
}

// Judge is the text-completion model used by the judge arbiters.
type Judge interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}
// #endregion interfaces

// #region evaluation
// Failure is one unmet criterion, with the feedback a refinement pass needs.
type Failure struct {
	Criterion string
	Score     float64
	Threshold float64
	Feedback  string
	Hard      bool
}

// Evaluation is the panel's verdict on a candidate.
type Evaluation struct {
	Scores   map[string]concept.Score
	Overall  float64
	Passed   bool
	Failures []Failure
}

// HasHardFailure reports whether any failure is a hard reject.
func (e Evaluation) HasHardFailure() bool {
	for _, f := range e.Failures {
		if f.Hard {
			return true
		}
	}
	return false
}
// #endregion evaluation
