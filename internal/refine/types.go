package refine

import (
	"context"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region states
// State is a step of the per-candidate refinement machine.
type State string

const (
	StateInitial     State = "initial"
	StateEvaluated   State = "evaluated"
	StateRefining    State = "refining"
	StatePassed      State = "passed"
	StateNeedsReview State = "needs_review"
	StateFailed      State = "failed"
)

// MaxIterations caps a candidate at its first draft plus one repair.
const MaxIterations = 2

// Diversity is the pseudo-criterion attached when a candidate is regenerated
// for colliding with a sibling or a recent concept.
const Diversity = "diversity"

// Terminal reports whether s ends the machine.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateNeedsReview || s == StateFailed
}

// Status maps a terminal state onto the candidate status it stamps.
func (s State) Status() concept.Status {
	switch s {
	case StatePassed:
		return concept.StatusPassed
	case StateNeedsReview:
		return concept.StatusNeedsReview
	case StateFailed:
		return concept.StatusFailed
	}
	return concept.StatusPending
}

// #endregion states

// #region collaborators
// Generator is the text model used for repair prompts.
type Generator interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Evaluator scores a candidate on every criterion.
type Evaluator interface {
	Evaluate(ctx context.Context, c concept.Candidate, actx arbiter.Context) arbiter.Evaluation
}

// ParseFunc turns a model reply into a candidate.
type ParseFunc func(raw string) (concept.Candidate, error)

// #endregion collaborators

// #region config
// Config controls repair generation.
type Config struct {
	BaseTemperature float64 `yaml:"base_temperature"`
	TemperatureStep float64 `yaml:"temperature_step"`
	MaxTokens       int     `yaml:"max_tokens"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseTemperature: 1.0,
		TemperatureStep: 0.2,
		MaxTokens:       1200,
	}
}

// #endregion config

// #region outcome
// Transition is one edge taken by the machine.
type Transition struct {
	From      State
	To        State
	Iteration int
	Note      string
}

// Outcome is the terminal result for one candidate.
type Outcome struct {
	Candidate   concept.Candidate
	Final       State
	Transitions []Transition
	Reason      string
	Repaired    bool // Candidate is the repair rather than the original
	Fallback    bool // repair could not be produced; Candidate is the original
}

// #endregion outcome
