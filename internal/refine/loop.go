package refine

import (
	"context"
	"fmt"
	"log"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region loop
// Loop drives a candidate from its first evaluation to a terminal state,
// spending at most one repair generation on the way.
type Loop struct {
	model  Generator
	parse  ParseFunc
	eval   Evaluator
	config Config
}

// NewLoop creates a Loop.
func NewLoop(model Generator, parse ParseFunc, eval Evaluator, config Config) *Loop {
	return &Loop{model: model, parse: parse, eval: eval, config: config}
}

// Apply stamps an evaluation onto c.
func Apply(c *concept.Candidate, ev arbiter.Evaluation) {
	c.Scores = ev.Scores
	for _, f := range ev.Failures {
		if f.Feedback != "" {
			c.Notes = append(c.Notes, fmt.Sprintf("%s: %s", f.Criterion, f.Feedback))
		}
	}
}

type machine struct {
	state       State
	iteration   int
	transitions []Transition
}

func (m *machine) move(to State, note string) {
	m.transitions = append(m.transitions, Transition{From: m.state, To: to, Iteration: m.iteration, Note: note})
	m.state = to
}

func (m *machine) finish(c concept.Candidate, to State, reason string, repaired bool) Outcome {
	if !to.Terminal() {
		to, reason = StateFailed, fmt.Sprintf("stopped in non-terminal state %s", to)
	}
	if to != StateFailed && len(c.Headlines) == 0 {
		to, reason = StateFailed, "no headline recovered"
	}
	m.move(to, reason)
	c.Status = to.Status()
	return Outcome{Candidate: c, Final: to, Transitions: m.transitions, Reason: reason, Repaired: repaired}
}

// #endregion loop

// #region run
// Run settles an evaluated candidate. ev must be the evaluation already
// applied to c. With repair disabled, a hard failure ends in Failed and a
// soft one in NeedsReview. With repair enabled, a failing candidate gets one
// repair prompt; the repair wins if it passes, otherwise the better of the
// two by overall score is kept as NeedsReview. A repair that cannot be
// generated or parsed leaves the original, stamped Failed.
func (l *Loop) Run(ctx context.Context, c concept.Candidate, ev arbiter.Evaluation, actx arbiter.Context, repair bool) Outcome {
	m := &machine{state: StateInitial, iteration: c.Iteration}
	m.move(StateEvaluated, fmt.Sprintf("overall %.1f", ev.Overall))

	if ev.Passed {
		return m.finish(c, StatePassed, "", false)
	}
	if !repair || c.Iteration >= MaxIterations {
		if ev.HasHardFailure() {
			return m.finish(c, StateFailed, "hard criterion failed: "+first(ev.Failures), false)
		}
		return m.finish(c, StateNeedsReview, "soft criterion failed: "+first(ev.Failures), false)
	}

	repaired, rev, err := l.attempt(ctx, m, c, ev.Failures, actx)
	if err != nil {
		c.Iteration = MaxIterations
		out := m.finish(c, StateFailed, err.Error(), false)
		out.Fallback = true
		return out
	}
	if rev.Passed {
		return m.finish(repaired, StatePassed, "repaired", true)
	}
	if repaired.Overall() >= c.Overall() {
		return m.finish(repaired, StateNeedsReview, "repair improved but still fails "+first(rev.Failures), true)
	}
	c.Iteration = MaxIterations
	c.Notes = append(c.Notes, fmt.Sprintf("repair scored %.1f, kept original", repaired.Overall()))
	return m.finish(c, StateNeedsReview, "repair scored lower than original", false)
}

// Regenerate replaces a duplicate with a fresh take on the same assignment.
// There is no fallback: a duplicate is never worth keeping, so any failure to
// regenerate ends in Failed.
func (l *Loop) Regenerate(ctx context.Context, c concept.Candidate, feedback string, actx arbiter.Context) Outcome {
	m := &machine{state: StateInitial, iteration: c.Iteration}
	m.move(StateEvaluated, feedback)
	if c.Iteration >= MaxIterations {
		return m.finish(c, StateFailed, "iteration cap reached", false)
	}

	failures := []arbiter.Failure{{Criterion: Diversity, Feedback: feedback}}
	fresh, ev, err := l.attempt(ctx, m, c, failures, actx)
	if err != nil {
		c.Iteration = MaxIterations
		return m.finish(c, StateFailed, err.Error(), false)
	}
	if ev.Passed {
		return m.finish(fresh, StatePassed, "regenerated", true)
	}
	if ev.HasHardFailure() {
		return m.finish(fresh, StateFailed, "regenerated concept failed "+first(ev.Failures), true)
	}
	return m.finish(fresh, StateNeedsReview, "regenerated concept failed "+first(ev.Failures), true)
}

// attempt runs the Refining step: prompt, parse, evaluate. The returned
// candidate keeps the original's identity and assignment.
func (l *Loop) attempt(ctx context.Context, m *machine, c concept.Candidate, failures []arbiter.Failure, actx arbiter.Context) (concept.Candidate, arbiter.Evaluation, error) {
	m.move(StateRefining, criteria(failures))
	m.iteration = c.Iteration + 1

	temp := l.config.BaseTemperature + l.config.TemperatureStep
	raw, err := l.model.Complete(ctx, RepairPrompt(c, failures, actx), temp, l.config.MaxTokens)
	if err != nil {
		log.Printf("[REFINE] %s repair generation failed: %v", c.ID, err)
		return concept.Candidate{}, arbiter.Evaluation{}, fmt.Errorf("repair generation: %w", err)
	}
	next, err := l.parse(raw)
	if err != nil {
		log.Printf("[REFINE] %s repair unparsable: %v", c.ID, err)
		return concept.Candidate{}, arbiter.Evaluation{}, fmt.Errorf("repair parse: %w", err)
	}

	next.ID = c.ID
	next.RecordID = ""
	next.Slot = c.Slot
	next.Device = c.Device
	next.SecondaryDevice = c.SecondaryDevice
	next.ExampleID = c.ExampleID
	next.Iteration = m.iteration
	next.DiversityStatus = c.DiversityStatus
	next.DiversityBonus = c.DiversityBonus
	next.PriorScores = append(append([]map[string]concept.Score(nil), c.PriorScores...), c.Scores)

	ev := l.eval.Evaluate(ctx, next, actx)
	Apply(&next, ev)
	m.move(StateEvaluated, fmt.Sprintf("overall %.1f", ev.Overall))
	log.Printf("[REFINE] %s iteration %d overall=%.1f passed=%v", c.ID, next.Iteration, ev.Overall, ev.Passed)
	return next, ev, nil
}

// #endregion run
