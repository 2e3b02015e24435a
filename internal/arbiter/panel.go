package arbiter

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/logging"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region panel
// Panel runs every arbiter on a candidate in parallel and combines the
// verdicts. Overall is the mean score; Passed requires every arbiter to pass
// and the headline check to hold.
type Panel struct {
	arbiters    []Arbiter
	callTimeout time.Duration
	db          *sql.DB
}

// NewPanel creates a panel over arbiters. callTimeout bounds each arbiter call.
func NewPanel(arbiters []Arbiter, callTimeout time.Duration) *Panel {
	return &Panel{arbiters: arbiters, callTimeout: callTimeout}
}

// DefaultPanel wires the seven standard arbiters.
func DefaultPanel(vectors vector.Space, judge Judge, th Thresholds, callTimeout time.Duration) *Panel {
	return NewPanel([]Arbiter{
		NewOriginality(vectors, th.Originality),
		NewRelevance(vectors, th.Relevance),
		NewCultural(vectors, th.CulturalSensitivity),
		NewRhetorical(judge, th.RhetoricalStrength),
		NewPracticality(judge, th.Practicality),
		NewAudience(judge, th.AudienceResonance),
		NewAward(judge, th.AwardPotential),
	}, callTimeout)
}

// WithRejectionLog records every threshold breach in db's arbiter_rejections table.
func (p *Panel) WithRejectionLog(db *sql.DB) *Panel {
	p.db = db
	return p
}

// Names lists the panel's arbiters.
func (p *Panel) Names() []string {
	out := make([]string, len(p.arbiters))
	for i, a := range p.arbiters {
		out[i] = a.Name()
	}
	return out
}
// #endregion panel

// #region evaluate
// Evaluate scores c on every arbiter. It never fails; an arbiter that panics
// is treated like one whose backend failed.
func (p *Panel) Evaluate(ctx context.Context, c concept.Candidate, actx Context) Evaluation {
	if actx.TargetAudience == "" {
		actx.TargetAudience = DeriveTargetAudience(actx.Brief.Query, actx.Brief.Tone)
	}

	scores := make([]concept.Score, len(p.arbiters))
	var wg sync.WaitGroup
	for i, a := range p.arbiters {
		wg.Add(1)
		go func(i int, a Arbiter) {
			defer wg.Done()
			scores[i] = p.score(ctx, a, c, actx)
		}(i, a)
	}
	wg.Wait()

	ev := Evaluation{Scores: make(map[string]concept.Score, len(p.arbiters)), Passed: true}
	total := 0.0
	for i, a := range p.arbiters {
		s := scores[i]
		s.Iteration = c.Iteration
		ev.Scores[a.Name()] = s
		total += s.Value
		if !s.Passed {
			ev.Passed = false
			ev.Failures = append(ev.Failures, Failure{
				Criterion: a.Name(),
				Score:     s.Value,
				Threshold: a.Threshold(),
				Feedback:  s.Feedback,
				Hard:      IsHard(a.Name()),
			})
			p.logRejection(c, actx, a, s)
		}
	}
	if len(p.arbiters) > 0 {
		ev.Overall = total / float64(len(p.arbiters))
	}

	if f, ok := CheckHeadlines(c); !ok {
		ev.Passed = false
		ev.Failures = append(ev.Failures, f)
	}
	sort.SliceStable(ev.Failures, func(i, j int) bool { return ev.Failures[i].Hard && !ev.Failures[j].Hard })
	return ev
}

func (p *Panel) score(ctx context.Context, a Arbiter, c concept.Candidate, actx Context) (s concept.Score) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ARB] %s panicked: %v", a.Name(), r)
			s = neutral(a.Threshold(), fmt.Sprintf("%s crashed", a.Name()))
		}
	}()
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	s = a.Score(ctx, c, actx)
	if s.Degraded {
		log.Printf("[ARB] %s degraded for %s: %s", a.Name(), c.ID, s.Feedback)
	}
	return s
}

func (p *Panel) logRejection(c concept.Candidate, actx Context, a Arbiter, s concept.Score) {
	log.Printf("[ARB] %s rejected %s: %.1f < %.1f", a.Name(), c.ID, s.Value, a.Threshold())
	if p.db == nil {
		return
	}
	err := logging.LogRejection(p.db, logging.RejectionEntry{
		CandidateID: c.ID,
		BriefHash:   actx.Brief.Hash(),
		Arbiter:     a.Name(),
		Score:       s.Value,
		Threshold:   a.Threshold(),
		Iteration:   c.Iteration,
		Feedback:    s.Feedback,
	})
	if err != nil {
		log.Printf("[ARB] rejection log: %v", err)
	}
}
// #endregion evaluate

// #region headline-check
// CheckHeadlines is the soft headline criterion: at least one headline, none
// longer than MaxHeadlineWords, and a lead headline within MaxLeadHeadlineChars.
func CheckHeadlines(c concept.Candidate) (Failure, bool) {
	f := Failure{Criterion: HeadlineLength}
	if len(c.Headlines) == 0 {
		f.Feedback = "no headline recovered; add a short headline"
		return f, false
	}
	for _, h := range c.Headlines {
		if n := len(strings.Fields(h)); n > MaxHeadlineWords {
			f.Score = float64(n)
			f.Threshold = MaxHeadlineWords
			f.Feedback = fmt.Sprintf("headline %q has %d words; keep it to %d", h, n, MaxHeadlineWords)
			return f, false
		}
	}
	if n := len([]rune(c.Headlines[0])); n > MaxLeadHeadlineChars {
		f.Score = float64(n)
		f.Threshold = MaxLeadHeadlineChars
		f.Feedback = fmt.Sprintf("lead headline is %d characters; keep it under %d", n, MaxLeadHeadlineChars)
		return f, false
	}
	return f, true
}
// #endregion headline-check
