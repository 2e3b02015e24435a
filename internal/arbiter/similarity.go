package arbiter

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region reference-lists

// QualityBenchmarks are famous lines a new concept must not echo.
var QualityBenchmarks = []string{
	"Just Do It - Nike",
	"Think Different - Apple",
	"The Ultimate Driving Machine - BMW",
	"Melts in Your Mouth, Not in Your Hands - M&M's",
	"Have a Break, Have a KitKat - KitKat",
	"Because You're Worth It - L'Oreal",
	"Breakfast of Champions - Wheaties",
	"Good to the Last Drop - Maxwell House",
	"Finger Lickin' Good - KFC",
	"Like a Good Neighbor, State Farm Is There - State Farm",
}

// SensitiveConcepts is the cultural watch-list.
var SensitiveConcepts = []string{
	"sacred religious symbols used as decoration",
	"traditional ceremonies turned into costumes",
	"struggles of minority communities used for marketing",
	"historical trauma and tragedy as a punchline",
	"indigenous spiritual practices as a product feature",
	"ethnic stereotypes and caricatures",
}

// ClichePhrases cap originality when they appear in a concept.
var ClichePhrases = []string{
	"just do it", "think different", "the ultimate", "your journey",
	"unlock your potential", "ignite your passion", "empower yourself",
	"revolutionary", "game changer", "next level",
}

// ClicheCap is the highest originality a concept containing a cliche can get.
const ClicheCap = 60

// #endregion reference-lists

// #region neutral-defaults
const (
	neutralOriginality  = 50
	neutralRelevance    = 70
	neutralCultural     = 80
	neutralRhetorical   = 70
	neutralPracticality = 70
	neutralAudience     = 60
	neutralAward        = 50
)

func neutral(value float64, why string) concept.Score {
	return concept.Score{Value: value, Passed: true, Degraded: true, Feedback: why}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion neutral-defaults

// #region originality

// OriginalityArbiter scores 100*(1-maxSim) against the benchmarks and the
// recent-history window.
type OriginalityArbiter struct {
	vectors   vector.Space
	threshold float64
}

// NewOriginality creates the originality arbiter.
func NewOriginality(vectors vector.Space, threshold float64) *OriginalityArbiter {
	return &OriginalityArbiter{vectors: vectors, threshold: threshold}
}

func (a *OriginalityArbiter) Name() string       { return Originality }
func (a *OriginalityArbiter) Threshold() float64 { return a.threshold }

func (a *OriginalityArbiter) Score(ctx context.Context, c concept.Candidate, actx Context) concept.Score {
	vec, err := a.vectors.Embed(ctx, c.Text())
	if err != nil {
		return neutral(neutralOriginality, "originality unavailable: "+err.Error())
	}

	refs := make([]string, 0, len(QualityBenchmarks)+len(actx.History))
	refs = append(refs, QualityBenchmarks...)
	refs = append(refs, actx.History...)
	maxSim, idx, err := vector.MaxSimilarity(ctx, a.vectors, vec, refs)
	if err != nil {
		return neutral(neutralOriginality, "originality unavailable: "+err.Error())
	}

	score := clamp(100*(1-maxSim), 0, 100)
	var notes []string
	if idx >= 0 && maxSim > 0 {
		notes = append(notes, fmt.Sprintf("closest reference %q at similarity %.2f", refs[idx], maxSim))
	}
	if phrase := findCliche(c); phrase != "" && score > ClicheCap {
		score = ClicheCap
		notes = append(notes, fmt.Sprintf("uses the cliche %q", phrase))
	}
	return concept.Score{
		Value:    score,
		Passed:   score >= a.threshold,
		Feedback: strings.Join(notes, "; "),
	}
}

func findCliche(c concept.Candidate) string {
	text := strings.ToLower(strings.Join(append(append([]string{}, c.Headlines...), c.Tagline, c.VisualDescription), " "))
	for _, p := range ClichePhrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}

// #endregion originality

// #region relevance

// RelevanceArbiter scores cosine similarity between concept and brief.
type RelevanceArbiter struct {
	vectors   vector.Space
	threshold float64
}

// NewRelevance creates the relevance arbiter.
func NewRelevance(vectors vector.Space, threshold float64) *RelevanceArbiter {
	return &RelevanceArbiter{vectors: vectors, threshold: threshold}
}

func (a *RelevanceArbiter) Name() string       { return Relevance }
func (a *RelevanceArbiter) Threshold() float64 { return a.threshold }

func (a *RelevanceArbiter) Score(ctx context.Context, c concept.Candidate, actx Context) concept.Score {
	cv, err := a.vectors.Embed(ctx, c.Text())
	if err != nil {
		return neutral(neutralRelevance, "relevance unavailable: "+err.Error())
	}
	bv, err := a.vectors.Embed(ctx, actx.Brief.Query)
	if err != nil {
		return neutral(neutralRelevance, "relevance unavailable: "+err.Error())
	}
	score := clamp(a.vectors.Similarity(cv, bv)*100, 0, 100)
	s := concept.Score{Value: score, Passed: score >= a.threshold}
	if !s.Passed {
		s.Feedback = fmt.Sprintf("concept drifts from the brief %q", actx.Brief.Query)
	}
	return s
}

// #endregion relevance

// #region cultural

// CulturalArbiter scores distance from the sensitive-concept watch-list.
type CulturalArbiter struct {
	vectors   vector.Space
	threshold float64
	watch     []string
}

// NewCultural creates the cultural-sensitivity arbiter over SensitiveConcepts.
func NewCultural(vectors vector.Space, threshold float64) *CulturalArbiter {
	return &CulturalArbiter{vectors: vectors, threshold: threshold, watch: SensitiveConcepts}
}

func (a *CulturalArbiter) Name() string       { return CulturalSensitivity }
func (a *CulturalArbiter) Threshold() float64 { return a.threshold }

func (a *CulturalArbiter) Score(ctx context.Context, c concept.Candidate, _ Context) concept.Score {
	vec, err := a.vectors.Embed(ctx, c.Text())
	if err != nil {
		return neutral(neutralCultural, "cultural check unavailable: "+err.Error())
	}
	maxSim, idx, err := vector.MaxSimilarity(ctx, a.vectors, vec, a.watch)
	if err != nil {
		return neutral(neutralCultural, "cultural check unavailable: "+err.Error())
	}
	score := clamp(100*(1-maxSim), 0, 100)
	s := concept.Score{Value: score, Passed: score >= a.threshold}
	if !s.Passed && idx >= 0 {
		s.Feedback = fmt.Sprintf("too close to sensitive theme: %s", a.watch[idx])
	}
	return s
}

// #endregion cultural
