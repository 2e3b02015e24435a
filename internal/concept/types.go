package concept

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// #region tone
// Tone is the requested voice of a campaign brief.
type Tone string

const (
	ToneCreative       Tone = "creative"
	ToneBold           Tone = "bold"
	ToneStrategic      Tone = "strategic"
	ToneConversational Tone = "conversational"
	ToneSimplified     Tone = "simplified"
	ToneCore           Tone = "core"
	ToneAnalytical     Tone = "analytical"
	ToneTechnical      Tone = "technical"
	ToneSummarize      Tone = "summarize"
)

// Tones lists every accepted tone in display order.
var Tones = []Tone{
	ToneCreative, ToneBold, ToneStrategic, ToneConversational, ToneSimplified,
	ToneCore, ToneAnalytical, ToneTechnical, ToneSummarize,
}

// ParseTone maps a user string onto a Tone. Empty input yields ToneCreative.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ToneCreative, nil
	}
	for _, t := range Tones {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}
// #endregion tone

// #region brief
// MinOutput is the floor on how many concepts a run returns.
const MinOutput = 3

// Brief is the immutable input to one pipeline run.
type Brief struct {
	Query            string `json:"query"`
	Tone             Tone   `json:"tone"`
	Count            int    `json:"count"`
	EnableRefinement bool   `json:"enable_refinement"`
}

// OutputCount returns max(MinOutput, Count).
func (b Brief) OutputCount() int {
	if b.Count < MinOutput {
		return MinOutput
	}
	return b.Count
}

// Hash identifies the brief for caching. Case and surrounding space in the
// query do not change the hash.
func (b Brief) Hash() string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(b.Query)) + "\x00" + string(b.Tone)))
	return hex.EncodeToString(sum[:8])
}
// #endregion brief

// #region catalog-types
// RhetoricalDevice is a catalog entry identified by a snake_case id.
type RhetoricalDevice struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Definition string `json:"definition" yaml:"definition"`
}

// ReferenceExample is a curated campaign used as inspiration.
type ReferenceExample struct {
	ID        string   `json:"id" yaml:"id"`
	Campaign  string   `json:"campaign" yaml:"campaign"`
	Brand     string   `json:"brand" yaml:"brand"`
	Year      int      `json:"year" yaml:"year"`
	Headline  string   `json:"headline" yaml:"headline"`
	Devices   []string `json:"devices" yaml:"devices"`
	Rationale string   `json:"rationale" yaml:"rationale"`
}

// Text is the string embedded for similarity ranking.
func (e ReferenceExample) Text() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s: %s. %s", e.Brand, e.Campaign, e.Headline, e.Rationale))
}

// UsageCounter tracks how often a device or example has been used.
type UsageCounter struct {
	Key        string    `json:"key"`
	Count      int       `json:"count"`
	LastUsedAt time.Time `json:"last_used_at"`
}
// #endregion catalog-types

// #region status
// Status is the final disposition of a candidate.
type Status string

const (
	StatusPending     Status = "pending"
	StatusPassed      Status = "passed"
	StatusNeedsReview Status = "needs_review"
	StatusFailed      Status = "failed"
)

// DiversityStatus records what the diversity gate decided for a candidate.
type DiversityStatus string

const (
	DiversityUnchecked  DiversityStatus = "unchecked"
	DiversityUnique     DiversityStatus = "unique"
	DiversityRegenerate DiversityStatus = "regenerate"
	DiversityRejected   DiversityStatus = "rejected"
)
// #endregion status

// #region score
// Score is one arbiter's verdict. Degraded marks a neutral default issued
// because the arbiter's backend failed.
type Score struct {
	Value     float64 `json:"value"`
	Passed    bool    `json:"passed"`
	Feedback  string  `json:"feedback,omitempty"`
	Iteration int     `json:"iteration"`
	Degraded  bool    `json:"degraded,omitempty"`
}
// #endregion score

// #region candidate
// Candidate is one generated ad concept moving through the pipeline.
type Candidate struct {
	ID                string             `json:"id"`
	RecordID          string             `json:"record_id,omitempty"`
	Slot              int                `json:"slot"`
	VisualDescription string             `json:"visual_description"`
	Headlines         []string           `json:"headlines"`
	Tagline           string             `json:"tagline,omitempty"`
	BodyCopy          string             `json:"body_copy,omitempty"`
	StrategicImpact   string             `json:"strategic_impact,omitempty"`
	RhetoricalCraft   []string           `json:"rhetorical_craft,omitempty"`
	Device            RhetoricalDevice   `json:"device"`
	SecondaryDevice   RhetoricalDevice   `json:"secondary_device"`
	ExampleID         string             `json:"example_id,omitempty"`
	RawText           string             `json:"-"`
	Scores            map[string]Score   `json:"scores"`
	PriorScores       []map[string]Score `json:"prior_scores,omitempty"`
	DiversityStatus   DiversityStatus    `json:"diversity_status"`
	DiversityBonus    float64            `json:"diversity_bonus"`
	Iteration         int                `json:"iteration"`
	Status            Status             `json:"status"`
	Notes             []string           `json:"notes,omitempty"`
}

// Text is the canonical string embedded for similarity checks.
func (c Candidate) Text() string {
	parts := make([]string, 0, 2)
	if len(c.Headlines) > 0 {
		parts = append(parts, strings.Join(c.Headlines, " / "))
	}
	if c.VisualDescription != "" {
		parts = append(parts, c.VisualDescription)
	}
	return strings.Join(parts, ". ")
}

// Headline returns the lead headline or "".
func (c Candidate) Headline() string {
	if len(c.Headlines) == 0 {
		return ""
	}
	return c.Headlines[0]
}

// Composite is the ranking key: the sum of arbiter scores plus the diversity bonus.
func (c Candidate) Composite() float64 {
	total := c.DiversityBonus
	for _, s := range c.Scores {
		total += s.Value
	}
	return total
}

// Overall is the mean arbiter score, 0 when unscored.
func (c Candidate) Overall() float64 {
	if len(c.Scores) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range c.Scores {
		total += s.Value
	}
	return total / float64(len(c.Scores))
}

// FailedCriteria lists arbiters whose score did not pass, sorted by name.
func (c Candidate) FailedCriteria() []string {
	var out []string
	for name, s := range c.Scores {
		if !s.Passed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Clone copies the candidate so a refinement attempt cannot alias the original.
func (c Candidate) Clone() Candidate {
	out := c
	out.Headlines = append([]string(nil), c.Headlines...)
	out.RhetoricalCraft = append([]string(nil), c.RhetoricalCraft...)
	out.Notes = append([]string(nil), c.Notes...)
	if c.Scores != nil {
		out.Scores = make(map[string]Score, len(c.Scores))
		for k, v := range c.Scores {
			out.Scores[k] = v
		}
	}
	out.PriorScores = append([]map[string]Score(nil), c.PriorScores...)
	return out
}
// #endregion candidate
