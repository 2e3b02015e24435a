package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region judge-arbiter

const (
	judgeTemperature = 0.1
	judgeMaxTokens   = 300
)

// JudgeArbiter asks a model to grade one dimension and reply with
// {"score": 0-100, "rationale": "..."}.
type JudgeArbiter struct {
	name      string
	rubric    string
	judge     Judge
	threshold float64
	neutral   float64
}

// NewRhetorical grades execution of the assigned rhetorical device.
func NewRhetorical(j Judge, threshold float64) *JudgeArbiter {
	return &JudgeArbiter{
		name:      RhetoricalStrength,
		judge:     j,
		threshold: threshold,
		neutral:   neutralRhetorical,
		rubric: "Grade how skillfully the concept executes its assigned rhetorical device. " +
			"High scores need the device to carry the idea, not decorate it.",
	}
}

// NewPracticality grades how producible the visual is.
func NewPracticality(j Judge, threshold float64) *JudgeArbiter {
	return &JudgeArbiter{
		name:      Practicality,
		judge:     j,
		threshold: threshold,
		neutral:   neutralPracticality,
		rubric: "Grade whether the visual can be produced as a single still ad within a normal budget " +
			"and whether the headline reads at a glance.",
	}
}

// NewAudience grades resonance with the derived target audience.
func NewAudience(j Judge, threshold float64) *JudgeArbiter {
	return &JudgeArbiter{
		name:      AudienceResonance,
		judge:     j,
		threshold: threshold,
		neutral:   neutralAudience,
		rubric:    "Grade how strongly the concept would resonate with the target audience named below.",
	}
}

// NewAward grades award potential.
func NewAward(j Judge, threshold float64) *JudgeArbiter {
	return &JudgeArbiter{
		name:      AwardPotential,
		judge:     j,
		threshold: threshold,
		neutral:   neutralAward,
		rubric: "Grade the concept as a Cannes Lions or D&AD juror would: craft, surprise, " +
			"and a single sharp idea.",
	}
}

func (a *JudgeArbiter) Name() string       { return a.name }
func (a *JudgeArbiter) Threshold() float64 { return a.threshold }

func (a *JudgeArbiter) Score(ctx context.Context, c concept.Candidate, actx Context) concept.Score {
	raw, err := a.judge.Complete(ctx, a.prompt(c, actx), judgeTemperature, judgeMaxTokens)
	if err != nil {
		return neutral(a.neutral, a.name+" judge unavailable: "+err.Error())
	}
	value, rationale, err := ParseVerdict(raw)
	if err != nil {
		return neutral(a.neutral, a.name+" verdict unreadable: "+err.Error())
	}
	return concept.Score{Value: value, Passed: value >= a.threshold, Feedback: rationale}
}

func (a *JudgeArbiter) prompt(c concept.Candidate, actx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior creative director scoring an ad concept on %s.\n", strings.ReplaceAll(a.name, "_", " "))
	b.WriteString(a.rubric)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Brief: %s\nTone: %s\n", actx.Brief.Query, actx.Brief.Tone)
	if actx.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", actx.TargetAudience)
	}
	if c.Device.ID != "" {
		fmt.Fprintf(&b, "Assigned device: %s (%s)\n", c.Device.Name, c.Device.Definition)
	}
	b.WriteString("\nConcept:\n")
	fmt.Fprintf(&b, "Headlines: %s\n", strings.Join(c.Headlines, " | "))
	if c.Tagline != "" {
		fmt.Fprintf(&b, "Tagline: %s\n", c.Tagline)
	}
	fmt.Fprintf(&b, "Visual: %s\n", c.VisualDescription)
	if c.BodyCopy != "" {
		fmt.Fprintf(&b, "Body copy: %s\n", c.BodyCopy)
	}
	b.WriteString("\nReply with only a JSON object: {\"score\": <0-100>, \"rationale\": \"<one sentence>\"}")
	return b.String()
}

// #endregion judge-arbiter

// #region verdict-parsing

var levelScores = map[string]float64{
	"very high": 95,
	"high":      85,
	"medium":    60,
	"moderate":  60,
	"low":       30,
	"very low":  10,
}

// ParseVerdict extracts score and rationale from a judge reply. Code fences
// and surrounding prose are ignored. Scores may be numbers, numeric strings,
// or level words; the result is clamped to [0, 100].
func ParseVerdict(raw string) (float64, string, error) {
	obj, err := extractJSONObject(stripFences(raw))
	if err != nil {
		return 0, "", err
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return 0, "", fmt.Errorf("decode verdict: %w", err)
	}

	var score float64
	found := false
	for _, key := range []string{"score", "rating", "level"} {
		if s, ok := scoreValue(v[key]); ok {
			score, found = s, true
			break
		}
	}
	if !found {
		return 0, "", errors.New("verdict has no score")
	}

	rationale := ""
	for _, key := range []string{"rationale", "analysis", "feedback", "reason"} {
		if s, ok := v[key].(string); ok && s != "" {
			rationale = s
			break
		}
	}
	return clamp(score, 0, 100), rationale, nil
}

func scoreValue(x any) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		if f, ok := levelScores[strings.ToLower(s)]; ok {
			return f, true
		}
	}
	return 0, false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func extractJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty response")
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", fmt.Errorf("no json object start found")
	}

	inString := false
	escape := false
	depth := 0
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated json object")
}

// #endregion verdict-parsing
