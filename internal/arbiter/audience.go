package arbiter

import (
	"regexp"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

type audienceRule struct {
	pattern  *regexp.Regexp
	audience string
}

// audienceRules are checked in order; the first match names the audience.
var audienceRules = []audienceRule{
	{regexp.MustCompile(`(?i)\bmental health\b`), "adults seeking emotional support and mindfulness"},
	{regexp.MustCompile(`(?i)\b(smartwatch|fitness tracker)\b`), "health-conscious tech adopters aged 25-45"},
	{regexp.MustCompile(`(?i)\b(eco-friendly|sustainable|organic)\b`), "environmentally conscious consumers aged 25-45"},
	{regexp.MustCompile(`(?i)\b(luxury|premium)\b`), "affluent consumers who value craftsmanship and status"},
	{regexp.MustCompile(`(?i)\b(b2b|enterprise)\b`), "business decision-makers and IT leaders"},
	{regexp.MustCompile(`(?i)\bstartups?\b`), "founders and early-stage teams"},
	{regexp.MustCompile(`(?i)\bfreelancers?\b`), "independent professionals managing their own business"},
	{regexp.MustCompile(`(?i)\b(ai|app|software)\b`), "tech-savvy professionals aged 25-40"},
	{regexp.MustCompile(`(?i)\b(health|wellness)\b`), "wellness-focused adults aged 30-55"},
	{regexp.MustCompile(`(?i)\bmillennials?\b`), "millennials aged 28-43"},
	{regexp.MustCompile(`(?i)\bgen ?z\b`), "Gen Z consumers aged 16-27"},
	{regexp.MustCompile(`(?i)\bprofessionals?\b`), "working professionals aged 25-50"},
	{regexp.MustCompile(`(?i)\bfamil(y|ies)\b`), "parents and families with children"},
}

var toneAudiences = map[concept.Tone]string{
	concept.ToneCreative:       "creative professionals and design enthusiasts",
	concept.ToneAnalytical:     "data-driven decision makers",
	concept.ToneConversational: "everyday consumers looking for relatable brands",
	concept.ToneTechnical:      "technical specialists and engineers",
	concept.ToneSummarize:      "busy readers who want the point fast",
}

// DefaultAudience is used when neither the brief nor the tone suggests one.
const DefaultAudience = "general consumers interested in quality products and services"

// DeriveTargetAudience guesses the audience from brief keywords, then tone.
func DeriveTargetAudience(query string, tone concept.Tone) string {
	q := strings.TrimSpace(query)
	for _, r := range audienceRules {
		if r.pattern.MatchString(q) {
			return r.audience
		}
	}
	if a, ok := toneAudiences[tone]; ok {
		return a
	}
	return DefaultAudience
}
