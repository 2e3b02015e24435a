package refine

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// RepairPrompt asks the model for the smallest rewrite that clears the
// listed failures while keeping the assigned device and output layout.
func RepairPrompt(c concept.Candidate, failures []arbiter.Failure, actx arbiter.Context) string {
	var sb strings.Builder
	sb.WriteString("You are a senior copywriter revising an ad concept that missed its quality bar.\n")
	sb.WriteString("- Change only what the feedback requires; keep the idea if it is sound.\n")
	sb.WriteString("- Keep headlines under 12 words and the lead headline under 50 characters.\n")
	if c.Device.Name != "" {
		fmt.Fprintf(&sb, "- Keep the rhetorical device: %s (%s).\n", c.Device.Name, c.Device.Definition)
	}
	fmt.Fprintf(&sb, "\nBrief: %s\nTone: %s\n", actx.Brief.Query, actx.Brief.Tone)

	sb.WriteString("\nCurrent concept:\n")
	fmt.Fprintf(&sb, "Headlines: %s\n", strings.Join(c.Headlines, " | "))
	fmt.Fprintf(&sb, "Visual: %s\n", c.VisualDescription)
	if c.Tagline != "" {
		fmt.Fprintf(&sb, "Tagline: %s\n", c.Tagline)
	}

	sb.WriteString("\nFailed criteria:\n")
	for _, f := range failures {
		if f.Threshold > 0 {
			fmt.Fprintf(&sb, "- %s (%.0f, needs %.0f): %s\n", f.Criterion, f.Score, f.Threshold, f.Feedback)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Criterion, f.Feedback)
		}
	}

	sb.WriteString("\nReply in this layout:\nVisual: ...\nHeadlines:\n- ...\n- ...\nTagline: ...\nStrategic Impact: ...\n")
	return sb.String()
}

func criteria(failures []arbiter.Failure) string {
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Criterion
	}
	return strings.Join(names, ",")
}

func first(failures []arbiter.Failure) string {
	if len(failures) == 0 {
		return "unknown"
	}
	return failures[0].Criterion
}
