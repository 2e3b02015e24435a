package pipeline

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
)

var toneGuidance = map[concept.Tone]string{
	concept.ToneCreative:       "Surprising and imaginative; favour an unexpected visual.",
	concept.ToneBold:           "Confident and provocative; short declarative lines.",
	concept.ToneStrategic:      "Lead with the business insight the visual proves.",
	concept.ToneConversational: "Warm and plain-spoken, like a friend talking.",
	concept.ToneSimplified:     "One idea, few words, nothing clever for its own sake.",
	concept.ToneCore:           "Distil the brand truth to its essentials.",
	concept.ToneAnalytical:     "Ground the idea in a fact or number the audience can check.",
	concept.ToneTechnical:      "Precise; let the mechanism be the hero.",
	concept.ToneSummarize:      "Compress the brief into its single sharpest claim.",
}

// BuildPrompt writes the generation prompt for one slot.
func BuildPrompt(brief concept.Brief, sel retrieval.Selection) string {
	var sb strings.Builder
	sb.WriteString("You are an award-winning advertising creative. Write one print ad concept.\n")
	sb.WriteString("Requirements:\n")
	fmt.Fprintf(&sb, "- Tone: %s. %s\n", brief.Tone, toneGuidance[brief.Tone])
	if d := sel.Primary.Device; d.ID != "" {
		fmt.Fprintf(&sb, "- Build the idea on %s: %s\n", d.Name, d.Definition)
	}
	if d := sel.Secondary.Device; d.ID != "" {
		fmt.Fprintf(&sb, "- Support it with %s: %s\n", d.Name, d.Definition)
	}
	sb.WriteString("- Headlines under 12 words; the first under 50 characters.\n")
	sb.WriteString("- Avoid stock phrases and anything resembling a famous campaign.\n")

	if ex := sel.Example; ex != nil {
		sb.WriteString("\nFor inspiration only, do not imitate:\n")
		fmt.Fprintf(&sb, "%s for %s (%d): %q\n", ex.Campaign, ex.Brand, ex.Year, ex.Headline)
		if ex.Rationale != "" {
			fmt.Fprintf(&sb, "Why it worked: %s\n", ex.Rationale)
		}
	}

	fmt.Fprintf(&sb, "\nBrief: %s\n", brief.Query)
	sb.WriteString("\nReply in this layout and nothing else:\n")
	sb.WriteString("Visual: <one paragraph describing the image>\n")
	sb.WriteString("Headlines:\n- <headline>\n- <alternative>\n")
	sb.WriteString("Tagline: <line>\n")
	sb.WriteString("Body Copy: <two sentences at most>\n")
	sb.WriteString("Strategic Impact: <why it works>\n")
	sb.WriteString("Rhetorical Craft:\n- <how each device is used>\n")
	return sb.String()
}
