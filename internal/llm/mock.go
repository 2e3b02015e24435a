package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// #region mock-model
var (
	mockSubjects = []string{
		"a paper boat", "a city rooftop", "an empty stadium", "a kitchen table",
		"a lighthouse", "a subway window", "a garden hose", "a school desk",
		"a snow globe", "a bicycle bell", "a cracked phone screen", "a ticket stub",
	}
	mockActions = []string{
		"folding into a map", "catching the first light", "casting a long shadow",
		"growing a tiny forest", "ringing in silence", "drawn in chalk",
		"reflected upside down", "stitched from receipts",
	}
	mockHeadlines = []string{
		"Small things travel far", "Begin where you stand", "Quiet is loud here",
		"Made for the long way", "Less noise more you", "Keep what matters",
		"Every day counts twice", "Light finds a way", "The map was you",
		"Stay a little longer",
	}
	mockRationales = []string{
		"The device carries the idea rather than decorating it.",
		"Clear single image that reads at a glance.",
		"Familiar territory, but the headline earns its place.",
		"A sharp turn that the audience will repeat.",
	}
)

// verdictMarker is how judge prompts ask for a JSON score.
const verdictMarker = "Reply with only a JSON object"

// Mock is a deterministic offline model. The same prompt always yields the
// same concept; different prompts usually yield different ones.
type Mock struct{}

// NewMock creates a Mock.
func NewMock() *Mock { return &Mock{} }

// Complete returns a labeled concept derived from a hash of prompt, or a JSON
// verdict scoring 62-95 when the prompt is a judge prompt.
func (m *Mock) Complete(ctx context.Context, prompt string, _ float64, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h := hash64(prompt)
	if strings.Contains(prompt, verdictMarker) {
		return fmt.Sprintf(`{"score": %d, "rationale": %q}`,
			62+h%34, mockRationales[(h>>8)%uint64(len(mockRationales))]), nil
	}
	subject := mockSubjects[h%uint64(len(mockSubjects))]
	action := mockActions[(h>>8)%uint64(len(mockActions))]
	first := mockHeadlines[(h>>16)%uint64(len(mockHeadlines))]
	second := mockHeadlines[(h>>24)%uint64(len(mockHeadlines))]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Visual: %s %s, shot from above on a plain background.\n", capitalize(subject), action)
	sb.WriteString("Headlines:\n")
	fmt.Fprintf(&sb, "- %s\n", first)
	if second != first {
		fmt.Fprintf(&sb, "- %s\n", second)
	}
	fmt.Fprintf(&sb, "Tagline: %s.\n", strings.TrimSuffix(first, "."))
	fmt.Fprintf(&sb, "Strategic Impact: Turns %s into a symbol the audience already owns.\n", subject)
	return sb.String(), nil
}

// #endregion mock-model

// #region mock-embedder
// MockDims is the width of MockEmbedder vectors.
const MockDims = 256

// MockEmbedder hashes words into a fixed-width bag-of-words vector, so texts
// sharing words are similar and disjoint texts are nearly orthogonal.
type MockEmbedder struct{}

// Embed returns the hashed bag-of-words vector of text.
func (MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, MockDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		vec[hash64(w)%MockDims]++
	}
	return vec, nil
}

// #endregion mock-embedder

func hash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
