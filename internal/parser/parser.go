package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// #region sections
type section int

const (
	sectionNone section = iota
	sectionHeadlines
	sectionTagline
	sectionVisual
	sectionBody
	sectionStrategic
	sectionCraft
	sectionIgnored
)

type label struct {
	text    string
	section section
}

// labels are matched case-insensitively against the start of a line's plain
// text and must be followed by ":" or the end of the line. Longer spellings
// come first so "headlines" wins over "headline".
var labels = []label{
	{"visual concept", sectionVisual},
	{"visual description", sectionVisual},
	{"visual idea", sectionVisual},
	{"visual", sectionVisual},
	{"image", sectionVisual},
	{"headline options", sectionHeadlines},
	{"headline ideas", sectionHeadlines},
	{"headlines", sectionHeadlines},
	{"headline", sectionHeadlines},
	{"tagline", sectionTagline},
	{"slogan", sectionTagline},
	{"body copy", sectionBody},
	{"body", sectionBody},
	{"copy", sectionBody},
	{"strategic impact", sectionStrategic},
	{"strategy", sectionStrategic},
	{"rationale", sectionStrategic},
	{"rhetorical craft breakdown", sectionCraft},
	{"rhetorical craft", sectionCraft},
	{"rhetorical devices", sectionCraft},
	{"rhetorical device", sectionCraft},
	{"success metrics", sectionIgnored},
	{"evaluation", sectionIgnored},
	{"quality standards", sectionIgnored},
	{"effectiveness", sectionIgnored},
	{"notes", sectionIgnored},
}

// MaxHeadlineLen bounds what is accepted as a headline line.
const MaxHeadlineLen = 120

var (
	bulletRe = regexp.MustCompile(`^(?:[-*+•]|\d+[.)])\s+`)
	optionRe = regexp.MustCompile(`(?i)^option\s*\d+\s*[:.)\-]\s*`)
	md       = goldmark.New()
)
// #endregion sections

// #region parse

// Parse turns free-form model markdown into a Candidate. It fails with
// concept.ErrUnparsable only when neither a visual description nor a
// headline can be recovered.
func Parse(raw string) (concept.Candidate, error) {
	p := &state{seen: make(map[string]bool)}
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		p.feed(line)
	}

	c := concept.Candidate{
		ID:              uuid.New().String(),
		RawText:         raw,
		Headlines:       p.headlines,
		Tagline:         p.tagline,
		BodyCopy:        joinLines(p.body),
		StrategicImpact: joinLines(p.strategic),
		RhetoricalCraft: p.craft,
		Iteration:       1,
		Status:          concept.StatusPending,
		DiversityStatus: concept.DiversityUnchecked,
	}
	if p.title != "" {
		c.Headlines = prependUnique(c.Headlines, p.title)
	}

	c.VisualDescription = joinLines(p.visual)
	if c.VisualDescription == "" {
		c.VisualDescription = c.BodyCopy
	}
	if c.VisualDescription == "" {
		c.VisualDescription = joinLines(p.unlabeled)
	}

	if c.VisualDescription == "" && len(c.Headlines) == 0 {
		return concept.Candidate{}, fmt.Errorf("parse: %w", concept.ErrUnparsable)
	}
	return c, nil
}

type state struct {
	current   section
	title     string
	headlines []string
	seen      map[string]bool
	tagline   string
	visual    []string
	body      []string
	strategic []string
	craft     []string
	unlabeled []string
}

func (p *state) feed(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	rest := trimmed
	if level > 0 {
		rest = strings.TrimSpace(trimmed[level:])
	}
	bullet := false
	if loc := bulletRe.FindStringIndex(rest); loc != nil && level == 0 {
		bullet = true
		rest = rest[loc[1]:]
	}

	plain := plainText(rest)
	if plain == "" {
		return
	}

	if sec, inline, ok := matchLabel(plain); ok {
		p.current = sec
		if inline != "" {
			p.add(sec, inline, bullet)
		}
		return
	}

	if optionRe.MatchString(plain) {
		p.addHeadline(plain)
		return
	}

	switch {
	case level == 1 && p.title == "":
		if h := cleanHeadline(plain); len(h) <= MaxHeadlineLen {
			p.title = h
		}
		return
	case level == 2 && p.tagline == "" && p.current == sectionNone:
		p.tagline = plain
		return
	case level > 0:
		// Unlabeled headings are section titles the model invented.
		return
	}

	p.add(p.current, plain, bullet)
}

func (p *state) add(sec section, s string, bullet bool) {
	switch sec {
	case sectionHeadlines:
		p.addHeadline(s)
	case sectionTagline:
		if p.tagline == "" {
			p.tagline = strings.Trim(s, `"“”`)
		}
	case sectionVisual:
		p.visual = append(p.visual, s)
	case sectionBody:
		p.body = append(p.body, s)
	case sectionStrategic:
		p.strategic = append(p.strategic, s)
	case sectionCraft:
		if bullet || len(p.craft) == 0 {
			p.craft = append(p.craft, s)
		} else {
			p.craft[len(p.craft)-1] += " " + s
		}
	case sectionIgnored:
	default:
		p.unlabeled = append(p.unlabeled, s)
	}
}

func (p *state) addHeadline(s string) {
	h := cleanHeadline(s)
	if h == "" || len(h) > MaxHeadlineLen {
		return
	}
	key := strings.ToLower(h)
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	p.headlines = append(p.headlines, h)
}
// #endregion parse

// #region helpers

// matchLabel reports whether plain opens a known section and returns any
// text following the label's colon.
func matchLabel(plain string) (section, string, bool) {
	lower := strings.ToLower(plain)
	for _, l := range labels {
		if !strings.HasPrefix(lower, l.text) {
			continue
		}
		tail := strings.TrimSpace(plain[len(l.text):])
		switch {
		case tail == "":
			return l.section, "", true
		case strings.HasPrefix(tail, ":"):
			return l.section, strings.TrimSpace(tail[1:]), true
		}
	}
	return sectionNone, "", false
}

func cleanHeadline(s string) string {
	s = optionRe.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(strings.Trim(s, `"“”'`))
}

// plainText renders inline markdown to its text content, dropping emphasis,
// links and code markers.
func plainText(s string) string {
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func joinLines(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, " "))
}

// prependUnique puts h first, dropping any case-insensitive duplicate of it.
func prependUnique(list []string, h string) []string {
	out := []string{h}
	for _, x := range list {
		if !strings.EqualFold(x, h) {
			out = append(out, x)
		}
	}
	return out
}
// #endregion helpers
