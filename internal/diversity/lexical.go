package diversity

import (
	"strings"
	"unicode"
)

// #region lexical
// fillerWords are dropped before comparing two concepts: function words plus
// the section labels and stock verbs every generated concept repeats.
const fillerWords = `a an the is are was were be been being am do does did have has had
will would could should may might can shall must not no nor and or but if then than so
as at by for from in into of on onto to with without about over under up out off it its
this that these those what which who whom how when where why you your yours me my mine
we our ours they their them he she her him his us i every each all any more most just
visual headline headlines tagline strategic impact body copy concept shot shows showing
make makes get gets new now one`

var stopwords = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(fillerWords) {
		set[w] = struct{}{}
	}
	return set
}()

// contentTokens returns the distinct lowercase words of text that carry
// meaning, ignoring filler and single characters.
func contentTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 2 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// SharedTokenRatio is the overlap of content tokens relative to the smaller
// token set, in [0, 1]. Texts with no content tokens share nothing.
func SharedTokenRatio(a, b string) float64 {
	ta, tb := contentTokens(a), contentTokens(b)
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	if len(ta) == 0 {
		return 0
	}
	shared := 0
	for w := range ta {
		if _, ok := tb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

// #endregion lexical
