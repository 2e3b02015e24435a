package diversity

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region gate
// Gate rejects or flags candidates that collide with each other or with
// recent history. Embedding similarity is used when both sides embed;
// otherwise shared-token ratio decides.
type Gate struct {
	vectors vector.Space
	config  Config
}

// NewGate creates a Gate. vectors may be nil, in which case every decision
// falls back to lexical overlap.
func NewGate(vectors vector.Space, config Config) *Gate {
	return &Gate{vectors: vectors, config: config}
}

// Config returns the gate's thresholds.
func (g *Gate) Config() Config {
	return g.config
}

// #endregion gate

// #region filter
type item struct {
	c   concept.Candidate
	vec []float32
}

// Filter walks cands best-first by composite score (slot breaks ties) and
// keeps each one that is not a near-duplicate of an already kept candidate or
// of a history text. A duplicate is marked for regeneration while
// regenBudget lasts and rejected after that. Survivors are pairwise below
// the batch threshold.
func (g *Gate) Filter(ctx context.Context, cands []concept.Candidate, history []string, regenBudget int) Result {
	items := make([]item, len(cands))
	for i, c := range cands {
		items[i] = item{c: c.Clone(), vec: g.embed(ctx, c.Text())}
	}
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := items[i].c.Composite(), items[j].c.Composite()
		if ci != cj {
			return ci > cj
		}
		return items[i].c.Slot < items[j].c.Slot
	})
	hist := g.embedHistory(ctx, history)
	alone := g.isolated(items)

	var res Result
	var kept []item
	for i, it := range items {
		d := g.check(ctx, it, kept, history, hist)
		if d.Status == concept.DiversityUnique {
			kept = append(kept, it)
		} else if regenBudget > 0 {
			regenBudget--
			d.Status = concept.DiversityRegenerate
		} else {
			d.Status = concept.DiversityRejected
		}
		it.c.DiversityStatus = d.Status
		if d.Reason != "" {
			it.c.Notes = append(it.c.Notes, d.Reason)
		}

		switch d.Status {
		case concept.DiversityUnique:
			if alone[i] {
				it.c.DiversityBonus = g.config.Bonus
			}
			res.Survivors = append(res.Survivors, it.c)
		case concept.DiversityRegenerate:
			res.Regenerate = append(res.Regenerate, it.c)
		default:
			res.Rejected = append(res.Rejected, it.c)
		}
		res.Decisions = append(res.Decisions, d)
	}

	log.Printf("[GATE] batch=%d survivors=%d regenerate=%d rejected=%d",
		len(cands), len(res.Survivors), len(res.Regenerate), len(res.Rejected))
	return res
}

// Admit reports whether c may join kept without breaking the batch
// threshold. It is used for candidates returning from regeneration.
func (g *Gate) Admit(ctx context.Context, kept []concept.Candidate, c concept.Candidate) (bool, Decision) {
	others := make([]item, len(kept))
	for i, k := range kept {
		others[i] = item{c: k, vec: g.embed(ctx, k.Text())}
	}
	d := g.check(ctx, item{c: c, vec: g.embed(ctx, c.Text())}, others, nil, nil)
	if d.Status != concept.DiversityUnique {
		d.Status = concept.DiversityRejected
		return false, d
	}
	return true, d
}

// #endregion filter

// #region similarity
func (g *Gate) check(ctx context.Context, it item, kept []item, history []string, hist [][]float32) Decision {
	d := Decision{CandidateID: it.c.ID, Slot: it.c.Slot, Status: concept.DiversityUnique}

	for _, k := range kept {
		sim, method := g.similarity(it, k)
		if sim > d.Similarity {
			d.Similarity, d.Method, d.NearestID = sim, method, k.c.ID
		}
		if sim > g.threshold(method) {
			d.Status = concept.DiversityRegenerate
			d.Similarity, d.Method, d.NearestID = sim, method, k.c.ID
			d.Reason = fmt.Sprintf("too similar to %q (%.2f %s)", k.c.Headline(), sim, method)
			return d
		}
	}

	if it.vec != nil && len(hist) > 0 {
		for i, h := range hist {
			if h == nil {
				continue
			}
			if sim := g.vectors.Similarity(it.vec, h); sim > g.config.HistoryThreshold {
				d.Status = concept.DiversityRegenerate
				d.Similarity, d.Method = sim, MethodEmbedding
				d.Reason = fmt.Sprintf("repeats a recent concept %q (%.2f)", truncate(history[i], 60), sim)
				return d
			}
		}
		return d
	}
	for _, h := range history {
		if sim := SharedTokenRatio(it.c.Text(), h); sim > g.config.LexicalThreshold {
			d.Status = concept.DiversityRegenerate
			d.Similarity, d.Method = sim, MethodLexical
			d.Reason = fmt.Sprintf("repeats a recent concept %q (%.2f lexical)", truncate(h, 60), sim)
			return d
		}
	}
	return d
}

func (g *Gate) similarity(a, b item) (float64, Method) {
	if a.vec != nil && b.vec != nil {
		return g.vectors.Similarity(a.vec, b.vec), MethodEmbedding
	}
	return SharedTokenRatio(a.c.Text(), b.c.Text()), MethodLexical
}

func (g *Gate) threshold(m Method) float64 {
	if m == MethodLexical {
		return g.config.LexicalThreshold
	}
	return g.config.BatchThreshold
}

// isolated reports, per item, whether it has no close sibling anywhere in
// the batch. Flagged and rejected siblings count.
func (g *Gate) isolated(all []item) []bool {
	out := make([]bool, len(all))
	for i := range all {
		out[i] = true
		for j := range all {
			if i == j {
				continue
			}
			if sim, m := g.similarity(all[i], all[j]); sim > g.threshold(m) {
				out[i] = false
				break
			}
		}
	}
	return out
}

func (g *Gate) embed(ctx context.Context, text string) []float32 {
	if g.vectors == nil || text == "" {
		return nil
	}
	vec, err := g.vectors.Embed(ctx, text)
	if err != nil {
		return nil
	}
	return vec
}

func (g *Gate) embedHistory(ctx context.Context, history []string) [][]float32 {
	if g.vectors == nil || len(history) == 0 {
		return nil
	}
	out := make([][]float32, len(history))
	embedded := false
	for i, h := range history {
		out[i] = g.embed(ctx, h)
		if out[i] != nil {
			embedded = true
		}
	}
	if !embedded {
		return nil
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// #endregion similarity
