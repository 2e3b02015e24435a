package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/diversity"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/danielpatrickdp/concept-arbiter/internal/parser"
	"github.com/danielpatrickdp/concept-arbiter/internal/refine"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
	"github.com/danielpatrickdp/concept-arbiter/internal/store"
	"golang.org/x/sync/errgroup"
)

// #region orchestrator-struct

// Deps are the collaborators of an Orchestrator. Ledger and Store are
// optional.
type Deps struct {
	Model    Generator
	Selector Selector
	Panel    refine.Evaluator
	Gate     *diversity.Gate
	Ledger   UsageLedger
	Store    Recorder
}

// Orchestrator runs generate, score, diversify, refine and rank for a brief.
type Orchestrator struct {
	deps   Deps
	loop   *refine.Loop
	config Config
}

// #endregion orchestrator-struct

// #region constructor

// NewOrchestrator wires an orchestrator. A nil Gate gets one with default
// thresholds and no embeddings.
func NewOrchestrator(deps Deps, config Config, refineConfig refine.Config) *Orchestrator {
	if deps.Gate == nil {
		deps.Gate = diversity.NewGate(nil, diversity.DefaultConfig())
	}
	if refineConfig.BaseTemperature == 0 {
		refineConfig.BaseTemperature = config.Temperature
	}
	if refineConfig.MaxTokens == 0 {
		refineConfig.MaxTokens = config.MaxTokens
	}
	return &Orchestrator{
		deps:   deps,
		loop:   refine.NewLoop(deps.Model, parser.Parse, deps.Panel, refineConfig),
		config: config,
	}
}

// #endregion constructor

// #region generate

// Generate returns up to max(3, brief.Count) ranked concepts. It never
// fails: when nothing survives, Result.Reason says why.
func (o *Orchestrator) Generate(ctx context.Context, brief concept.Brief) Result {
	start := time.Now()
	if brief.Tone == "" {
		brief.Tone = concept.ToneCreative
	}
	count := brief.OutputCount()
	width := BatchWidth(count, o.config.MaxParallel)
	stats := Stats{Requested: count, BatchWidth: width}

	if o.config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Deadline)
		defer cancel()
	}

	finish := func(res Result) Result {
		stats.Elapsed = time.Since(start)
		res.Stats = stats
		log.Printf("[PIPE] done brief=%s returned=%d passed=%d review=%d elapsed=%s reason=%q",
			brief.Hash(), len(res.Candidates), stats.Passed, stats.NeedsReview, stats.Elapsed.Round(time.Millisecond), res.Reason)
		return res
	}

	log.Printf("[PIPE] start brief=%s tone=%s count=%d width=%d refine=%v",
		brief.Hash(), brief.Tone, count, width, brief.EnableRefinement)

	history := o.history()
	actx := arbiter.Context{
		Brief:          brief,
		History:        history,
		TargetAudience: arbiter.DeriveTargetAudience(brief.Query, brief.Tone),
	}

	genCtx := ctx
	if o.config.Deadline > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.config.GenerationWindow())
		defer cancel()
	}
	cands, firstErr := o.generate(genCtx, brief, width, &stats)
	if len(cands) == 0 {
		return finish(Result{Reason: emptyReason(stats, firstErr)})
	}
	if err := genCtx.Err(); err != nil {
		log.Printf("[PIPE] generation window closed (%v), scoring %d parsed concepts", err, len(cands))
	}

	evs := o.score(ctx, cands, actx)

	// Past the deadline arbiters degrade to neutral; skip repairs that cannot finish.
	repair := brief.EnableRefinement && ctx.Err() == nil
	budget := 0
	if repair {
		budget = o.config.RegenerationBudget
	}
	gated := o.deps.Gate.Filter(ctx, cands, history, budget)
	stats.Duplicates = len(gated.Regenerate) + len(gated.Rejected)
	stats.Failed += len(gated.Rejected)

	outcomes := o.settle(ctx, gated, evs, actx, repair)
	final := o.rank(ctx, outcomes, count, &stats)
	o.persist(brief, final, &stats)

	res := Result{Candidates: final}
	switch {
	case len(final) == 0:
		res.Reason = "no concept survived scoring and diversity checks"
	case len(final) < count:
		res.Reason = fmt.Sprintf("only %d of %d requested concepts survived", len(final), count)
	}
	return finish(res)
}

// #endregion generate

// #region fan-out

// generate issues one model call per slot, at most MaxParallel at a time.
// Failed slots are dropped; usage is committed only for parsed slots.
func (o *Orchestrator) generate(ctx context.Context, brief concept.Brief, width int, stats *Stats) ([]concept.Candidate, error) {
	sels := o.deps.Selector.SelectBatch(ctx, brief, width)
	slots := make([]slot, len(sels))

	var g errgroup.Group
	g.SetLimit(o.parallel())
	for i, sel := range sels {
		g.Go(func() error {
			slots[i] = slot{sel: sel, result: o.generateSlot(ctx, brief, i, sel)}
			return nil
		})
	}
	_ = g.Wait()

	var cands []concept.Candidate
	var firstErr error
	for _, s := range slots {
		if s.result.OK() {
			stats.Parsed++
			cands = append(cands, s.result.Value)
			o.commit(s.sel)
			continue
		}
		if s.result.Kind == concept.KindParse {
			stats.Unparsable++
		} else {
			stats.GenerationErrors++
		}
		if firstErr == nil {
			firstErr = s.result.Err
		}
	}
	return cands, firstErr
}

func (o *Orchestrator) generateSlot(ctx context.Context, brief concept.Brief, i int, sel retrieval.Selection) concept.Result[concept.Candidate] {
	if err := ctx.Err(); err != nil {
		return concept.Fail[concept.Candidate](fmt.Errorf("slot %d: %w", i, err))
	}
	callCtx := ctx
	if o.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.config.CallTimeout)
		defer cancel()
	}

	raw, err := o.deps.Model.Complete(callCtx, BuildPrompt(brief, sel), o.config.Temperature, o.config.MaxTokens)
	if err != nil {
		log.Printf("[PIPE] slot %d generation failed: %v", i, err)
		return concept.Fail[concept.Candidate](fmt.Errorf("slot %d: %w", i, err))
	}
	c, err := parser.Parse(raw)
	if err != nil {
		log.Printf("[PIPE] slot %d unparsable: %v", i, err)
		return concept.Fail[concept.Candidate](fmt.Errorf("slot %d: %w", i, err))
	}

	c.Slot = i
	c.Device = sel.Primary.Device
	c.SecondaryDevice = sel.Secondary.Device
	c.ExampleID = sel.ExampleID()
	return concept.Ok(c)
}

func (o *Orchestrator) commit(sel retrieval.Selection) {
	if o.deps.Ledger == nil {
		return
	}
	if err := o.deps.Ledger.Commit(ledger.NamespaceDevices, sel.DeviceIDs()...); err != nil {
		log.Printf("[PIPE] commit devices: %v", err)
	}
	if err := o.deps.Ledger.Commit(ledger.NamespaceExamples, sel.ExampleID()); err != nil {
		log.Printf("[PIPE] commit example: %v", err)
	}
}

// #endregion fan-out

// #region score

// score evaluates every candidate concurrently and stamps the scores on cands.
func (o *Orchestrator) score(ctx context.Context, cands []concept.Candidate, actx arbiter.Context) map[string]arbiter.Evaluation {
	evs := make([]arbiter.Evaluation, len(cands))
	var g errgroup.Group
	g.SetLimit(o.parallel())
	for i := range cands {
		g.Go(func() error {
			evs[i] = o.deps.Panel.Evaluate(ctx, cands[i], actx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]arbiter.Evaluation, len(cands))
	for i := range cands {
		refine.Apply(&cands[i], evs[i])
		out[cands[i].ID] = evs[i]
	}
	return out
}

// #endregion score

// #region settle

// settle drives every survivor and every flagged duplicate to a terminal state.
func (o *Orchestrator) settle(ctx context.Context, gated diversity.Result, evs map[string]arbiter.Evaluation, actx arbiter.Context, repair bool) []refine.Outcome {
	reasons := make(map[string]string, len(gated.Decisions))
	for _, d := range gated.Decisions {
		reasons[d.CandidateID] = d.Reason
	}

	n := len(gated.Survivors)
	outcomes := make([]refine.Outcome, n+len(gated.Regenerate))
	var g errgroup.Group
	g.SetLimit(o.parallel())
	for i, c := range gated.Survivors {
		g.Go(func() error {
			outcomes[i] = o.loop.Run(ctx, c, evs[c.ID], actx, repair)
			return nil
		})
	}
	for j, c := range gated.Regenerate {
		g.Go(func() error {
			outcomes[n+j] = o.loop.Regenerate(ctx, c, reasons[c.ID], actx)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// #endregion settle

// #region rank

// rank orders settled candidates by composite score, slot breaking ties, and
// admits them one by one so the output stays pairwise diverse. Originals kept
// after a failed repair only fill remaining places.
func (o *Orchestrator) rank(ctx context.Context, outcomes []refine.Outcome, count int, stats *Stats) []concept.Candidate {
	var primary, fallback []concept.Candidate
	for _, out := range outcomes {
		if out.Repaired {
			if out.Candidate.DiversityStatus == concept.DiversityRegenerate {
				stats.Regenerated++
			} else {
				stats.Repaired++
			}
		}
		switch out.Final {
		case refine.StatePassed, refine.StateNeedsReview:
			primary = append(primary, out.Candidate)
		default:
			stats.Failed++
			if out.Fallback {
				fallback = append(fallback, out.Candidate)
			}
		}
	}
	SortByComposite(primary)
	SortByComposite(fallback)

	var kept []concept.Candidate
	for _, list := range [][]concept.Candidate{primary, fallback} {
		for _, c := range list {
			if len(kept) >= count {
				break
			}
			if ok, d := o.deps.Gate.Admit(ctx, kept, c); !ok {
				log.Printf("[PIPE] %s not admitted: %s", c.ID, d.Reason)
				stats.Duplicates++
				continue
			}
			c.DiversityStatus = concept.DiversityUnique
			kept = append(kept, c)
		}
	}

	for _, c := range kept {
		switch c.Status {
		case concept.StatusPassed:
			stats.Passed++
		case concept.StatusNeedsReview:
			stats.NeedsReview++
		}
	}
	return kept
}

// SortByComposite orders candidates by composite score descending, then by
// slot ascending.
func SortByComposite(cands []concept.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		ci, cj := cands[i].Composite(), cands[j].Composite()
		if ci != cj {
			return ci > cj
		}
		return cands[i].Slot < cands[j].Slot
	})
}

// #endregion rank

// #region persist

func (o *Orchestrator) persist(brief concept.Brief, final []concept.Candidate, stats *Stats) {
	if o.deps.Store == nil {
		return
	}
	for i := range final {
		id, err := o.deps.Store.SaveConcept(store.RecordFor(brief, final[i], arbiter.Originality))
		if err != nil {
			log.Printf("[PIPE] persist %s: %v", final[i].ID, err)
			continue
		}
		final[i].RecordID = id
		stats.Persisted++
	}
}

func (o *Orchestrator) history() []string {
	if o.deps.Store == nil || o.config.HistoryWindow <= 0 {
		return nil
	}
	texts, err := o.deps.Store.RecentTexts(o.config.HistoryWindow)
	if err != nil {
		log.Printf("[PIPE] history unavailable: %v", err)
		return nil
	}
	return texts
}

// #endregion persist

func (o *Orchestrator) parallel() int {
	if o.config.MaxParallel <= 0 || o.config.MaxParallel > MaxBatchWidth {
		return MaxBatchWidth
	}
	return o.config.MaxParallel
}

func emptyReason(stats Stats, firstErr error) string {
	switch {
	case stats.GenerationErrors+stats.Unparsable == 0:
		return "no generation slots were scheduled"
	case stats.GenerationErrors == stats.BatchWidth:
		return fmt.Sprintf("all %d generation slots failed: %v", stats.BatchWidth, firstErr)
	case stats.GenerationErrors == 0:
		return fmt.Sprintf("none of %d responses could be parsed", stats.Unparsable)
	}
	return fmt.Sprintf("no usable concept: %d generation errors, %d unparsable: %v",
		stats.GenerationErrors, stats.Unparsable, firstErr)
}
