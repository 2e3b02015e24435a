package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/diversity"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/danielpatrickdp/concept-arbiter/internal/refine"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
	"github.com/danielpatrickdp/concept-arbiter/internal/store"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region helpers

// testSpace embeds a tiny vocabulary: "eco"/"sneakers" share axis 0, "twin"
// axis 1, cN a unique strong axis and vN a unique weak axis. Other words
// are ignored.
type testSpace struct{}

const testDims = 64

func (testSpace) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		switch {
		case w == "eco" || w == "sneakers":
			vec[0]++
		case w == "twin":
			vec[1] += 0.5
		case len(w) > 1 && w[0] == 'c' && isDigits(w[1:]):
			n, _ := strconv.Atoi(w[1:])
			vec[2+n%32]++
		case len(w) > 1 && w[0] == 'v' && isDigits(w[1:]):
			n, _ := strconv.Atoi(w[1:])
			vec[34+n%8] += 0.25
		}
	}
	return vec, nil
}

func (testSpace) Similarity(a, b []float32) float64 { return vector.Cosine(a, b) }

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func conceptText(word string) string {
	return fmt.Sprintf("Visual: %s sneakers on a plain wall\nHeadlines:\n- %s sneakers run\n", word, word)
}

var (
	slotRe   = regexp.MustCompile(`Build the idea on dev(\d+)`)
	repairRe = regexp.MustCompile(`Keep the rhetorical device: dev(\d+)`)
	markRe   = regexp.MustCompile(`\bc(\d+)\b`)
)

// slotModel answers generation prompts with fn(slot) and repair prompts
// with a fresh concept c(slot+20).
type slotModel struct {
	mu    sync.Mutex
	fn    func(slot int) (string, error)
	calls int
}

func (m *slotModel) Complete(ctx context.Context, prompt string, _ float64, _ int) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if sm := repairRe.FindStringSubmatch(prompt); sm != nil {
		n, _ := strconv.Atoi(sm[1])
		return conceptText(fmt.Sprintf("c%d", n+20)), nil
	}
	sm := slotRe.FindStringSubmatch(prompt)
	if sm == nil {
		return "", errors.New("unexpected prompt")
	}
	n, _ := strconv.Atoi(sm[1])
	return m.fn(n)
}

// markJudge scores 60+N for a concept marked cN, 70 otherwise.
type markJudge struct {
	err error
}

func (j markJudge) Complete(_ context.Context, prompt string, _ float64, _ int) (string, error) {
	if j.err != nil {
		return "", j.err
	}
	score := 70
	if sm := markRe.FindStringSubmatch(prompt); sm != nil {
		n, _ := strconv.Atoi(sm[1])
		score = 60 + n
	}
	return fmt.Sprintf(`{"score": %d, "rationale": "ok"}`, score), nil
}

type stubSelector struct{}

func (stubSelector) SelectBatch(_ context.Context, _ concept.Brief, n int) []retrieval.Selection {
	out := make([]retrieval.Selection, n)
	for i := range out {
		id := fmt.Sprintf("dev%d", i)
		out[i] = retrieval.Selection{
			BatchIndex: i,
			Primary:    retrieval.DeviceChoice{Device: concept.RhetoricalDevice{ID: id, Name: id, Definition: "a device"}},
			Example:    &concept.ReferenceExample{ID: fmt.Sprintf("ex%d", i), Campaign: "Camp", Brand: "Brand", Year: 2001, Headline: "Old line"},
		}
	}
	return out
}

type recordingLedger struct {
	mu   sync.Mutex
	keys map[string][]string
}

func (l *recordingLedger) Commit(namespace string, keys ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keys == nil {
		l.keys = make(map[string][]string)
	}
	for _, k := range keys {
		if k != "" {
			l.keys[namespace] = append(l.keys[namespace], k)
		}
	}
	return nil
}

func newTestOrchestrator(model Generator, judge arbiter.Judge, led UsageLedger, rec Recorder) *Orchestrator {
	space := testSpace{}
	cfg := DefaultConfig()
	cfg.Deadline = 5 * time.Second
	cfg.CallTimeout = time.Second
	return NewOrchestrator(Deps{
		Model:    model,
		Selector: stubSelector{},
		Panel:    arbiter.DefaultPanel(space, judge, arbiter.DefaultThresholds(), time.Second),
		Gate:     diversity.NewGate(space, diversity.DefaultConfig()),
		Ledger:   led,
		Store:    rec,
	}, cfg, refine.DefaultConfig())
}

func distinct(slot int) (string, error) {
	return conceptText(fmt.Sprintf("c%d", slot)), nil
}

func brief(refinement bool) concept.Brief {
	return concept.Brief{Query: "eco sneakers", Tone: concept.ToneCreative, Count: 3, EnableRefinement: refinement}
}

func assertPairwiseDiverse(t *testing.T, cands []concept.Candidate) {
	t.Helper()
	space := testSpace{}
	limit := diversity.DefaultConfig().BatchThreshold
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			a, _ := space.Embed(context.Background(), cands[i].Text())
			b, _ := space.Embed(context.Background(), cands[j].Text())
			if sim := vector.Cosine(a, b); sim > limit {
				t.Fatalf("%q and %q too similar: %.2f", cands[i].Headline(), cands[j].Headline(), sim)
			}
		}
	}
}

// #endregion helpers

// #region batch-width-tests
func TestBatchWidth(t *testing.T) {
	cases := []struct{ count, limit, want int }{
		{3, 10, 6},
		{1, 10, 6},
		{5, 10, 10},
		{8, 10, 10},
		{4, 5, 5},
		{3, 0, 6},
		{3, 50, 6},
	}
	for _, tc := range cases {
		if got := BatchWidth(tc.count, tc.limit); got != tc.want {
			t.Errorf("BatchWidth(%d, %d) = %d, want %d", tc.count, tc.limit, got, tc.want)
		}
	}
}

// #endregion batch-width-tests

// #region scenario-tests
func TestGenerateDissimilarReturnsRankedPassed(t *testing.T) {
	o := newTestOrchestrator(&slotModel{fn: distinct}, markJudge{}, nil, nil)

	res := o.Generate(context.Background(), brief(true))

	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d (%s)", len(res.Candidates), res.Reason)
	}
	for i, c := range res.Candidates {
		if c.Status != concept.StatusPassed {
			t.Fatalf("candidate %d status %s: %v", i, c.Status, c.Notes)
		}
		for name, s := range c.Scores {
			if !s.Passed {
				t.Fatalf("passed candidate has failing %s", name)
			}
		}
		if i > 0 && c.Composite() > res.Candidates[i-1].Composite() {
			t.Fatal("candidates not in descending composite order")
		}
		if c.Iteration != 1 {
			t.Fatalf("expected iteration 1, got %d", c.Iteration)
		}
	}
	if res.Candidates[0].Slot != 5 {
		t.Fatalf("expected slot 5 first, got %d", res.Candidates[0].Slot)
	}
	if res.Reason != "" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if res.Stats.BatchWidth != 6 || res.Stats.Parsed != 6 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	assertPairwiseDiverse(t, res.Candidates)
}

func TestGenerateNearDuplicatesWithoutRefinement(t *testing.T) {
	model := &slotModel{fn: func(slot int) (string, error) {
		return conceptText(fmt.Sprintf("twin v%d", slot)), nil
	}}
	o := newTestOrchestrator(model, markJudge{}, nil, nil)

	res := o.Generate(context.Background(), brief(false))

	if len(res.Candidates) > 2 {
		t.Fatalf("near-duplicates should leave at most 2, got %d", len(res.Candidates))
	}
	if res.Stats.Duplicates < 4 {
		t.Fatalf("expected at least 4 duplicates, got %+v", res.Stats)
	}
	if res.Reason == "" {
		t.Fatal("short result should carry a reason")
	}
	assertPairwiseDiverse(t, res.Candidates)
}

func TestGenerateNearDuplicatesRegenerated(t *testing.T) {
	model := &slotModel{fn: func(slot int) (string, error) {
		return conceptText(fmt.Sprintf("twin v%d", slot)), nil
	}}
	o := newTestOrchestrator(model, markJudge{}, nil, nil)

	res := o.Generate(context.Background(), brief(true))

	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates after regeneration, got %d (%s)", len(res.Candidates), res.Reason)
	}
	if res.Stats.Regenerated != 2 {
		t.Fatalf("expected 2 regenerated, got %+v", res.Stats)
	}
	regenerated := 0
	for _, c := range res.Candidates {
		if c.Iteration > refine.MaxIterations {
			t.Fatalf("iteration %d beyond cap", c.Iteration)
		}
		if c.Iteration == 2 {
			regenerated++
		}
	}
	if regenerated != 2 {
		t.Fatalf("expected 2 candidates at iteration 2, got %d", regenerated)
	}
	assertPairwiseDiverse(t, res.Candidates)
}

func TestGenerateJudgeFailureDegrades(t *testing.T) {
	o := newTestOrchestrator(&slotModel{fn: distinct}, markJudge{err: errors.New("judge down")}, nil, nil)

	res := o.Generate(context.Background(), brief(false))

	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d (%s)", len(res.Candidates), res.Reason)
	}
	for _, c := range res.Candidates {
		s, ok := c.Scores[arbiter.RhetoricalStrength]
		if !ok {
			t.Fatal("judge score missing")
		}
		if !s.Passed || !s.Degraded {
			t.Fatalf("expected neutral degraded pass, got %+v", s)
		}
	}
}

func TestGenerateAllSlotsTimeOut(t *testing.T) {
	model := &slotModel{fn: func(int) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "", context.DeadlineExceeded
	}}
	led := &recordingLedger{}
	o := newTestOrchestrator(model, markJudge{}, led, nil)

	res := o.Generate(context.Background(), brief(true))

	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(res.Candidates))
	}
	if !strings.Contains(res.Reason, "generation slots failed") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(led.keys) != 0 {
		t.Fatalf("no usage should be committed, got %v", led.keys)
	}
}

func TestGenerateDeadlineAbandonsSlowCalls(t *testing.T) {
	blocking := blockingModel{}
	o := newTestOrchestrator(blocking, markJudge{}, nil, nil)
	o.config.CallTimeout = 20 * time.Millisecond

	start := time.Now()
	res := o.Generate(context.Background(), brief(true))

	if len(res.Candidates) != 0 || res.Reason == "" {
		t.Fatalf("expected empty result with reason, got %d %q", len(res.Candidates), res.Reason)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("slow calls were not abandoned")
	}
}

func TestGenerateDeadlineKeepsParsedSlots(t *testing.T) {
	model := &hangingModel{slotModel: slotModel{fn: distinct}}
	led := &recordingLedger{}
	o := newTestOrchestrator(model, markJudge{}, led, nil)
	o.config.Deadline = 300 * time.Millisecond
	o.config.CallTimeout = 0

	res := o.Generate(context.Background(), brief(false))

	if res.Stats.Parsed != 5 || res.Stats.GenerationErrors != 1 {
		t.Fatalf("parsed=%d genErrors=%d, want 5 and 1", res.Stats.Parsed, res.Stats.GenerationErrors)
	}
	if len(res.Candidates) == 0 {
		t.Fatalf("parsed concepts were discarded at the deadline: %q", res.Reason)
	}
	for _, c := range res.Candidates {
		if c.Slot == 0 {
			t.Fatal("the hung slot produced a candidate")
		}
	}
	if len(led.keys[ledger.NamespaceDevices]) != 5 {
		t.Errorf("device commits = %v, want one per parsed slot", led.keys[ledger.NamespaceDevices])
	}
}

func TestGenerationWindowLeavesScoringTime(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GenerationWindow(); got != 75*time.Second {
		t.Errorf("default window = %s, want 75s", got)
	}
	cfg.Deadline = 400 * time.Millisecond
	if got := cfg.GenerationWindow(); got != 300*time.Millisecond {
		t.Errorf("oversized reserve window = %s, want 300ms", got)
	}
}

// hangingModel never answers slot 0 until its context ends.
type hangingModel struct {
	slotModel
}

func (m *hangingModel) Complete(ctx context.Context, prompt string, temp float64, maxTokens int) (string, error) {
	if repairRe.MatchString(prompt) {
		return m.slotModel.Complete(ctx, prompt, temp, maxTokens)
	}
	if sm := slotRe.FindStringSubmatch(prompt); sm != nil && sm[1] == "0" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.slotModel.Complete(ctx, prompt, temp, maxTokens)
}

type blockingModel struct{}

func (blockingModel) Complete(ctx context.Context, _ string, _ float64, _ int) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateCommitsOnlyParsedSlots(t *testing.T) {
	model := &slotModel{fn: func(slot int) (string, error) {
		switch slot {
		case 1:
			return "", errors.New("upstream 503")
		case 2:
			return "   ", nil
		}
		return distinct(slot)
	}}
	led := &recordingLedger{}
	o := newTestOrchestrator(model, markJudge{}, led, nil)

	res := o.Generate(context.Background(), brief(false))

	if res.Stats.GenerationErrors != 1 || res.Stats.Unparsable != 1 || res.Stats.Parsed != 4 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	want := map[string]bool{"dev0": true, "dev3": true, "dev4": true, "dev5": true}
	got := led.keys[ledger.NamespaceDevices]
	if len(got) != len(want) {
		t.Fatalf("expected %d device commits, got %v", len(want), got)
	}
	for _, k := range got {
		if !want[k] {
			t.Fatalf("unexpected device commit %s", k)
		}
	}
	if len(led.keys[ledger.NamespaceExamples]) != 4 {
		t.Fatalf("expected 4 example commits, got %v", led.keys[ledger.NamespaceExamples])
	}
}

func TestGenerateRepairsFailingCandidate(t *testing.T) {
	model := &slotModel{fn: func(slot int) (string, error) {
		if slot == 0 {
			return "Visual: c0 forest at dawn\nHeadlines:\n- c0 forest walk\n", nil
		}
		return distinct(slot)
	}}
	o := newTestOrchestrator(model, markJudge{}, nil, nil)

	res := o.Generate(context.Background(), brief(true))

	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d (%s)", len(res.Candidates), res.Reason)
	}
	top := res.Candidates[0]
	if top.Slot != 0 || top.Iteration != 2 || top.Status != concept.StatusPassed {
		t.Fatalf("expected repaired slot 0 first, got slot=%d iteration=%d status=%s", top.Slot, top.Iteration, top.Status)
	}
	if len(top.PriorScores) != 1 || top.PriorScores[0][arbiter.Relevance].Passed {
		t.Fatal("prior failing scores should be kept")
	}
	if res.Stats.Repaired != 1 {
		t.Fatalf("expected 1 repaired, got %+v", res.Stats)
	}
}

func TestGenerateHardFailureDroppedWithoutRefinement(t *testing.T) {
	model := &slotModel{fn: func(slot int) (string, error) {
		if slot == 5 {
			return "Visual: c5 forest at dawn\nHeadlines:\n- c5 forest walk\n", nil
		}
		return distinct(slot)
	}}
	o := newTestOrchestrator(model, markJudge{}, nil, nil)

	res := o.Generate(context.Background(), brief(false))

	for _, c := range res.Candidates {
		if c.Slot == 5 {
			t.Fatal("irrelevant concept should be dropped")
		}
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(res.Candidates))
	}
}

func TestGeneratePersistsSurvivors(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "concepts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	o := newTestOrchestrator(&slotModel{fn: distinct}, markJudge{}, nil, st)

	res := o.Generate(context.Background(), brief(false))

	if res.Stats.Persisted != len(res.Candidates) {
		t.Fatalf("expected %d persisted, got %d", len(res.Candidates), res.Stats.Persisted)
	}
	for _, c := range res.Candidates {
		if c.RecordID == "" {
			t.Fatal("record id not stamped")
		}
	}
	recs, err := st.RecentConcepts(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recs))
	}
}

// #endregion scenario-tests

// #region prompt-tests
func TestBuildPrompt(t *testing.T) {
	sel := stubSelector{}.SelectBatch(context.Background(), brief(false), 1)[0]
	sel.Secondary = retrieval.DeviceChoice{Device: concept.RhetoricalDevice{ID: "irony", Name: "Irony", Definition: "Saying the opposite."}}

	p := BuildPrompt(brief(false), sel)

	for _, want := range []string{"eco sneakers", "dev0", "Irony", "Old line", "Headlines:"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

// #endregion prompt-tests
