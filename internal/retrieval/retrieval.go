package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/catalog"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region retriever
// Retriever chooses devices and a reference example for each generation slot.
// It never blocks generation: every failure degrades to a simpler selection.
type Retriever struct {
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	vectors vector.Space
	lexical *LexicalIndex
	counter Counter
	cache   *RotationCache
	config  Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewRetriever wires a Retriever. ledger and vectors may be nil; selection
// then falls back to uniform random draws.
func NewRetriever(cat *catalog.Catalog, led *ledger.Ledger, vectors vector.Space, counter Counter, config Config) *Retriever {
	if counter == nil {
		counter = NewSessionCounter(uint64(time.Now().UnixNano()))
	}
	r := &Retriever{
		catalog: cat,
		ledger:  led,
		vectors: vectors,
		counter: counter,
		cache:   NewRotationCache(config.CacheSize),
		config:  config,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if len(cat.Examples) > 0 {
		lex, err := NewLexicalIndex(cat.Examples)
		if err != nil {
			log.Printf("[RETR] lexical index unavailable: %v", err)
		} else {
			r.lexical = lex
		}
	}
	return r
}

// SetRand replaces the random source used by the uniform fallbacks.
func (r *Retriever) SetRand(rng *rand.Rand) {
	r.rngMu.Lock()
	r.rng = rng
	r.rngMu.Unlock()
}

// Close releases the lexical index.
func (r *Retriever) Close() error {
	if r.lexical == nil {
		return nil
	}
	return r.lexical.Close()
}

// #endregion retriever

// #region select
type reservation struct {
	devices  map[string]bool
	examples map[string]bool
}

func newReservation() *reservation {
	return &reservation{devices: make(map[string]bool), examples: make(map[string]bool)}
}

// SelectBatch picks inspiration for n slots. Slots in one batch do not share
// devices or examples while the catalog allows it. Nothing is committed to the
// ledger here; the caller commits only slots that produced a usable concept.
func (r *Retriever) SelectBatch(ctx context.Context, brief concept.Brief, n int) []Selection {
	res := newReservation()
	out := make([]Selection, n)
	for i := range out {
		out[i] = r.selectWith(ctx, brief, i, res)
	}
	return out
}

func (r *Retriever) selectWith(ctx context.Context, brief concept.Brief, batchIndex int, res *reservation) Selection {
	sel := Selection{BatchIndex: batchIndex, Session: r.counter.Next()}
	sel.Primary = r.pickPrimary(res)
	sel.Secondary = r.pickSecondary(brief.Tone, sel.Primary.Device.ID, res)
	sel.Example, sel.ExampleSource = r.pickExample(ctx, brief, sel.Session, res)
	log.Printf("[RETR] slot=%d session=%d primary=%s(%s) secondary=%s(%s) example=%s(%s)",
		batchIndex, sel.Session, sel.Primary.Device.ID, sel.Primary.Reason,
		sel.Secondary.Device.ID, sel.Secondary.Reason, sel.ExampleID(), sel.ExampleSource)
	return sel
}

// #endregion select

// #region devices
func (r *Retriever) pickPrimary(res *reservation) DeviceChoice {
	eligible := r.catalog.EligibleDeviceIDs()
	if len(eligible) == 0 {
		return DeviceChoice{Reason: ledger.ReasonFallback}
	}
	if r.ledger == nil {
		id := r.randomOf(without(eligible, res.devices), eligible)
		res.devices[id] = true
		return r.choice(id, ledger.ReasonFallback)
	}

	id, reason, ok := r.ledger.Pick(ledger.NamespaceDevices, eligible, res.devices)
	if !ok {
		id, reason, _ = r.ledger.Pick(ledger.NamespaceDevices, eligible, nil)
	}
	res.devices[id] = true
	return r.choice(id, reason)
}

func (r *Retriever) pickSecondary(tone concept.Tone, primary string, res *reservation) DeviceChoice {
	exclude := make(map[string]bool, len(res.devices)+1)
	for k := range res.devices {
		exclude[k] = true
	}
	exclude[primary] = true

	affinity := r.catalog.AffinityFor(tone)
	if r.ledger == nil {
		if pool := without(affinity, exclude); len(pool) > 0 {
			id := r.randomOf(pool, nil)
			res.devices[id] = true
			return r.choice(id, ledger.ReasonToneMatched)
		}
		pool := without(r.catalog.EligibleDeviceIDs(), exclude)
		if len(pool) == 0 {
			return DeviceChoice{Reason: ledger.ReasonFallback}
		}
		id := r.randomOf(pool, nil)
		res.devices[id] = true
		return r.choice(id, ledger.ReasonFallback)
	}

	if id, _, ok := r.ledger.Pick(ledger.NamespaceDevices, affinity, exclude); ok {
		res.devices[id] = true
		return r.choice(id, ledger.ReasonToneMatched)
	}
	id, reason, ok := r.ledger.Pick(ledger.NamespaceDevices, r.catalog.EligibleDeviceIDs(), exclude)
	if !ok {
		return DeviceChoice{Reason: ledger.ReasonFallback}
	}
	res.devices[id] = true
	return r.choice(id, reason)
}

func (r *Retriever) choice(id string, reason ledger.Reason) DeviceChoice {
	d, _ := r.catalog.Device(id)
	c := DeviceChoice{Device: d, Reason: reason}
	if r.ledger != nil {
		c.UsageCount = r.ledger.Count(ledger.NamespaceDevices, id)
	}
	return c
}

// #endregion devices

// #region examples
// pickExample walks the brief's cached top-K ranking starting at the session
// offset and takes the first example not yet used this cycle. When none of the
// top-K is available it draws uniformly from the unused pool.
func (r *Retriever) pickExample(ctx context.Context, brief concept.Brief, session uint64, res *reservation) (*concept.ReferenceExample, Source) {
	ids := r.catalog.ExampleIDs()
	if len(ids) == 0 {
		return nil, SourceNone
	}

	unused := make(map[string]bool, len(ids))
	if r.ledger != nil {
		pool := r.ledger.Unused(ledger.NamespaceExamples, ids, nil)
		if len(pool) == 0 {
			r.ledger.Reset(ledger.NamespaceExamples, "example pool exhausted")
			pool = ids
		}
		for _, id := range pool {
			unused[id] = true
		}
	} else {
		for _, id := range ids {
			unused[id] = true
		}
	}
	available := func(id string) bool { return unused[id] && !res.examples[id] }

	ranked, source := r.topK(ctx, brief)
	for _, id := range Rotate(ranked, session) {
		if available(id) {
			return r.reserveExample(id, res), source
		}
	}

	var pool []string
	for _, id := range ids {
		if available(id) {
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		pool = without(ids, res.examples)
	}
	if len(pool) == 0 {
		return nil, SourceNone
	}
	return r.reserveExample(r.randomOf(pool, nil), res), SourceRandom
}

func (r *Retriever) reserveExample(id string, res *reservation) *concept.ReferenceExample {
	res.examples[id] = true
	e, ok := r.catalog.Example(id)
	if !ok {
		return nil
	}
	return &e
}

// topK returns the similarity-ranked example ids for a brief, cached per
// brief hash. Embedding ranking is tried first, then the lexical index.
// Failed rankings are not cached so a recovered backend is used next time.
func (r *Retriever) topK(ctx context.Context, brief concept.Brief) ([]string, Source) {
	key := brief.Hash()
	if ids, source, ok := r.cache.Get(key); ok {
		return ids, source
	}

	ids, err := r.rankByEmbedding(ctx, brief)
	if err == nil && len(ids) > 0 {
		r.cache.Put(key, ids, SourceEmbedding)
		return ids, SourceEmbedding
	}
	log.Printf("[RETR] embedding ranking unavailable: %v", err)

	if r.lexical != nil {
		ids, err = r.lexical.Search(brief.Query, r.config.TopK)
		if err == nil && len(ids) > 0 {
			r.cache.Put(key, ids, SourceLexical)
			return ids, SourceLexical
		}
		log.Printf("[RETR] lexical ranking unavailable: %v", err)
	}
	return nil, SourceRandom
}

func (r *Retriever) rankByEmbedding(ctx context.Context, brief concept.Brief) ([]string, error) {
	if r.vectors == nil {
		return nil, vector.ErrUnavailable
	}
	q, err := r.vectors.Embed(ctx, brief.Query)
	if err != nil {
		return nil, fmt.Errorf("embed brief: %w", err)
	}

	type scored struct {
		id  string
		sim float64
	}
	var all []scored
	var errs []error
	for _, e := range r.catalog.Examples {
		v, err := r.vectors.Embed(ctx, e.Text())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, scored{e.ID, r.vectors.Similarity(q, v)})
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("embed examples: %w", errors.Join(errs...))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })

	k := r.config.TopK
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	out := make([]string, k)
	for i := range out {
		out[i] = all[i].id
	}
	return out, nil
}

// #endregion examples

// #region helpers
func (r *Retriever) randomOf(pool, fallback []string) string {
	if len(pool) == 0 {
		pool = fallback
	}
	if len(pool) == 0 {
		return ""
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return pool[r.rng.Intn(len(pool))]
}

func without(keys []string, exclude map[string]bool) []string {
	var out []string
	for _, k := range keys {
		if !exclude[k] {
			out = append(out, k)
		}
	}
	return out
}

// #endregion helpers
