package ledger

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region constants
const (
	NamespaceDevices  = "devices"
	NamespaceExamples = "examples"

	// BaseWeight and UsagePenalty define w = max(1, BaseWeight - used*UsagePenalty).
	BaseWeight   = 10.0
	UsagePenalty = 3.0

	// LightUseLimit is the highest count still treated as lightly used.
	LightUseLimit = 2
)

// Reason records why a key was selected.
type Reason string

const (
	ReasonUnexplored  Reason = "unexplored"
	ReasonLightlyUsed Reason = "lightly_used"
	ReasonToneMatched Reason = "tone_matched"
	ReasonRandom      Reason = "random"
	ReasonFallback    Reason = "fallback"
)
// #endregion constants

// #region backend
// Backend persists counters. store.Store satisfies it.
type Backend interface {
	IncrementUsage(namespace, key string, at time.Time) error
	UsageCounts(namespace string) (map[string]concept.UsageCounter, error)
	ResetUsage(namespace string) (int64, error)
}
// #endregion backend

// #region ledger-struct
// Ledger tracks usage of devices and examples and biases selection toward
// under-used keys. All reads and writes are serialized by one mutex.
type Ledger struct {
	mu       sync.Mutex
	backend  Backend
	now      func() time.Time
	rng      *rand.Rand
	counts   map[string]map[string]concept.UsageCounter
	universe map[string][]string
	cycles   map[string]int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithRand sets the random source used for weighted picks.
func WithRand(r *rand.Rand) Option {
	return func(l *Ledger) { l.rng = r }
}

// New creates a ledger. backend may be nil for an in-memory ledger.
func New(backend Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend:  backend,
		now:      func() time.Time { return time.Now().UTC() },
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		counts:   make(map[string]map[string]concept.UsageCounter),
		universe: make(map[string][]string),
		cycles:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register declares the full key set of a namespace and loads persisted
// counters for it. Exhaustion is judged against this set.
func (l *Ledger) Register(namespace string, keys []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.universe[namespace] = append([]string(nil), keys...)
	if _, ok := l.counts[namespace]; !ok {
		l.counts[namespace] = make(map[string]concept.UsageCounter)
	}
	if l.backend == nil {
		return nil
	}
	persisted, err := l.backend.UsageCounts(namespace)
	if err != nil {
		return fmt.Errorf("load %s usage: %w", namespace, err)
	}
	for k, c := range persisted {
		l.counts[namespace][k] = c
	}
	return nil
}
// #endregion ledger-struct

// #region weights
// Weight is the selection weight for a key used n times.
func Weight(used int) float64 {
	return math.Max(1, BaseWeight-float64(used)*UsagePenalty)
}

// Count returns the current usage count of a key.
func (l *Ledger) Count(namespace, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[namespace][key].Count
}

// Cycles returns how many full-cycle resets a namespace has had.
func (l *Ledger) Cycles(namespace string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles[namespace]
}
// #endregion weights

// #region pick
// Pick selects one key from candidates, skipping any in exclude. Unexplored
// keys win outright, then lightly used keys by weight, then a uniform draw.
// When every key in the namespace has been used the counters are reset first.
func (l *Ledger) Pick(namespace string, candidates []string, exclude map[string]bool) (string, Reason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.exhaustedLocked(namespace) {
		l.resetLocked(namespace, "full cycle")
	}

	var unexplored, light, rest []string
	for _, k := range candidates {
		if exclude[k] {
			continue
		}
		switch n := l.counts[namespace][k].Count; {
		case n == 0:
			unexplored = append(unexplored, k)
		case n <= LightUseLimit:
			light = append(light, k)
		default:
			rest = append(rest, k)
		}
	}

	switch {
	case len(unexplored) > 0:
		return l.weightedLocked(namespace, unexplored), ReasonUnexplored, true
	case len(light) > 0:
		return l.weightedLocked(namespace, light), ReasonLightlyUsed, true
	case len(rest) > 0:
		return rest[l.rng.Intn(len(rest))], ReasonRandom, true
	}
	return "", "", false
}

// Unused returns the keys with a zero counter that are not excluded.
func (l *Ledger) Unused(namespace string, keys []string, exclude map[string]bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, k := range keys {
		if !exclude[k] && l.counts[namespace][k].Count == 0 {
			out = append(out, k)
		}
	}
	return out
}

func (l *Ledger) weightedLocked(namespace string, keys []string) string {
	total := 0.0
	weights := make([]float64, len(keys))
	for i, k := range keys {
		weights[i] = Weight(l.counts[namespace][k].Count)
		total += weights[i]
	}
	r := l.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return keys[i]
		}
	}
	return keys[len(keys)-1]
}

func (l *Ledger) exhaustedLocked(namespace string) bool {
	keys := l.universe[namespace]
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if l.counts[namespace][k].Count == 0 {
			return false
		}
	}
	return true
}
// #endregion pick

// #region commit
// Commit increments each key once and persists the increments.
func (l *Ledger) Commit(namespace string, keys ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.counts[namespace]; !ok {
		l.counts[namespace] = make(map[string]concept.UsageCounter)
	}
	now := l.now()
	var errs []error
	for _, k := range keys {
		if k == "" {
			continue
		}
		c := l.counts[namespace][k]
		c.Key = k
		c.Count++
		c.LastUsedAt = now
		l.counts[namespace][k] = c
		if l.backend != nil {
			if err := l.backend.IncrementUsage(namespace, k, now); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Reset zeroes every counter in a namespace.
func (l *Ledger) Reset(namespace, why string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked(namespace, why)
}

func (l *Ledger) resetLocked(namespace, why string) {
	cleared := 0
	for k, c := range l.counts[namespace] {
		if c.Count > 0 {
			cleared++
		}
		c.Count = 0
		l.counts[namespace][k] = c
	}
	l.cycles[namespace]++
	log.Printf("[LEDGER] reset %s (%s): %d keys cleared, cycle %d", namespace, why, cleared, l.cycles[namespace])
	if l.backend != nil {
		if _, err := l.backend.ResetUsage(namespace); err != nil {
			log.Printf("[LEDGER] persist reset %s: %v", namespace, err)
		}
	}
}
// #endregion commit

// #region stats
// Stats summarizes exploration of a namespace.
type Stats struct {
	Namespace  string                 `json:"namespace"`
	Total      int                    `json:"total"`
	Explored   int                    `json:"explored"`
	Unexplored int                    `json:"unexplored"`
	Percentage float64                `json:"percentage_explored"`
	Cycles     int                    `json:"cycles"`
	MostUsed   []concept.UsageCounter `json:"most_used"`
}

// Stats reports exploration progress and the ten most used keys.
func (l *Ledger) Stats(namespace string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{Namespace: namespace, Total: len(l.universe[namespace]), Cycles: l.cycles[namespace]}
	for _, k := range l.universe[namespace] {
		if l.counts[namespace][k].Count > 0 {
			st.Explored++
		}
	}
	st.Unexplored = st.Total - st.Explored
	if st.Total > 0 {
		st.Percentage = math.Round(float64(st.Explored)/float64(st.Total)*1000) / 10
	}

	for _, c := range l.counts[namespace] {
		if c.Count > 0 {
			st.MostUsed = append(st.MostUsed, c)
		}
	}
	sort.Slice(st.MostUsed, func(i, j int) bool {
		if st.MostUsed[i].Count != st.MostUsed[j].Count {
			return st.MostUsed[i].Count > st.MostUsed[j].Count
		}
		return st.MostUsed[i].Key < st.MostUsed[j].Key
	})
	if len(st.MostUsed) > 10 {
		st.MostUsed = st.MostUsed[:10]
	}
	return st
}
// #endregion stats
