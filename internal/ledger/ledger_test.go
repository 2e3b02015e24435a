package ledger

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

type memBackend struct {
	mu      sync.Mutex
	counts  map[string]map[string]concept.UsageCounter
	resets  int
	failInc bool
}

func newMemBackend() *memBackend {
	return &memBackend{counts: make(map[string]map[string]concept.UsageCounter)}
}

func (m *memBackend) IncrementUsage(ns, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInc {
		return errors.New("disk full")
	}
	if m.counts[ns] == nil {
		m.counts[ns] = make(map[string]concept.UsageCounter)
	}
	c := m.counts[ns][key]
	c.Key, c.Count, c.LastUsedAt = key, c.Count+1, at
	m.counts[ns][key] = c
	return nil
}

func (m *memBackend) UsageCounts(ns string) (map[string]concept.UsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]concept.UsageCounter)
	for k, v := range m.counts[ns] {
		out[k] = v
	}
	return out, nil
}

func (m *memBackend) ResetUsage(ns string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	var n int64
	for k, c := range m.counts[ns] {
		if c.Count > 0 {
			n++
		}
		c.Count = 0
		m.counts[ns][k] = c
	}
	return n, nil
}

func newTestLedger(t *testing.T, b Backend, keys ...string) *Ledger {
	t.Helper()
	l := New(b, WithRand(rand.New(rand.NewSource(7))))
	if err := l.Register(NamespaceDevices, keys); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return l
}

func TestWeight(t *testing.T) {
	cases := []struct {
		used int
		want float64
	}{{0, 10}, {1, 7}, {2, 4}, {3, 1}, {50, 1}}
	for _, c := range cases {
		if got := Weight(c.used); got != c.want {
			t.Errorf("Weight(%d) = %v, want %v", c.used, got, c.want)
		}
	}
}

func TestPickPrefersUnexplored(t *testing.T) {
	l := newTestLedger(t, nil, "a", "b", "c")
	if err := l.Commit(NamespaceDevices, "a", "b"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for i := 0; i < 20; i++ {
		key, reason, ok := l.Pick(NamespaceDevices, []string{"a", "b", "c"}, nil)
		if !ok || key != "c" || reason != ReasonUnexplored {
			t.Fatalf("pick %d = %s (%s), want c unexplored", i, key, reason)
		}
	}
}

func TestPickLightlyUsedThenRandom(t *testing.T) {
	l := newTestLedger(t, nil, "a", "b", "c", "d")
	l.Commit(NamespaceDevices, "a", "b", "b", "b")
	// c and d keep the namespace from being exhausted but are excluded here.
	exclude := map[string]bool{"c": true, "d": true}
	key, reason, _ := l.Pick(NamespaceDevices, []string{"a", "b", "c", "d"}, exclude)
	if key != "a" || reason != ReasonLightlyUsed {
		t.Fatalf("got %s (%s), want a lightly_used", key, reason)
	}
	key, reason, _ = l.Pick(NamespaceDevices, []string{"b", "c", "d"}, exclude)
	if key != "b" || reason != ReasonRandom {
		t.Fatalf("got %s (%s), want b random", key, reason)
	}
}

func TestPickEmptyPool(t *testing.T) {
	l := newTestLedger(t, nil, "a")
	if _, _, ok := l.Pick(NamespaceDevices, []string{"a"}, map[string]bool{"a": true}); ok {
		t.Fatal("expected no pick when everything is excluded")
	}
}

func TestFullCycleReset(t *testing.T) {
	b := newMemBackend()
	l := newTestLedger(t, b, "a", "b", "c")
	if err := l.Commit(NamespaceDevices, "a", "b", "c"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	key, reason, ok := l.Pick(NamespaceDevices, []string{"a", "b", "c"}, nil)
	if !ok || reason != ReasonUnexplored {
		t.Fatalf("after exhaustion expected an unexplored pick, got %s (%s)", key, reason)
	}
	if l.Cycles(NamespaceDevices) != 1 {
		t.Fatalf("expected 1 cycle, got %d", l.Cycles(NamespaceDevices))
	}
	for _, k := range []string{"a", "b", "c"} {
		if l.Count(NamespaceDevices, k) != 0 {
			t.Fatalf("%s not reset", k)
		}
	}
	if b.resets != 1 {
		t.Fatalf("expected reset persisted once, got %d", b.resets)
	}
}

func TestRegisterLoadsPersistedCounts(t *testing.T) {
	b := newMemBackend()
	b.IncrementUsage(NamespaceDevices, "a", time.Now())
	b.IncrementUsage(NamespaceDevices, "a", time.Now())
	l := newTestLedger(t, b, "a", "b")
	if got := l.Count(NamespaceDevices, "a"); got != 2 {
		t.Fatalf("expected persisted count 2, got %d", got)
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	b := newMemBackend()
	l := newTestLedger(t, b, "a", "b")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Commit(NamespaceDevices, "a")
		}()
	}
	wg.Wait()
	if got := l.Count(NamespaceDevices, "a"); got != 50 {
		t.Fatalf("in-memory count = %d, want 50", got)
	}
	persisted, _ := b.UsageCounts(NamespaceDevices)
	if persisted["a"].Count != 50 {
		t.Fatalf("persisted count = %d, want 50", persisted["a"].Count)
	}
}

func TestCommitReportsBackendErrors(t *testing.T) {
	b := newMemBackend()
	l := newTestLedger(t, b, "a")
	b.failInc = true
	if err := l.Commit(NamespaceDevices, "a"); err == nil {
		t.Fatal("expected backend error")
	}
	if l.Count(NamespaceDevices, "a") != 1 {
		t.Fatal("in-memory count should still advance")
	}
}

func TestStats(t *testing.T) {
	l := newTestLedger(t, nil, "a", "b", "c", "d")
	l.Commit(NamespaceDevices, "a", "a", "b")
	st := l.Stats(NamespaceDevices)
	if st.Total != 4 || st.Explored != 2 || st.Unexplored != 2 || st.Percentage != 50 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if len(st.MostUsed) != 2 || st.MostUsed[0].Key != "a" {
		t.Fatalf("unexpected most used %+v", st.MostUsed)
	}
}

func TestUnused(t *testing.T) {
	l := newTestLedger(t, nil, "a", "b", "c")
	l.Commit(NamespaceDevices, "a")
	got := l.Unused(NamespaceDevices, []string{"a", "b", "c"}, map[string]bool{"c": true})
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("Unused = %v, want [b]", got)
	}
}
