package catalog

import (
	"testing"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Devices) < 100 {
		t.Fatalf("expected at least 100 devices, got %d", len(c.Devices))
	}
	if len(c.Examples) < 20 {
		t.Fatalf("expected at least 20 examples, got %d", len(c.Examples))
	}
	for _, d := range c.Devices {
		if d.Definition == "" {
			t.Errorf("device %s has no definition", d.ID)
		}
		if d.Name == "" {
			t.Errorf("device %s has no name", d.ID)
		}
	}
	for _, e := range c.Examples {
		if e.Headline == "" || e.Brand == "" || e.Year == 0 {
			t.Errorf("example %s incomplete: %+v", e.ID, e)
		}
	}
}

func TestAffinitiesResolveToCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tone := range concept.Tones {
		ids := c.AffinityFor(tone)
		if len(ids) == 0 {
			t.Errorf("tone %s has no affinity devices", tone)
		}
		if len(ids) != len(toneAffinities[tone]) {
			t.Errorf("tone %s references devices missing from the catalog or overused", tone)
		}
	}
}

func TestAffinitiesStayInsideEligiblePool(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	eligible := make(map[string]bool)
	for _, id := range c.EligibleDeviceIDs() {
		eligible[id] = true
	}
	for _, tone := range concept.Tones {
		for _, id := range c.AffinityFor(tone) {
			if !eligible[id] {
				t.Errorf("tone %s affinity %s is outside the eligible pool", tone, id)
			}
		}
	}
}

func TestAffinityForSkipsOverused(t *testing.T) {
	doc := []byte("devices:\n  - id: antithesis\n    definition: x\n  - id: epizeuxis\n    definition: y\n")
	c, err := Parse(doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	toneAffinities[concept.ToneBold] = append(toneAffinities[concept.ToneBold], "antithesis")
	defer func() {
		toneAffinities[concept.ToneBold] = toneAffinities[concept.ToneBold][:len(toneAffinities[concept.ToneBold])-1]
	}()
	got := c.AffinityFor(concept.ToneBold)
	if len(got) != 1 || got[0] != "epizeuxis" {
		t.Fatalf("AffinityFor(bold) = %v, want [epizeuxis]", got)
	}
}

func TestEligibleExcludesOverused(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	eligible := c.EligibleDeviceIDs()
	if len(eligible) < 100 {
		t.Errorf("expected at least 100 eligible devices, got %d", len(eligible))
	}
	for _, id := range eligible {
		if IsOverused(id) {
			t.Errorf("overused device %s is eligible", id)
		}
	}
	if len(eligible)+len(OverusedDevices()) != len(c.Devices) {
		t.Errorf("eligible %d + overused %d != catalog %d", len(eligible), len(OverusedDevices()), len(c.Devices))
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	doc := []byte("devices:\n  - id: a\n    definition: x\n  - id: a\n    definition: y\n")
	if _, err := Parse(doc, nil); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestParseFallsBackToAllWhenEveryDeviceOverused(t *testing.T) {
	doc := []byte("devices:\n  - id: metaphor\n    definition: x\n")
	c, err := Parse(doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := c.EligibleDeviceIDs(); len(got) != 1 || got[0] != "metaphor" {
		t.Fatalf("expected fallback to full catalog, got %v", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("reductio_ad_absurdum"); got != "Reductio Ad Absurdum" {
		t.Errorf("DisplayName = %q", got)
	}
}
