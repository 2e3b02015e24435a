package catalog

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"gopkg.in/yaml.v3"
)

//go:embed data/devices.yaml data/examples.yaml
var dataFS embed.FS

// #region catalog-struct
// Catalog holds the rhetorical device list and reference examples. It is
// read-only after Load and safe for concurrent use.
type Catalog struct {
	Devices  []concept.RhetoricalDevice
	Examples []concept.ReferenceExample

	devices  map[string]concept.RhetoricalDevice
	examples map[string]concept.ReferenceExample
}

type deviceFile struct {
	Devices []concept.RhetoricalDevice `yaml:"devices"`
}

type exampleFile struct {
	Examples []concept.ReferenceExample `yaml:"examples"`
}
// #endregion catalog-struct

// #region load
// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	devs, err := dataFS.ReadFile("data/devices.yaml")
	if err != nil {
		return nil, fmt.Errorf("read devices: %w", err)
	}
	exs, err := dataFS.ReadFile("data/examples.yaml")
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	return Parse(devs, exs)
}

// Parse builds a Catalog from YAML documents. Device names default to a
// title-cased id; duplicate ids are rejected.
func Parse(devicesYAML, examplesYAML []byte) (*Catalog, error) {
	var df deviceFile
	if err := yaml.Unmarshal(devicesYAML, &df); err != nil {
		return nil, fmt.Errorf("parse devices: %w", err)
	}
	var ef exampleFile
	if len(examplesYAML) > 0 {
		if err := yaml.Unmarshal(examplesYAML, &ef); err != nil {
			return nil, fmt.Errorf("parse examples: %w", err)
		}
	}

	c := &Catalog{
		devices:  make(map[string]concept.RhetoricalDevice, len(df.Devices)),
		examples: make(map[string]concept.ReferenceExample, len(ef.Examples)),
	}
	for _, d := range df.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device without id")
		}
		if _, dup := c.devices[d.ID]; dup {
			return nil, fmt.Errorf("duplicate device %q", d.ID)
		}
		if d.Name == "" {
			d.Name = DisplayName(d.ID)
		}
		c.devices[d.ID] = d
		c.Devices = append(c.Devices, d)
	}
	for _, e := range ef.Examples {
		if e.ID == "" {
			return nil, fmt.Errorf("example without id")
		}
		if _, dup := c.examples[e.ID]; dup {
			return nil, fmt.Errorf("duplicate example %q", e.ID)
		}
		c.examples[e.ID] = e
		c.Examples = append(c.Examples, e)
	}
	return c, nil
}
// #endregion load

// #region lookup
// Device looks up a device by id.
func (c *Catalog) Device(id string) (concept.RhetoricalDevice, bool) {
	d, ok := c.devices[id]
	return d, ok
}

// Example looks up a reference example by id.
func (c *Catalog) Example(id string) (concept.ReferenceExample, bool) {
	e, ok := c.examples[id]
	return e, ok
}

// DeviceIDs returns every device id in catalog order.
func (c *Catalog) DeviceIDs() []string {
	out := make([]string, len(c.Devices))
	for i, d := range c.Devices {
		out[i] = d.ID
	}
	return out
}

// ExampleIDs returns every example id in catalog order.
func (c *Catalog) ExampleIDs() []string {
	out := make([]string, len(c.Examples))
	for i, e := range c.Examples {
		out[i] = e.ID
	}
	return out
}

// EligibleDeviceIDs is the primary-selection pool: the catalog minus the
// overused common devices. Falls back to the full catalog if that leaves nothing.
func (c *Catalog) EligibleDeviceIDs() []string {
	var out []string
	for _, d := range c.Devices {
		if !IsOverused(d.ID) {
			out = append(out, d.ID)
		}
	}
	if len(out) == 0 {
		return c.DeviceIDs()
	}
	return out
}

// AffinityFor lists catalog devices that suit a tone, in preference order.
// Overused devices are left out so every pick stays inside the eligible pool.
func (c *Catalog) AffinityFor(tone concept.Tone) []string {
	var out []string
	for _, id := range toneAffinities[tone] {
		if _, ok := c.devices[id]; ok && !IsOverused(id) {
			out = append(out, id)
		}
	}
	return out
}

// DisplayName turns a snake_case id into a title-cased name.
func DisplayName(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
// #endregion lookup

// #region affinities
var toneAffinities = map[concept.Tone][]string{
	concept.ToneCreative:       {"synesthesia", "zeugma", "chiasmus", "visual_pun", "scale_shift", "portmanteau", "kenning", "hypotyposis"},
	concept.ToneBold:           {"epizeuxis", "asyndeton", "adynaton", "sententia", "reversal", "anaphora", "isocolon"},
	concept.ToneStrategic:      {"enthymeme", "dilemma", "prolepsis", "logos_appeal", "kairos", "climax", "contrast_frame"},
	concept.ToneConversational: {"hypophora", "apostrophe", "self_deprecation", "callback", "understatement", "litotes", "deadpan"},
	concept.ToneSimplified:     {"sententia", "aphorism", "parallelism", "ellipsis", "rhyme", "synecdoche"},
	concept.ToneCore:           {"epithet", "aphorism", "antimetabole", "metonymy", "merism", "gnome"},
	concept.ToneAnalytical:     {"syllogism", "logos_appeal", "enthymeme", "parallelism", "reductio_ad_absurdum", "epexegesis"},
	concept.ToneTechnical:      {"epexegesis", "enumeratio", "merism", "ethos_appeal", "scale_shift", "correctio"},
	concept.ToneSummarize:      {"isocolon", "tricolon", "sententia", "epigram", "asyndeton"},
}

var overused = map[string]bool{
	"metaphor": true, "simile": true, "hyperbole": true, "personification": true,
	"alliteration": true, "onomatopoeia": true, "oxymoron": true, "irony": true,
	"paradox": true, "analogy": true, "antithesis": true, "juxtaposition": true,
	"repetition": true, "rhetorical_question": true, "allusion": true, "imagery": true,
	"symbolism": true, "foreshadowing": true, "flashback": true,
}

// IsOverused reports whether a device is on the overused common list and so
// excluded from primary selection.
func IsOverused(id string) bool {
	return overused[id]
}

// OverusedDevices returns the overused list sorted.
func OverusedDevices() []string {
	out := make([]string, 0, len(overused))
	for id := range overused {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
// #endregion affinities
