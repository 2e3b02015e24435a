package retrieval

import (
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
)

// #region config
// Config holds limits for reference retrieval.
type Config struct {
	TopK      int `yaml:"top_k"`      // similarity-ranked examples cached per brief
	CacheSize int `yaml:"cache_size"` // distinct briefs kept in the rotation cache
}

// DefaultConfig returns sensible defaults for retrieval.
func DefaultConfig() Config {
	return Config{
		TopK:      5,
		CacheSize: 64,
	}
}

// #endregion config

// #region selection
// Source names how the example ranking was produced.
type Source string

const (
	SourceEmbedding Source = "embedding"
	SourceLexical   Source = "lexical"
	SourceRandom    Source = "random"
	SourceNone      Source = "none"
)

// DeviceChoice is one selected device and why it was chosen.
type DeviceChoice struct {
	Device     concept.RhetoricalDevice
	Reason     ledger.Reason
	UsageCount int
}

// Selection is the inspiration bundle for one generation slot.
type Selection struct {
	BatchIndex    int
	Session       uint64
	Primary       DeviceChoice
	Secondary     DeviceChoice
	Example       *concept.ReferenceExample
	ExampleSource Source
}

// DeviceIDs lists the non-empty device ids of the selection.
func (s Selection) DeviceIDs() []string {
	var out []string
	for _, c := range []DeviceChoice{s.Primary, s.Secondary} {
		if c.Device.ID != "" {
			out = append(out, c.Device.ID)
		}
	}
	return out
}

// ExampleID returns the example id or "".
func (s Selection) ExampleID() string {
	if s.Example == nil {
		return ""
	}
	return s.Example.ID
}

// #endregion selection
