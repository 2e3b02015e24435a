package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/diversity"
	"github.com/danielpatrickdp/concept-arbiter/internal/llm"
	"github.com/danielpatrickdp/concept-arbiter/internal/pipeline"
	"github.com/danielpatrickdp/concept-arbiter/internal/refine"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
	"gopkg.in/yaml.v3"
)

// #region types
// Backend names the generation and embedding provider.
const (
	BackendCodec  = "codec"
	BackendOpenAI = "openai"
	BackendMock   = "mock"
)

// Config is the full runtime configuration.
type Config struct {
	Backend      string             `yaml:"backend"`
	DBPath       string             `yaml:"db_path"`
	CodecAddr    string             `yaml:"codec_addr"`
	OpenAI       llm.Settings       `yaml:"openai"`
	JudgeTimeout time.Duration      `yaml:"judge_timeout"`
	EmbedTimeout time.Duration      `yaml:"embed_timeout"`
	Pipeline     pipeline.Config    `yaml:"pipeline"`
	Refine       refine.Config      `yaml:"refine"`
	Thresholds   arbiter.Thresholds `yaml:"thresholds"`
	Diversity    diversity.Config   `yaml:"diversity"`
	Retrieval    retrieval.Config   `yaml:"retrieval"`
}

// #endregion types

// #region defaults
// Default returns a configuration that runs against a local inference service.
func Default() Config {
	return Config{
		Backend:      BackendCodec,
		DBPath:       "concepts.db",
		CodecAddr:    "localhost:50051",
		OpenAI:       llm.Settings{Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		JudgeTimeout: 20 * time.Second,
		EmbedTimeout: 10 * time.Second,
		Pipeline:     pipeline.DefaultConfig(),
		Refine:       refine.DefaultConfig(),
		Thresholds:   arbiter.DefaultThresholds(),
		Diversity:    diversity.DefaultConfig(),
		Retrieval:    retrieval.DefaultConfig(),
	}
}

// #endregion defaults

// #region load
// Load reads a YAML file over the defaults. An empty path or a missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Backend = envOr("BACKEND", c.Backend)
	c.DBPath = envOr("CONCEPTS_DB", c.DBPath)
	c.CodecAddr = envOr("CODEC_ADDR", c.CodecAddr)
	c.OpenAI.APIKey = envOr("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = envOr("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = envOr("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.EmbeddingModel = envOr("EMBED_MODEL", c.OpenAI.EmbeddingModel)
	if d, ok := envDuration("PIPELINE_TIMEOUT"); ok {
		c.Pipeline.Deadline = d
	}
	if d, ok := envDuration("CALL_TIMEOUT"); ok {
		c.Pipeline.CallTimeout = d
	}
	if v := os.Getenv("MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxParallel = n
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second, true
	}
	return 0, false
}

// #endregion load

// #region validate
// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendCodec:
		if c.CodecAddr == "" {
			errs = append(errs, errors.New("codec_addr is required for the codec backend"))
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai.api_key is required for the openai backend"))
		}
		if c.OpenAI.Model == "" {
			errs = append(errs, errors.New("openai.model is required for the openai backend"))
		}
	case BackendMock:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}

	p := c.Pipeline
	if p.MaxParallel < 1 || p.MaxParallel > pipeline.MaxBatchWidth {
		errs = append(errs, fmt.Errorf("pipeline.max_parallel must be in [1, %d], got %d", pipeline.MaxBatchWidth, p.MaxParallel))
	}
	if p.Deadline <= 0 {
		errs = append(errs, errors.New("pipeline.deadline must be positive"))
	}
	if p.CallTimeout <= 0 || p.CallTimeout >= p.Deadline {
		errs = append(errs, fmt.Errorf("pipeline.call_timeout must be positive and below the deadline (%s), got %s",
			p.Deadline, p.CallTimeout))
	}
	if p.ScoringReserve < 0 || p.ScoringReserve >= p.Deadline {
		errs = append(errs, fmt.Errorf("pipeline.scoring_reserve must be in [0, deadline), got %s", p.ScoringReserve))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature must be in [0, 2], got %.2f", p.Temperature))
	}
	if p.HistoryWindow < 0 || p.RegenerationBudget < 0 {
		errs = append(errs, errors.New("pipeline.history_window and regeneration_budget must not be negative"))
	}
	if c.Refine.TemperatureStep < 0 {
		errs = append(errs, errors.New("refine.temperature_step must not be negative"))
	}

	for name, v := range map[string]float64{
		arbiter.Originality:         c.Thresholds.Originality,
		arbiter.Relevance:           c.Thresholds.Relevance,
		arbiter.CulturalSensitivity: c.Thresholds.CulturalSensitivity,
		arbiter.RhetoricalStrength:  c.Thresholds.RhetoricalStrength,
		arbiter.Practicality:        c.Thresholds.Practicality,
		arbiter.AudienceResonance:   c.Thresholds.AudienceResonance,
		arbiter.AwardPotential:      c.Thresholds.AwardPotential,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("thresholds.%s must be in [0, 100], got %.1f", name, v))
		}
	}

	d := c.Diversity
	for name, v := range map[string]float64{
		"batch_threshold":   d.BatchThreshold,
		"history_threshold": d.HistoryThreshold,
		"lexical_threshold": d.LexicalThreshold,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("diversity.%s must be in (0, 1], got %.2f", name, v))
		}
	}
	if d.BatchThreshold > d.HistoryThreshold {
		errs = append(errs, fmt.Errorf("diversity.batch_threshold (%.2f) must not exceed history_threshold (%.2f)",
			d.BatchThreshold, d.HistoryThreshold))
	}
	if d.Bonus < 0 {
		errs = append(errs, errors.New("diversity.bonus must not be negative"))
	}

	if c.Retrieval.TopK < 1 {
		errs = append(errs, errors.New("retrieval.top_k must be at least 1"))
	}
	return errors.Join(errs...)
}

// #endregion validate
