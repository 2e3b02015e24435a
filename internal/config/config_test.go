package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendCodec || cfg.Pipeline.MaxParallel != 10 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concepts.yaml")
	data := `
backend: mock
pipeline:
  deadline: 2m
  max_parallel: 4
thresholds:
  originality: 45
diversity:
  batch_threshold: 0.75
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendMock {
		t.Errorf("backend = %s", cfg.Backend)
	}
	if cfg.Pipeline.Deadline != 2*time.Minute || cfg.Pipeline.MaxParallel != 4 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Thresholds.Originality != 45 || cfg.Thresholds.Relevance != 55 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Diversity.BatchThreshold != 0.75 || cfg.Diversity.HistoryThreshold != 0.85 {
		t.Errorf("diversity = %+v", cfg.Diversity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pipeline: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("CONCEPTS_DB", "/tmp/x.db")
	t.Setenv("PIPELINE_TIMEOUT", "30")
	t.Setenv("CALL_TIMEOUT", "5s")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Backend != BackendOpenAI || cfg.OpenAI.APIKey != "sk-test" || cfg.DBPath != "/tmp/x.db" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Pipeline.Deadline != 30*time.Second || cfg.Pipeline.CallTimeout != 5*time.Second {
		t.Fatalf("durations not applied: %+v", cfg.Pipeline)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":     func(c *Config) { c.Backend = "carrier-pigeon" },
		"openai key":  func(c *Config) { c.Backend = BackendOpenAI; c.OpenAI.APIKey = "" },
		"parallel":    func(c *Config) { c.Pipeline.MaxParallel = 11 },
		"deadline":    func(c *Config) { c.Pipeline.Deadline = 0 },
		"no call cap": func(c *Config) { c.Pipeline.CallTimeout = 0 },
		"call cap":    func(c *Config) { c.Pipeline.CallTimeout = c.Pipeline.Deadline },
		"reserve":     func(c *Config) { c.Pipeline.ScoringReserve = c.Pipeline.Deadline },
		"threshold":   func(c *Config) { c.Thresholds.Relevance = 120 },
		"similarity":  func(c *Config) { c.Diversity.LexicalThreshold = 1.5 },
		"ordering":    func(c *Config) { c.Diversity.BatchThreshold = 0.9; c.Diversity.HistoryThreshold = 0.8 },
		"top_k":       func(c *Config) { c.Retrieval.TopK = 0 },
		"refine step": func(c *Config) { c.Refine.TemperatureStep = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.DBPath = ""
	cfg.Retrieval.TopK = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "db_path") || !strings.Contains(err.Error(), "top_k") {
		t.Fatalf("expected both errors, got %v", err)
	}
}
