package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/arbiter"
	"github.com/danielpatrickdp/concept-arbiter/internal/catalog"
	"github.com/danielpatrickdp/concept-arbiter/internal/codec"
	"github.com/danielpatrickdp/concept-arbiter/internal/config"
	"github.com/danielpatrickdp/concept-arbiter/internal/diversity"
	"github.com/danielpatrickdp/concept-arbiter/internal/ledger"
	"github.com/danielpatrickdp/concept-arbiter/internal/llm"
	"github.com/danielpatrickdp/concept-arbiter/internal/pipeline"
	"github.com/danielpatrickdp/concept-arbiter/internal/retrieval"
	"github.com/danielpatrickdp/concept-arbiter/internal/store"
	"github.com/danielpatrickdp/concept-arbiter/internal/vector"
)

// #region config
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// #endregion config

// #region state
// state is the persistent half of the app: store, catalog and ledger.
type state struct {
	cfg     config.Config
	store   *store.Store
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
}

func openState(configPath string) (*state, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	led := ledger.New(st)
	if err := led.Register(ledger.NamespaceDevices, cat.EligibleDeviceIDs()); err != nil {
		st.Close()
		return nil, err
	}
	if err := led.Register(ledger.NamespaceExamples, cat.ExampleIDs()); err != nil {
		st.Close()
		return nil, err
	}
	return &state{cfg: cfg, store: st, catalog: cat, ledger: led}, nil
}

func (s *state) Close() error {
	return s.store.Close()
}

// #endregion state

// #region app
// model is what a backend provides: completions for generation and judging,
// embeddings for similarity.
type model interface {
	pipeline.Generator
	vector.Embedder
}

// app is a fully wired pipeline over a state.
type app struct {
	*state
	orchestrator *pipeline.Orchestrator
	vectors      *vector.Store
	closers      []io.Closer
}

func openApp(configPath string) (*app, error) {
	s, err := openState(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{state: s}

	m, err := a.backend()
	if err != nil {
		a.Close()
		return nil, err
	}

	cfg := s.cfg
	vectors := vector.NewStore(m, s.store, cfg.EmbedTimeout)
	a.vectors = vectors
	panel := arbiter.DefaultPanel(vectors, m, cfg.Thresholds, cfg.JudgeTimeout).WithRejectionLog(s.store.DB())
	gate := diversity.NewGate(vectors, cfg.Diversity)
	retriever := retrieval.NewRetriever(s.catalog, s.ledger, vectors,
		retrieval.NewSessionCounter(uint64(time.Now().UnixNano())), cfg.Retrieval)
	a.closers = append(a.closers, retriever)

	a.orchestrator = pipeline.NewOrchestrator(pipeline.Deps{
		Model:    m,
		Selector: retriever,
		Panel:    panel,
		Gate:     gate,
		Ledger:   s.ledger,
		Store:    s.store,
	}, cfg.Pipeline, cfg.Refine)

	log.Printf("[APP] backend=%s db=%s devices=%d eligible=%d examples=%d arbiters=%s", cfg.Backend, cfg.DBPath,
		len(s.catalog.Devices), len(s.catalog.EligibleDeviceIDs()), len(s.catalog.Examples), strings.Join(panel.Names(), ","))
	return a, nil
}

func (a *app) backend() (model, error) {
	cfg := a.cfg
	switch cfg.Backend {
	case config.BackendCodec:
		c, err := codec.NewCodecClient(cfg.CodecAddr)
		if err != nil {
			return nil, fmt.Errorf("connect to codec service at %s: %w", cfg.CodecAddr, err)
		}
		a.closers = append(a.closers, c)
		return c, nil
	case config.BackendOpenAI:
		o, err := llm.NewOpenAI(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return mockModel{llm.NewMock(), llm.MockEmbedder{}}, nil
	}
}

func (a *app) Close() error {
	if a.vectors != nil {
		log.Printf("[APP] %d embeddings held in memory at close", a.vectors.Cached())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("[APP] close: %v", err)
		}
	}
	return a.state.Close()
}

type mockModel struct {
	*llm.Mock
	llm.MockEmbedder
}

// #endregion app

// #region output
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// #endregion output
