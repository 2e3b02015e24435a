package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// #region interfaces

// Embedder abstracts the embedding backend so Store can be tested without a model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Space is what consumers need from a vector store: embeddings and a
// similarity measure over them.
type Space interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Similarity(a, b []float32) float64
}

// Persister is an optional second-level cache for embeddings.
type Persister interface {
	SaveEmbedding(key string, vec []float32) error
	GetEmbedding(key string) ([]float32, bool, error)
}

// ErrUnavailable is returned when no embedder is configured.
var ErrUnavailable = fmt.Errorf("vector: %w", concept.ErrUnavailable)

// ErrEmptyVector is returned when the backend answers with no dimensions.
var ErrEmptyVector = errors.New("vector: empty embedding")

// #endregion interfaces

// #region store

// Store caches embeddings in memory and, when a Persister is set, on disk.
type Store struct {
	embedder    Embedder
	persist     Persister
	callTimeout time.Duration

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewStore wires an embedder and optional persister. A nil embedder yields a
// store whose Embed always returns ErrUnavailable.
func NewStore(e Embedder, p Persister, callTimeout time.Duration) *Store {
	return &Store{
		embedder:    e,
		persist:     p,
		callTimeout: callTimeout,
		cache:       make(map[string][]float32),
	}
}

// Available reports whether an embedder is configured.
func (s *Store) Available() bool {
	return s != nil && s.embedder != nil
}

// Embed returns the embedding for text, consulting the caches first.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	key := Key(text)

	s.mu.RLock()
	vec, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return vec, nil
	}

	if s.persist != nil {
		if vec, ok, err := s.persist.GetEmbedding(key); err != nil {
			log.Printf("[VEC] persisted lookup failed: %v", err)
		} else if ok {
			s.put(key, vec)
			return vec, nil
		}
	}

	callCtx := ctx
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	vec, err := s.embedder.Embed(callCtx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	s.put(key, vec)
	if s.persist != nil {
		if err := s.persist.SaveEmbedding(key, vec); err != nil {
			log.Printf("[VEC] persist failed: %v", err)
		}
	}
	return vec, nil
}

// Similarity is cosine similarity.
func (s *Store) Similarity(a, b []float32) float64 {
	return Cosine(a, b)
}

// Cached reports how many embeddings are held in memory.
func (s *Store) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Store) put(key string, vec []float32) {
	s.mu.Lock()
	s.cache[key] = vec
	s.mu.Unlock()
}

// #endregion store

// #region math

// Key is the cache key for a text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Cosine returns the cosine similarity of a and b, 0 on length mismatch or
// zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// MaxSimilarity embeds each text and returns the highest similarity to vec
// along with the index of the closest text. Texts that fail to embed are
// skipped; the error is returned only if every text failed.
func MaxSimilarity(ctx context.Context, sp Space, vec []float32, texts []string) (float64, int, error) {
	best, bestIdx := 0.0, -1
	var lastErr error
	for i, t := range texts {
		other, err := sp.Embed(ctx, t)
		if err != nil {
			lastErr = err
			continue
		}
		if sim := sp.Similarity(vec, other); bestIdx < 0 || sim > best {
			best, bestIdx = sim, i
		}
	}
	if bestIdx < 0 && lastErr != nil {
		return 0, -1, lastErr
	}
	return best, bestIdx, nil
}

// #endregion math
