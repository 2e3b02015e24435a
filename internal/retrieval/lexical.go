package retrieval

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// LexicalIndex is an in-memory BM25 index over reference examples, used when
// embeddings are unavailable.
type LexicalIndex struct {
	index bleve.Index
}

// NewLexicalIndex indexes every example.
func NewLexicalIndex(examples []concept.ReferenceExample) (*LexicalIndex, error) {
	index, err := bleve.NewMemOnly(exampleMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}

	batch := index.NewBatch()
	for _, e := range examples {
		doc := map[string]interface{}{
			"campaign":  e.Campaign,
			"brand":     e.Brand,
			"headline":  e.Headline,
			"rationale": e.Rationale,
			"devices":   strings.Join(e.Devices, " "),
		}
		if err := batch.Index(e.ID, doc); err != nil {
			return nil, fmt.Errorf("index example %s: %w", e.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("batch index examples: %w", err)
	}
	return &LexicalIndex{index: index}, nil
}

func exampleMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	for _, field := range []string{"campaign", "brand", "headline", "rationale", "devices"} {
		doc.AddFieldMappingsAt(field, bleve.NewTextFieldMapping())
	}
	m := bleve.NewIndexMapping()
	m.AddDocumentMapping("_default", doc)
	return m
}

// Search returns up to k example ids ranked by BM25 relevance to query.
func (l *LexicalIndex) Search(query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := l.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index.
func (l *LexicalIndex) Close() error {
	return l.index.Close()
}
