package store

import (
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
)

// ConceptRecord is one row of the append-only concept log.
type ConceptRecord struct {
	ID          string         `json:"id"`
	Brief       string         `json:"brief"`
	Tone        concept.Tone   `json:"tone"`
	Headline    string         `json:"headline"`
	Text        string         `json:"text"`
	RawResponse string         `json:"-"`
	Originality float64        `json:"originality"`
	Composite   float64        `json:"composite"`
	Status      concept.Status `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RecordFor builds a ConceptRecord from a scored candidate.
func RecordFor(brief concept.Brief, c concept.Candidate, originalityKey string) ConceptRecord {
	return ConceptRecord{
		Brief:       brief.Query,
		Tone:        brief.Tone,
		Headline:    c.Headline(),
		Text:        c.Text(),
		RawResponse: c.RawText,
		Originality: c.Scores[originalityKey].Value,
		Composite:   c.Composite(),
		Status:      c.Status,
	}
}

// ResetRecord is one row of the usage_resets audit table.
type ResetRecord struct {
	Namespace   string    `json:"namespace"`
	KeysCleared int64     `json:"keys_cleared"`
	CreatedAt   time.Time `json:"created_at"`
}
