package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/concept-arbiter/internal/concept"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS concepts (
	id            TEXT PRIMARY KEY,
	brief         TEXT NOT NULL,
	tone          TEXT NOT NULL,
	headline      TEXT,
	concept_text  TEXT NOT NULL,
	raw_response  TEXT,
	originality   REAL,
	composite     REAL,
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_concepts_created ON concepts(created_at);

CREATE TABLE IF NOT EXISTS usage_counters (
	namespace     TEXT NOT NULL,
	key           TEXT NOT NULL,
	count         INTEGER NOT NULL DEFAULT 0,
	last_used_at  TEXT,
	PRIMARY KEY (namespace, key)
);

CREATE TABLE IF NOT EXISTS usage_resets (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace     TEXT NOT NULL,
	keys_cleared  INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
	key           TEXT PRIMARY KEY,
	vector        BLOB NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS arbiter_rejections (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id  TEXT NOT NULL,
	brief_hash    TEXT,
	arbiter       TEXT NOT NULL,
	score         REAL NOT NULL,
	threshold     REAL NOT NULL,
	iteration     INTEGER NOT NULL,
	feedback      TEXT,
	created_at    TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists concepts, usage counters and embeddings in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer; concurrent slots queue on the pool instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for the rejection log.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region concepts
// SaveConcept appends a concept record and returns its id.
func (s *Store) SaveConcept(rec ConceptRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.Exec(
		`INSERT INTO concepts (id, brief, tone, headline, concept_text, raw_response, originality, composite, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Brief, string(rec.Tone), rec.Headline, rec.Text, rec.RawResponse,
		rec.Originality, rec.Composite, string(rec.Status), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert concept: %w", err)
	}
	return rec.ID, nil
}

// RecentConcepts returns up to limit records, newest first.
func (s *Store) RecentConcepts(limit int) ([]ConceptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, brief, tone, headline, concept_text, raw_response, originality, composite, status, created_at
		 FROM concepts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}
	defer rows.Close()

	var out []ConceptRecord
	for rows.Next() {
		var rec ConceptRecord
		var tone, status, created string
		var headline, raw sql.NullString
		var originality, composite sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Brief, &tone, &headline, &rec.Text, &raw,
			&originality, &composite, &status, &created); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		rec.Tone = concept.Tone(tone)
		rec.Status = concept.Status(status)
		rec.Headline = headline.String
		rec.RawResponse = raw.String
		rec.Originality = originality.Float64
		rec.Composite = composite.Float64
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentTexts returns the embedding text of the newest limit concepts.
func (s *Store) RecentTexts(limit int) ([]string, error) {
	recs, err := s.RecentConcepts(limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out, nil
}
// #endregion concepts

// #region usage
// IncrementUsage bumps one counter.
func (s *Store) IncrementUsage(namespace, key string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO usage_counters (namespace, key, count, last_used_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET count = count + 1, last_used_at = excluded.last_used_at`,
		namespace, key, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// UsageCounts loads every counter in a namespace.
func (s *Store) UsageCounts(namespace string) (map[string]concept.UsageCounter, error) {
	rows, err := s.db.Query(
		`SELECT key, count, last_used_at FROM usage_counters WHERE namespace = ?`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]concept.UsageCounter)
	for rows.Next() {
		var c concept.UsageCounter
		var last sql.NullString
		if err := rows.Scan(&c.Key, &c.Count, &last); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		if last.Valid {
			c.LastUsedAt, _ = time.Parse(time.RFC3339Nano, last.String)
		}
		out[c.Key] = c
	}
	return out, rows.Err()
}

// ResetUsage zeroes every counter in a namespace and records the reset in the
// same transaction. Returns the number of counters cleared.
func (s *Store) ResetUsage(namespace string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE usage_counters SET count = 0 WHERE namespace = ? AND count > 0`, namespace)
	if err != nil {
		return 0, fmt.Errorf("reset usage: %w", err)
	}
	n, _ := res.RowsAffected()

	_, err = tx.Exec(
		`INSERT INTO usage_resets (namespace, keys_cleared, created_at) VALUES (?, ?, ?)`,
		namespace, n, s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record reset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// ResetHistory lists recorded resets, newest first.
func (s *Store) ResetHistory(namespace string, limit int) ([]ResetRecord, error) {
	rows, err := s.db.Query(
		`SELECT namespace, keys_cleared, created_at FROM usage_resets
		 WHERE namespace = ? ORDER BY id DESC LIMIT ?`, namespace, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query resets: %w", err)
	}
	defer rows.Close()

	var out []ResetRecord
	for rows.Next() {
		var r ResetRecord
		var created string
		if err := rows.Scan(&r.Namespace, &r.KeysCleared, &created); err != nil {
			return nil, fmt.Errorf("scan reset: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
// #endregion usage

// #region embeddings
// SaveEmbedding stores a vector under its text key.
func (s *Store) SaveEmbedding(key string, vec []float32) error {
	_, err := s.db.Exec(
		`INSERT INTO embeddings (key, vector, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET vector = excluded.vector`,
		key, encodeVector(vec), s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

// GetEmbedding loads a vector by key.
func (s *Store) GetEmbedding(key string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT vector FROM embeddings WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	return decodeVector(blob), true, nil
}
// #endregion embeddings

// #region vector-encoding
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
// #endregion vector-encoding
