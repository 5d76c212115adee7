package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// VectorIndex is the fixed-dimension ANN structure keyed by decisions.rowid
//. modernc.org/sqlite is a pure-Go driver and cannot load a
// native cgo vector extension (e.g. sqlite-vec); see SPEC_FULL.md §14.1 for
// the recorded decision. This type models the "attempt to load a vector
// search extension" as an in-process flat cosine index hydrated from the
// embeddings table at Open time. When disabled, every Search call degrades
// cleanly to "no results" rather than falling back to keyword search.
type VectorIndex struct {
	db       *sql.DB
	forceOff bool

	mu      sync.RWMutex
	enabled bool
	dim     int
	vectors map[int64][]float32 // rowid -> vector
}

func newVectorIndex(db *sql.DB, forceOff bool) *VectorIndex {
	return &VectorIndex{db: db, forceOff: forceOff, vectors: make(map[int64][]float32)}
}

// load hydrates the in-memory index from the embeddings table. Any error
// here is non-fatal to Store.Open — the caller disables the index instead.
func (v *VectorIndex) load(ctx context.Context) error {
	if v.forceOff {
		return fmt.Errorf("vector index disabled by configuration")
	}

	rows, err := v.db.QueryContext(ctx, `SELECT decision_rowid, dim, vector FROM embeddings`)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	v.mu.Lock()
	defer v.mu.Unlock()
	for rows.Next() {
		var rowid int64
		var dim int
		var blob []byte
		if err := rows.Scan(&rowid, &dim, &blob); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			continue
		}
		v.vectors[rowid] = vec
		v.dim = dim
	}
	if err := rows.Err(); err != nil {
		return err
	}
	v.enabled = true
	return nil
}

func (v *VectorIndex) disable() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.enabled = false
}

// Enabled reports whether vector search is in its normal (non-degraded)
// tier.
func (v *VectorIndex) Enabled() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.enabled
}

// Insert persists vector at rowid, both to the embeddings table (INSERT OR
// REPLACE semantics) and the in-memory index. It runs inside
// the caller's write transaction via tx when provided, so decision+embedding
// inserts stay atomic.
func (v *VectorIndex) Insert(ctx context.Context, tx *sql.Tx, rowid int64, vector []float32) error {
	blob := encodeVector(vector)
	const q = `INSERT OR REPLACE INTO embeddings (decision_rowid, dim, vector) VALUES (?, ?, ?)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, rowid, len(vector), blob)
	} else {
		_, err = v.db.ExecContext(ctx, q, rowid, len(vector), blob)
	}
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}

	v.mu.Lock()
	v.vectors[rowid] = vector
	v.dim = len(vector)
	v.mu.Unlock()
	return nil
}

// Candidate is one ANN search result: the decision rowid, its cosine
// similarity to the query vector, and the derived distance.
type Candidate struct {
	Rowid      int64
	Similarity float64
	Distance   float64
}

// Search returns up to k candidates scored by cosine similarity against
// query (in [-1,1]), sorted by similarity descending. If the index is disabled, it returns
// nil — "no results" — never an error and never a keyword fallback.
func (v *VectorIndex) Search(query []float32, k int) []Candidate {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.enabled {
		return nil
	}

	candidates := make([]Candidate, 0, len(v.vectors))
	for rowid, vec := range v.vectors {
		sim := cosine(query, vec)
		candidates = append(candidates, Candidate{Rowid: rowid, Similarity: sim, Distance: 1 - sim})
	}

	sortCandidatesDesc(candidates)
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func sortCandidatesDesc(c []Candidate) {
	// Small N (single-user local store); insertion sort keeps this file
	// free of a sort.Slice closure allocation on the hot injector path.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Similarity > c[j-1].Similarity; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
