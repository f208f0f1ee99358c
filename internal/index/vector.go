package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// MemoryVectorIndex is an in-process VectorIndex using exact cosine search.
// Vectors are stored unit-normalized. All vectors share one dimension, fixed
// by the first insert.
type MemoryVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]VectorEntry
}

var _ VectorIndex = (*MemoryVectorIndex)(nil)

// NewMemoryVectorIndex creates an empty index. A dimension of 0 is taken
// from the first upserted vector.
func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		dimension: dimension,
		entries:   make(map[string]VectorEntry),
	}
}

// Upsert adds or replaces entries by document ID.
func (m *MemoryVectorIndex) Upsert(ctx context.Context, entries ...VectorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		doc, err := prepare(e.Document)
		if err != nil {
			return fmt.Errorf("document %q: %w", e.ID, err)
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("document %q: empty vector", e.ID)
		}
		if m.dimension == 0 {
			m.dimension = len(e.Vector)
		}
		if len(e.Vector) != m.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %s", ErrDimensionMismatch, m.dimension, len(e.Vector), e.ID)
		}
		m.entries[doc.ID] = VectorEntry{Document: doc, Vector: unit(e.Vector)}
	}
	return nil
}

// Search returns the k entries most similar to query. Score is the cosine
// similarity; ties break by document ID.
func (m *MemoryVectorIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d", ErrDimensionMismatch, m.dimension, len(query))
	}
	q := unit(query)

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		var dot float64
		for i := range q {
			dot += float64(q[i]) * float64(e.Vector[i])
		}
		hits = append(hits, Hit{Document: e.Document, Score: math.Max(-1, math.Min(1, dot))})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, ctx.Err()
}

// Count returns the number of entries.
func (m *MemoryVectorIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Dimension returns the index dimension, 0 while empty and unset.
func (m *MemoryVectorIndex) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Close is a no-op.
func (m *MemoryVectorIndex) Close() error {
	return nil
}

type vectorSnapshot struct {
	Dimension int           `json:"dimension"`
	Entries   []VectorEntry `json:"entries"`
}

// Save writes the index to path as JSON, sorted by ID.
func (m *MemoryVectorIndex) Save(path string) error {
	m.mu.RLock()
	snap := vectorSnapshot{Dimension: m.dimension, Entries: make([]VectorEntry, 0, len(m.entries))}
	for _, e := range m.entries {
		snap.Entries = append(snap.Entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal vector index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vector index: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadMemoryVectorIndex reads an index written by Save.
func LoadMemoryVectorIndex(ctx context.Context, path string) (*MemoryVectorIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector index: %w", err)
	}
	var snap vectorSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse vector index %s: %w", path, err)
	}
	m := NewMemoryVectorIndex(snap.Dimension)
	if err := m.Upsert(ctx, snap.Entries...); err != nil {
		return nil, fmt.Errorf("load vector index %s: %w", path, err)
	}
	return m, nil
}

func unit(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
