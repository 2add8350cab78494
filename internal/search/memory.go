package search

import (
	"context"
	"math"
	"sync"
)

// Option configures a MemoryIndex.
type Option func(*memConfig)

type memConfig struct {
	dimension  int
	maxEntries int
}

// WithDimension makes Upsert and Query reject vectors of another length.
func WithDimension(n int) Option {
	return func(c *memConfig) {
		if n > 0 {
			c.dimension = n
		}
	}
}

// WithMaxEntries caps the number of stored entries; inserts beyond the cap
// fail. Replacing an existing id always succeeds.
func WithMaxEntries(n int) Option {
	return func(c *memConfig) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

type memEntry struct {
	vec  []float32
	norm float64
	meta Metadata
}

// MemoryIndex is an exact cosine-similarity index held in process memory.
type MemoryIndex struct {
	cfg     memConfig
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex(opts ...Option) *MemoryIndex {
	var cfg memConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &MemoryIndex{cfg: cfg, entries: make(map[string]memEntry)}
}

// Len reports the number of stored entries.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Upsert implements Index. The vector is copied.
func (m *MemoryIndex) Upsert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.dimension > 0 && len(e.Vector) != m.cfg.dimension {
		return ErrDimensionMismatch
	}
	vec := append([]float32(nil), e.Vector...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.ID]; !exists && m.cfg.maxEntries > 0 && len(m.entries) >= m.cfg.maxEntries {
		return ErrIndexFull
	}
	m.entries[e.ID] = memEntry{vec: vec, norm: l2(vec), meta: e.Metadata}
	return nil
}

// Query implements Index with exact cosine similarity.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cfg.dimension > 0 && len(vector) != m.cfg.dimension {
		return nil, ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 10
	}
	qn := l2(vector)

	m.mu.RLock()
	out := make([]Match, 0, len(m.entries))
	for id, e := range m.entries {
		if len(e.vec) != len(vector) {
			continue
		}
		out = append(out, Match{ID: id, Score: cosine(vector, qn, e.vec, e.norm), Metadata: e.meta})
	}
	m.mu.RUnlock()

	SortMatches(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Delete implements Index.
func (m *MemoryIndex) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	return nil
}

func l2(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
