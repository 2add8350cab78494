// Package search provides the vector index over demand postings: a
// deterministic, concurrency-safe in-memory implementation and an
// OpenSearch k-NN implementation behind the same interface.
//
// The index is not the source of truth for liveness. Entries may outlive
// their demand; callers re-check the relational store.
package search

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the index dimension.
var ErrDimensionMismatch = errors.New("search: vector dimension mismatch")

// ErrIndexFull is returned by MemoryIndex.Upsert when WithMaxEntries is hit.
var ErrIndexFull = errors.New("search: index is full")

// Metadata is stored alongside each vector.
type Metadata struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Entry is one indexed demand.
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a query hit. Score is opaque and only meaningful for ordering.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Index is the minimal interface implemented by all vector indices.
type Index interface {
	// Upsert inserts or replaces the entry with e.ID.
	Upsert(ctx context.Context, e Entry) error
	// Query returns up to topK nearest entries, best first.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	// Delete removes entries; unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
}

// SortMatches orders by score descending, then id ascending, so equal
// scores have a stable order for a given response.
func SortMatches(ms []Match) {
	sort.SliceStable(ms, func(a, b int) bool {
		if ms[a].Score != ms[b].Score {
			return ms[a].Score > ms[b].Score
		}
		return ms[a].ID < ms[b].ID
	})
}
