// Package embedding maps free text to fixed-length vectors. The matcher
// treats an Embedder as an opaque external function; this package ships a
// deterministic feature-hashing embedder for tests and local development and
// an HTTP client for hosted embedding models.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("embedding: empty input")

// Embedder produces a vector for text. Implementations must be safe for
// concurrent use and return vectors of length Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
