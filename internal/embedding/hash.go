package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder is a deterministic bag-of-words embedder using the hashing
// trick over unigrams and adjacent bigrams. Texts sharing vocabulary land
// close in cosine space, which is enough for tests and offline development.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim < 1 {
		dim = 768
	}
	return &HashEmbedder{dim: dim}
}

// Dimension implements Embedder.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed implements Embedder. The result is L2-normalized.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toks := Tokens(text)
	if len(toks) == 0 {
		return nil, ErrEmptyInput
	}
	vec := make([]float32, h.dim)
	for i, t := range toks {
		h.add(vec, t, 1)
		if i > 0 {
			h.add(vec, toks[i-1]+" "+t, 0.5)
		}
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// add hashes feature into a bucket; a second hash bit picks the sign so
// collisions cancel out on average.
func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
