package retriever

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder converts text to vector embeddings for the semantic channel.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder generates deterministic embeddings from an FNV hash. It has
// no semantic understanding; it exists so the hybrid retriever works out of
// the box and tests stay reproducible. Swap in a real embedder for
// meaningful similarity.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{dimensions: 384}
}

func (m *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// LCG keeps the vector deterministic per input.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

func (m *HashEmbedder) Dimensions() int {
	return m.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
