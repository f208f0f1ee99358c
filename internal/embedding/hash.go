package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/normalize"
)

// HashEmbedder produces deterministic feature-hashed vectors from words and
// character trigrams. It needs no network and is used for development and
// tests; texts sharing vocabulary score a high cosine similarity.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a HashEmbedder.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed hashes each text into a unit vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

// EmbedSingle hashes one text.
func (h *HashEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

// Model returns the embedder name.
func (h *HashEmbedder) Model() string {
	return "hash-embedding"
}

// Dimension returns the vector size.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for _, w := range normalize.Words(text) {
		h.add(v, w, 1)
		runes := []rune("^" + w + "$")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, string(runes[i:i+3]), 0.5)
		}
	}
	return Normalize(v)
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Normalize scales v to unit length in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}

// Cosine returns the cosine similarity of two equal-length vectors, or 0
// when the lengths differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
