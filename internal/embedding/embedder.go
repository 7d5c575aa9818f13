// Package embedding converts text into dense vectors for similarity
// search. The document and query paths are exposed separately because some
// embedding backends use asymmetric encoders; for OpenAI models they share
// one computation.
package embedding

import (
	"context"
	"math"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments embeds texts that are being stored.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the embedding model identifier.
	ModelName() string
}

// Normalize scales a vector to unit length in place. Required for cosine
// similarity to reduce to a dot product. Zero vectors are left untouched.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Dot returns the dot product of two vectors. For unit vectors this is the
// cosine similarity, in [-1, 1].
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity computes cosine similarity without assuming unit length.
func CosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Similarity embeds both texts and returns their cosine similarity. For
// typical natural-language inputs the result sits in [0, 1].
func Similarity(ctx context.Context, e Embedder, text1, text2 string) (float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text1, text2})
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(vecs[0], vecs[1]), nil
}
