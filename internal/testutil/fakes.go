// Package testutil provides deterministic fakes shared across test
// packages. Nothing here is imported by production code.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/regdoc-agent/backend/internal/embedding"
)

// FakeEmbedder produces deterministic vectors without a network call.
// By default each text is hashed into a bag-of-words vector, so texts
// sharing words come out similar and identical texts come out identical.
// Vectors can pin exact embeddings per text, and FailSubstring makes the
// embedder error for matching inputs to exercise failure paths.
type FakeEmbedder struct {
	Dim           int
	Vectors       map[string][]float32
	Err           error
	FailSubstring string

	DocumentCalls int
	QueryCalls    int
}

var _ embedding.Embedder = (*FakeEmbedder)(nil)

func (f *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.DocumentCalls++
	if f.Err != nil {
		return nil, f.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.embed(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.QueryCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.embed(text)
}

func (f *FakeEmbedder) Dimensions() int {
	if f.Dim <= 0 {
		return 64
	}
	return f.Dim
}

func (f *FakeEmbedder) ModelName() string {
	return "fake-embedder"
}

func (f *FakeEmbedder) embed(text string) ([]float32, error) {
	if f.FailSubstring != "" && strings.Contains(text, f.FailSubstring) {
		return nil, errEmbedFailed
	}

	if vec, ok := f.Vectors[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	dim := f.Dimensions()
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%uint32(dim)]++
	}
	embedding.Normalize(vec)
	return vec, nil
}

type embedError string

func (e embedError) Error() string { return string(e) }

const errEmbedFailed = embedError("fake embedder: induced failure")
