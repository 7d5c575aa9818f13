package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdoc-agent/backend/internal/testutil"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/internal/vector/memory"
	"github.com/regdoc-agent/backend/pkg/config"
)

func TestRetrieveMultiQueryDeduplicates(t *testing.T) {
	embedder := &testutil.FakeEmbedder{Dim: 4, Vectors: map[string][]float32{
		"first query":  {1, 0, 0, 0},
		"second query": {0, 1, 0, 0},
		"alpha text":   {1, 0, 0, 0},
		"shared text":  {0.6, 0.8, 0, 0},
		"beta text":    {0, 1, 0, 0},
	}}
	store := memory.NewStore(embedder)
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx))
	require.NoError(t, store.Add(ctx, []vector.Record{
		{ChunkID: "alpha", Text: "alpha text", SourceFile: "/kb/a.md"},
		{ChunkID: "shared", Text: "shared text", SourceFile: "/kb/s.md"},
		{ChunkID: "beta", Text: "beta text", SourceFile: "/kb/b.md"},
	}))

	r := New(store, config.RetrievalConfig{})
	queries := []string{"first query", "second query"}

	results, err := r.RetrieveMultiQuery(ctx, queries, 3, true)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Each chunk appears once, carrying its best distance across queries:
	// "shared" scores 0.6 against the first query and 0.8 against the
	// second, so the merged entry keeps distance 0.2.
	byID := make(map[string]Result)
	for _, result := range results {
		byID[result.ChunkID] = result
	}
	require.Contains(t, byID, "shared")
	assert.InDelta(t, 0.2, byID["shared"].Distance, 1e-5)

	// Merged results are re-ranked by descending similarity.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity(), results[i].Similarity())
	}
	for i, result := range results {
		assert.Equal(t, i+1, result.Rank)
	}

	// Without deduplication every per-query hit survives.
	results, err = r.RetrieveMultiQuery(ctx, queries, 3, false)
	require.NoError(t, err)
	assert.Len(t, results, 6)
}

func packableResults() []Result {
	return []Result{
		{Record: vector.Record{ChunkID: "a", Text: strings.Repeat("a", 40), SourceFile: "/kb/a.md", Section: "One"}},
		{Record: vector.Record{ChunkID: "b", Text: strings.Repeat("b", 50), SourceFile: "/kb/b.md", Section: "Two"}},
		{Record: vector.Record{ChunkID: "c", Text: strings.Repeat("c", 60), SourceFile: "/kb/c.md", Section: "Three"}},
		{Record: vector.Record{ChunkID: "d", Text: strings.Repeat("d", 5), SourceFile: "/kb/d.md", Section: "Four"}},
	}
}

func TestBuildContext(t *testing.T) {
	results := packableResults()

	// 30 tokens = 120 chars. The first two entries cost 40 + 7 + 50 = 97;
	// the third would overflow and packing stops there, so the small
	// fourth entry is not pulled in past it.
	packed := BuildContext(results, 30, false, "")

	assert.Contains(t, packed, strings.Repeat("a", 40))
	assert.Contains(t, packed, strings.Repeat("b", 50))
	assert.NotContains(t, packed, "c")
	assert.NotContains(t, packed, "d")
	assert.Equal(t, 97, len(packed))

	parts := strings.Split(packed, DefaultSeparator)
	assert.Len(t, parts, 2)
}

func TestBuildContextCitations(t *testing.T) {
	results := packableResults()[:1]

	packed := BuildContext(results, 100, true, "")

	assert.True(t, strings.HasPrefix(packed, "[a.md:One]\n"))
	assert.Contains(t, packed, strings.Repeat("a", 40))
}

func TestBuildContextCustomSeparator(t *testing.T) {
	results := packableResults()[:2]

	packed := BuildContext(results, 100, false, "\n\n")

	assert.Equal(t, strings.Repeat("a", 40)+"\n\n"+strings.Repeat("b", 50), packed)
}

func TestBuildContextMonotonic(t *testing.T) {
	results := packableResults()

	small := BuildContext(results, 15, false, "")
	large := BuildContext(results, 100, false, "")

	assert.LessOrEqual(t, len(small), len(large))
	// Everything fits once the budget is generous.
	assert.Contains(t, large, strings.Repeat("d", 5))
}

func TestBuildContextEmpty(t *testing.T) {
	assert.Empty(t, BuildContext(nil, 100, false, ""))

	// A budget too small for even the first chunk packs nothing.
	assert.Empty(t, BuildContext(packableResults(), 1, false, ""))
}

func TestRelevantSources(t *testing.T) {
	results := []Result{
		{Record: vector.Record{SourceFile: "/kb/a.md"}},
		{Record: vector.Record{SourceFile: "/kb/b.md"}},
		{Record: vector.Record{SourceFile: "/kb/a.md"}},
	}

	assert.Equal(t, []string{"a.md", "b.md"}, RelevantSources(results, true))
	assert.Equal(t, []string{"a.md", "b.md", "a.md"}, RelevantSources(results, false))
}
