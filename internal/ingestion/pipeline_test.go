package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regdoc-agent/backend/internal/chunker"
	"github.com/regdoc-agent/backend/internal/storage/sqlite"
	"github.com/regdoc-agent/backend/internal/testutil"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/internal/vector/memory"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func seedCorpus(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "report.md", `---
document_type: adequacy_report
model_type: credit
year: 2023
---

# Scope

The report covers internal capital adequacy for credit risk models.

# Methodology

Model outputs are benchmarked against historical default observations.
`)
	writeFile(t, dir, "notes.txt", "Supervisory notes on validation cadence and thresholds.\n")
	writeFile(t, dir, "page.html", `<html><head><script>alert(1)</script></head>
<body><nav>menu</nav><p>Visible regulation text for the portal page.</p></body></html>`)
	writeFile(t, dir, "ignored.json", `{"not": "a corpus file"}`)
}

func newTestPipeline(t *testing.T, db *sqlite.Client, dirs ...string) (*Pipeline, *memory.Store, *testutil.FakeEmbedder) {
	t.Helper()
	embedder := &testutil.FakeEmbedder{Dim: 32}
	store := memory.NewStore(embedder)
	ch := chunker.New(chunker.WithChunkSize(60), chunker.WithChunkOverlap(6), chunker.WithMinChunkSize(5))
	return NewPipeline(db, store, ch, dirs), store, embedder
}

func TestPipelineRun(t *testing.T) {
	dir := t.TempDir()
	seedCorpus(t, dir)

	pipeline, store, _ := newTestPipeline(t, nil, dir)

	stats, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.DocumentsProcessed)
	assert.Zero(t, stats.DocumentsSkipped)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, stats.ChunksCreated, stats.ChunksStored)
	assert.Greater(t, stats.ChunksStored, 0)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(stats.ChunksStored), count)

	recs, err := store.Peek(context.Background(), 0)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.NotEmpty(t, rec.ChunkID)
		assert.NotEmpty(t, rec.Extra["filename"])
		assert.NotContains(t, rec.Text, "alert(1)")
		assert.NotContains(t, rec.Text, "<p>")
	}
}

func TestPipelineCarriesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	seedCorpus(t, dir)

	pipeline, store, _ := newTestPipeline(t, nil, dir)
	_, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	hits, err := store.Query(context.Background(), "capital adequacy",
		10, vector.Filter{"document_type": "adequacy_report"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, "credit", hit.ModelType)
		assert.Equal(t, 2023, hit.Year)
		assert.Equal(t, "report.md", hit.Extra["filename"])
	}
}

func TestPipelineSurvivesBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md", "# Fine\n\nThis one ingests cleanly.\n")
	writeFile(t, dir, "bad.md", "# Broken\n\nEMBEDFAIL this document cannot be embedded.\n")

	embedder := &testutil.FakeEmbedder{Dim: 32, FailSubstring: "EMBEDFAIL"}
	store := memory.NewStore(embedder)
	ch := chunker.New()
	pipeline := NewPipeline(nil, store, ch, []string{dir})

	stats, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "bad.md")

	recs, err := store.Peek(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Text, "ingests cleanly")
}

func TestPipelineHandlesBareDelimiterFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.md", "# Fine\n\nThis one ingests cleanly.\n")
	writeFile(t, dir, "degenerate.md", "---")

	pipeline, store, _ := newTestPipeline(t, nil, dir)

	stats, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)

	recs, err := store.Peek(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
}

// panicStore wraps a real store and panics on Add, standing in for a
// downstream bug triggered by a single document.
type panicStore struct {
	vector.Store
}

func (panicStore) Add(context.Context, []vector.Record) error {
	panic("add exploded")
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Doc\n\nSome content worth chunking.\n")

	embedder := &testutil.FakeEmbedder{Dim: 32}
	store := panicStore{memory.NewStore(embedder)}
	pipeline := NewPipeline(nil, store, chunker.New(), []string{dir})

	stats, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "panic")
}

func TestPipelineMissingDirFails(t *testing.T) {
	pipeline, _, _ := newTestPipeline(t, nil, "/nonexistent/corpus/dir")

	_, err := pipeline.Run(context.Background())
	assert.Error(t, err)
}

func TestPipelineClearCollection(t *testing.T) {
	dir := t.TempDir()
	seedCorpus(t, dir)
	ctx := context.Background()

	pipeline, store, _ := newTestPipeline(t, nil, dir)
	_, err := pipeline.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, pipeline.ClearCollection(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The collection stays usable after a clear.
	stats, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.ChunksStored, 0)
}

func TestPipelineQuerySample(t *testing.T) {
	dir := t.TempDir()
	seedCorpus(t, dir)
	ctx := context.Background()

	pipeline, _, _ := newTestPipeline(t, nil, dir)
	_, err := pipeline.Run(ctx)
	require.NoError(t, err)

	hits, err := pipeline.QuerySample(ctx, "credit risk models", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), 2)

	// n <= 0 falls back to the default sample size.
	hits, err = pipeline.QuerySample(ctx, "credit risk models", 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 3)
}

func TestPipelineSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	seedCorpus(t, dir)
	ctx := context.Background()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitSchema())

	pipeline, store, _ := newTestPipeline(t, db, dir)

	first, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.DocumentsProcessed)

	docs, err := db.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, 3, docs)

	countBefore, err := store.Count(ctx)
	require.NoError(t, err)

	second, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.DocumentsProcessed)
	assert.Equal(t, 3, second.DocumentsSkipped)

	countAfter, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, countBefore, countAfter)

	// A content change re-ingests just that file.
	writeFile(t, dir, "notes.txt", "Updated supervisory notes with new thresholds.\n")
	third, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.DocumentsProcessed)
	assert.Equal(t, 2, third.DocumentsSkipped)
}

func TestSupportedFile(t *testing.T) {
	assert.True(t, supportedFile("a.md"))
	assert.True(t, supportedFile("a.MARKDOWN"))
	assert.True(t, supportedFile("a.txt"))
	assert.True(t, supportedFile("a.html"))
	assert.True(t, supportedFile("a.htm"))
	assert.False(t, supportedFile("a.json"))
	assert.False(t, supportedFile("a.go"))
	assert.False(t, supportedFile("noext"))
}

func TestCleanHTML(t *testing.T) {
	html := `<html><head><style>.x{}</style></head>
<body><header>site</header><p>Keep   this sentence.</p><script>drop()</script></body></html>`

	text, err := cleanHTML(html)
	require.NoError(t, err)

	assert.Contains(t, text, "Keep this sentence.")
	assert.NotContains(t, text, "drop()")
	assert.NotContains(t, text, ".x{}")
	assert.NotContains(t, text, "site")
}
