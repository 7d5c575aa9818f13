package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFrontmatter(t *testing.T) {
	content := `---
document_type: adequacy_report
model_type: internal_model
year: 2023
author: risk-team
---

# Overview

Body text.
`

	meta, body := SplitFrontmatter(content, "report.md")

	assert.Equal(t, "adequacy_report", meta.DocumentType)
	assert.Equal(t, "internal_model", meta.ModelType)
	require.NotNil(t, meta.Year)
	assert.Equal(t, 2023, *meta.Year)
	assert.Equal(t, "risk-team", meta.Extra["author"])
	assert.Equal(t, "# Overview\n\nBody text.\n", body)
}

func TestSplitFrontmatterNoBlock(t *testing.T) {
	content := "# Just a document\n\nNo metadata here.\n"

	meta, body := SplitFrontmatter(content, "plain.md")

	assert.Empty(t, meta.DocumentType)
	assert.Nil(t, meta.Year)
	assert.Equal(t, content, body)
}

func TestSplitFrontmatterMalformedYAML(t *testing.T) {
	content := "---\ndocument_type: [unclosed\n---\nBody survives.\n"

	meta, body := SplitFrontmatter(content, "broken.md")

	assert.Empty(t, meta.DocumentType)
	assert.Equal(t, "Body survives.\n", body)
}

func TestSplitFrontmatterUnterminated(t *testing.T) {
	content := "---\ndocument_type: adequacy_report\nno closing delimiter"

	meta, body := SplitFrontmatter(content, "open.md")

	assert.Empty(t, meta.DocumentType)
	assert.Equal(t, content, body)
}

func TestSplitFrontmatterBareDelimiter(t *testing.T) {
	meta, body := SplitFrontmatter("---", "bare.md")

	assert.Empty(t, meta.DocumentType)
	assert.Nil(t, meta.Year)
	assert.Equal(t, "---", body)
}

func TestSplitFrontmatterYearAsString(t *testing.T) {
	content := "---\nyear: \"2021\"\n---\nBody.\n"

	meta, _ := SplitFrontmatter(content, "year.md")

	require.NotNil(t, meta.Year)
	assert.Equal(t, 2021, *meta.Year)
}

func TestSplitFrontmatterNonNumericYear(t *testing.T) {
	content := "---\nyear: unknown\n---\nBody.\n"

	meta, _ := SplitFrontmatter(content, "year.md")

	assert.Nil(t, meta.Year)
	assert.Equal(t, "unknown", meta.Extra["year"])
}
