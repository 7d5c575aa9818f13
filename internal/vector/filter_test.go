package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterExpr(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty", nil, ""},
		{
			"single string",
			Filter{"document_type": "adequacy_report"},
			`document_type == "adequacy_report"`,
		},
		{
			"single int",
			Filter{"year": 2023},
			`year == 2023`,
		},
		{
			"multiple sorted",
			Filter{"year": 2023, "document_type": "adequacy_report", "model_type": "credit"},
			`document_type == "adequacy_report" && model_type == "credit" && year == 2023`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Expr())
		})
	}
}

func TestFilterWithout(t *testing.T) {
	f := Filter{"document_type": "x", "year": 2023}

	relaxed := f.Without("year")
	assert.Equal(t, Filter{"document_type": "x"}, relaxed)

	// The original is untouched.
	assert.Equal(t, Filter{"document_type": "x", "year": 2023}, f)

	// Removing an absent key is a no-op.
	assert.Equal(t, relaxed, relaxed.Without("missing"))
}

func TestFilterKeys(t *testing.T) {
	f := Filter{"year": 2023, "document_type": "x", "model_type": "y"}
	assert.Equal(t, []string{"document_type", "model_type", "year"}, f.Keys())
	assert.Empty(t, Filter{}.Keys())
}

func TestFilterMatches(t *testing.T) {
	rec := Record{
		ChunkID:      "doc_chunk_000",
		DocumentType: "adequacy_report",
		ModelType:    "credit",
		Year:         2023,
		Section:      "Methodology",
		SectionLevel: 2,
		ChunkIndex:   0,
		SourceFile:   "/kb/doc.md",
		Extra:        map[string]string{"author": "risk-team"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches all", Filter{}, true},
		{"typed field match", Filter{"document_type": "adequacy_report"}, true},
		{"typed field mismatch", Filter{"document_type": "guideline"}, false},
		{"int field match", Filter{"year": 2023}, true},
		{"int field mismatch", Filter{"year": 2024}, false},
		{"extra field match", Filter{"author": "risk-team"}, true},
		{"extra field mismatch", Filter{"author": "ops"}, false},
		{"unknown field", Filter{"nonexistent": "x"}, false},
		{"conjunction", Filter{"document_type": "adequacy_report", "year": 2023}, true},
		{"conjunction partial", Filter{"document_type": "adequacy_report", "year": 1999}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(rec))
		})
	}
}
