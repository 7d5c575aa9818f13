package ingestion

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

const (
	maxKeywordSource = 4000
	maxKeywords      = 10
)

// extractKeywords pulls the most salient nouns from the head of a document
// body. The result is stored as chunk metadata to aid manual inspection of
// retrieval results; failures just yield no keywords.
func extractKeywords(body string) []string {
	if len(body) > maxKeywordSource {
		body = body[:maxKeywordSource]
	}

	doc, err := prose.NewDocument(body,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		word := strings.ToLower(strings.Trim(tok.Text, ".,;:()[]"))
		if len(word) < 4 || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}

	return keywords
}
