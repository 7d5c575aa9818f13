// Package corpus parses knowledge base source files: an optional YAML
// frontmatter block followed by a markdown-style body whose headings
// delimit sections.
package corpus

import (
	"fmt"
	"strconv"
)

// Metadata holds the document-level fields parsed from frontmatter.
// Known keys get typed fields; anything else lands in Extra so unknown
// frontmatter survives a round trip through the vector store.
type Metadata struct {
	DocumentType string
	ModelType    string
	Year         *int
	Extra        map[string]string
}

// FromMap builds Metadata from a raw frontmatter mapping.
func FromMap(raw map[string]any) Metadata {
	meta := Metadata{Extra: make(map[string]string)}

	for key, value := range raw {
		switch key {
		case "document_type":
			meta.DocumentType = stringify(value)
		case "model_type":
			meta.ModelType = stringify(value)
		case "year":
			if year, ok := toInt(value); ok {
				meta.Year = &year
			} else {
				meta.Extra[key] = stringify(value)
			}
		default:
			meta.Extra[key] = stringify(value)
		}
	}

	return meta
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
