// Package vector defines the store contract for persisting chunk
// embeddings and running metadata-filtered nearest-neighbour queries.
// Implementations bind an embedding.Embedder and compute vectors
// themselves on add and query.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCollectionMissing is returned by operations that need a collection
// that has not been created yet.
var ErrCollectionMissing = errors.New("collection does not exist")

// Record is one stored chunk: text, embedding payload and the metadata
// columns queries can filter on. Year zero means "not set".
type Record struct {
	ChunkID      string
	Text         string
	DocumentType string
	ModelType    string
	Year         int
	Section      string
	SectionLevel int
	ChunkIndex   int
	CharStart    int
	CharEnd      int
	SourceFile   string
	Extra        map[string]string
}

// Hit is a query result: the matched record plus its cosine distance
// (1 - similarity, in [0, 2], lower is closer).
type Hit struct {
	Record
	Distance float32
}

// Filter is a conjunction of exact equality constraints over metadata
// fields. A nil or empty filter matches everything.
type Filter map[string]any

// Clone returns a copy of the filter with the given keys removed.
func (f Filter) Without(keys ...string) Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Keys returns the filter's keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expr renders the filter as a boolean expression in the Milvus dialect:
// string values quoted, numeric values raw, terms joined with " && ".
// Single-field filters come out as the plain shorthand term.
func (f Filter) Expr() string {
	var terms []string
	for _, key := range f.Keys() {
		switch v := f[key].(type) {
		case string:
			terms = append(terms, fmt.Sprintf(`%s == "%s"`, key, v))
		default:
			terms = append(terms, fmt.Sprintf(`%s == %v`, key, v))
		}
	}
	return strings.Join(terms, " && ")
}

// Matches reports whether a record satisfies every constraint. Used by the
// in-memory store; the Milvus store pushes Expr() down instead.
func (f Filter) Matches(rec Record) bool {
	for key, want := range f {
		got, ok := rec.fieldValue(key)
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func (r Record) fieldValue(key string) (any, bool) {
	switch key {
	case "chunk_id":
		return r.ChunkID, true
	case "document_type":
		return r.DocumentType, true
	case "model_type":
		return r.ModelType, true
	case "year":
		return r.Year, true
	case "section":
		return r.Section, true
	case "section_level":
		return r.SectionLevel, true
	case "chunk_index":
		return r.ChunkIndex, true
	case "source_file":
		return r.SourceFile, true
	default:
		if v, ok := r.Extra[key]; ok {
			return v, true
		}
		return nil, false
	}
}

// Store persists records and answers filtered similarity queries.
type Store interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Add embeds and inserts records. The whole call fails if embedding
	// output does not line up with the input; nothing is partially kept
	// beyond what the backend has already flushed.
	Add(ctx context.Context, records []Record) error

	// Query embeds the query text and returns up to topK hits ordered by
	// ascending distance, restricted by the filter when non-empty.
	Query(ctx context.Context, query string, topK int, filter Filter) ([]Hit, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Peek returns up to limit records for inspection.
	Peek(ctx context.Context, limit int) ([]Record, error)

	// DropCollection deletes the collection and its contents. Destructive;
	// used only for explicit rebuilds.
	DropCollection(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
