package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/utils"
)

// DefaultSeparator divides chunks inside a packed context string.
const DefaultSeparator = "\n\n---\n\n"

// RetrieveMultiQuery runs Retrieve once per query and merges the results.
// With deduplicate set, repeated chunk IDs collapse to a single entry
// carrying the best (smallest) distance seen. The merged set is re-sorted
// by descending similarity and ranks are reassigned 1-based over it.
func (r *Retriever) RetrieveMultiQuery(ctx context.Context, queries []string, nResultsPerQuery int, deduplicate bool) ([]Result, error) {
	var merged []Result
	seen := make(map[string]int)

	for _, query := range queries {
		results, err := r.Retrieve(ctx, query, Options{NResults: nResultsPerQuery})
		if err != nil {
			return nil, err
		}

		for _, result := range results {
			if !deduplicate {
				merged = append(merged, result)
				continue
			}
			if at, dup := seen[result.ChunkID]; dup {
				if result.Distance < merged[at].Distance {
					merged[at].Distance = result.Distance
				}
				continue
			}
			seen[result.ChunkID] = len(merged)
			merged = append(merged, result)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity() > merged[j].Similarity()
	})
	for i := range merged {
		merged[i].Rank = i + 1
	}

	logger.Debug("Multi-query retrieval merged",
		zap.Int("queries", len(queries)),
		zap.Int("merged_results", len(merged)),
		zap.Bool("deduplicate", deduplicate),
	)

	return merged, nil
}

// BuildContext greedily packs result texts into a single string under a
// token budget. Chunks are taken in input order; a chunk either fits whole
// or is excluded, and packing stops at the first chunk that would overflow
// so nothing later is retroactively included.
func BuildContext(results []Result, maxTokens int, includeCitations bool, separator string) string {
	if separator == "" {
		separator = DefaultSeparator
	}

	budget := utils.TokensToChars(maxTokens)
	used := 0
	var parts []string

	for _, result := range results {
		entry := result.Text
		if includeCitations {
			entry = result.Citation() + "\n" + result.Text
		}

		cost := len(entry)
		if len(parts) > 0 {
			cost += len(separator)
		}
		if used+cost > budget {
			break
		}

		parts = append(parts, entry)
		used += cost
	}

	logger.Info("Context assembled",
		zap.String("chunks_included", includedLabel(len(parts), len(results))),
		zap.Int("chars_used", used),
		zap.Int("max_tokens", maxTokens),
	)

	return strings.Join(parts, separator)
}

// includedLabel renders "2/5" so the log line reads as "2/5 chunks included".
func includedLabel(included, total int) string {
	return fmt.Sprintf("%d/%d", included, total)
}

// RelevantSources lists the source filenames of a result set in input
// order. With deduplicate set, only the first occurrence of each file is
// kept.
func RelevantSources(results []Result, deduplicate bool) []string {
	var sources []string
	seen := make(map[string]bool)

	for _, result := range results {
		name := filepath.Base(result.SourceFile)
		if deduplicate {
			if seen[name] {
				continue
			}
			seen[name] = true
		}
		sources = append(sources, name)
	}

	return sources
}
