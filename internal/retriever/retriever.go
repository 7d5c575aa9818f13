// Package retriever is the query-time facade over the vector store: it
// issues filtered similarity queries, applies a similarity threshold,
// relaxes over-constrained filters in bounded stages, and assembles
// token-budgeted context strings for downstream prompt building.
package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/metrics"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/pkg/config"
	"github.com/regdoc-agent/backend/pkg/logger"
)

// Result is one ranked retrieval hit. Rank is the 1-based position within
// the result list of its query.
type Result struct {
	vector.Record
	Distance float32
	Rank     int
}

// Similarity derives 1 - distance, valid under the cosine configuration.
func (r Result) Similarity() float32 {
	return 1 - r.Distance
}

// Citation renders "[source:section]" for inclusion in packed context.
func (r Result) Citation() string {
	return fmt.Sprintf("[%s:%s]", filepath.Base(r.SourceFile), r.Section)
}

// Options tunes a single Retrieve call. Zero values fall back to the
// retriever's configured defaults.
type Options struct {
	NResults      int
	Filters       vector.Filter
	MinSimilarity float64
}

// filterLevel names a rung of the relaxation ladder.
type filterLevel int

const (
	levelFull filterLevel = iota
	levelRelaxed
	levelNone
)

func (l filterLevel) String() string {
	switch l {
	case levelFull:
		return "full"
	case levelRelaxed:
		return "relaxed"
	case levelNone:
		return "none"
	default:
		return "unknown"
	}
}

type Retriever struct {
	store     vector.Store
	defaultN  int
	minSim    float64
	relaxable []string
}

func New(store vector.Store, cfg config.RetrievalConfig) *Retriever {
	defaultN := cfg.DefaultNResults
	if defaultN <= 0 {
		defaultN = 5
	}

	relaxable := cfg.RelaxableFilters
	if relaxable == nil {
		relaxable = []string{"year"}
	}

	return &Retriever{
		store:     store,
		defaultN:  defaultN,
		minSim:    cfg.MinSimilarity,
		relaxable: relaxable,
	}
}

// Retrieve runs a filtered similarity query. When the fully constrained
// query yields nothing above the threshold, filters are relaxed along a
// bounded ladder: drop the configured relaxable keys (only when at least
// two constraints are present), then drop all filters. The unfiltered
// retry is always the final level; an empty result after it is returned
// as an empty list, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Result, error) {
	start := time.Now()

	nResults := opts.NResults
	if nResults <= 0 {
		nResults = r.defaultN
	}
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = r.minSim
	}

	plan := r.filterPlan(opts.Filters)

	for _, step := range plan {
		results, err := r.queryOnce(ctx, query, nResults, step.filter, minSim)
		if err != nil {
			metrics.RetrievalTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		if len(results) > 0 {
			if step.level != levelFull {
				metrics.FilterRelaxations.WithLabelValues(step.level.String()).Inc()
				logger.Info("Filters relaxed to recover results",
					zap.String("query", query),
					zap.String("level", step.level.String()),
					zap.Strings("original_filters", opts.Filters.Keys()),
				)
			}
			metrics.RetrievalTotal.WithLabelValues("ok").Inc()
			metrics.RetrievalDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
			return results, nil
		}
	}

	logger.Info("No results above similarity threshold after relaxation",
		zap.String("query", query),
		zap.Float64("min_similarity", minSim),
	)
	metrics.RetrievalTotal.WithLabelValues("empty").Inc()
	metrics.RetrievalDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())

	return nil, nil
}

type planStep struct {
	level  filterLevel
	filter vector.Filter
}

// filterPlan builds the relaxation ladder for a filter set. At most two
// relaxation steps ever follow the full query, which makes the
// termination bound structural rather than a recursion property.
func (r *Retriever) filterPlan(filters vector.Filter) []planStep {
	plan := []planStep{{level: levelFull, filter: filters}}

	if len(filters) == 0 {
		return plan
	}

	if len(filters) >= 2 {
		relaxed := filters.Without(r.relaxable...)
		if len(relaxed) > 0 && len(relaxed) < len(filters) {
			plan = append(plan, planStep{level: levelRelaxed, filter: relaxed})
		}
	}

	return append(plan, planStep{level: levelNone, filter: nil})
}

func (r *Retriever) queryOnce(ctx context.Context, query string, nResults int, filter vector.Filter, minSim float64) ([]Result, error) {
	hits, err := r.store.Query(ctx, query, nResults, filter)
	if err != nil {
		return nil, fmt.Errorf("vector store query failed: %w", err)
	}

	var results []Result
	for i, hit := range hits {
		result := Result{
			Record:   hit.Record,
			Distance: hit.Distance,
			Rank:     i + 1,
		}
		if float64(result.Similarity()) < minSim {
			continue
		}
		results = append(results, result)
	}

	logger.Debug("Retrieval query executed",
		zap.String("query", query),
		zap.String("filter", filter.Expr()),
		zap.Int("raw_hits", len(hits)),
		zap.Int("above_threshold", len(results)),
	)

	return results, nil
}

// RetrieveByDocumentType retrieves with a single document_type constraint.
func (r *Retriever) RetrieveByDocumentType(ctx context.Context, query, documentType string, nResults int) ([]Result, error) {
	return r.Retrieve(ctx, query, Options{
		NResults: nResults,
		Filters:  vector.Filter{"document_type": documentType},
	})
}

// RetrieveByModelType retrieves with a single model_type constraint.
func (r *Retriever) RetrieveByModelType(ctx context.Context, query, modelType string, nResults int) ([]Result, error) {
	return r.Retrieve(ctx, query, Options{
		NResults: nResults,
		Filters:  vector.Filter{"model_type": modelType},
	})
}

// RetrieveByYear retrieves with a single year constraint.
func (r *Retriever) RetrieveByYear(ctx context.Context, query string, year, nResults int) ([]Result, error) {
	return r.Retrieve(ctx, query, Options{
		NResults: nResults,
		Filters:  vector.Filter{"year": year},
	})
}
