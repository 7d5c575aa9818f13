package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/metrics"
	"github.com/regdoc-agent/backend/pkg/circuitbreaker"
	"github.com/regdoc-agent/backend/pkg/config"
	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/retry"
)

// OpenAIEmbedder generates embeddings through the OpenAI API with
// batching, a disk cache, retry with backoff, and a circuit breaker.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dimensions  int
	batchSize   int
	normalize   bool
	timeout     time.Duration
	cache       *Cache
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	var cache *Cache
	if cfg.CacheDir != "" {
		var err error
		cache, err = NewCache(cfg.CacheDir, cfg.Model)
		if err != nil {
			// The cache is an optimization; run without it.
			logger.Warn("Failed to initialize embedding cache", zap.Error(err))
			cache = nil
		}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized",
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("normalize", cfg.Normalize),
		zap.Bool("cache", cache != nil),
	)

	return &OpenAIEmbedder{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   batchSize,
		normalize:   cfg.Normalize,
		timeout:     timeout,
		cache:       cache,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Ping issues a minimal embedding request to validate connectivity.
// A failure here is fatal to retrieval and should abort startup.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	_, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return fmt.Errorf("embedding backend unreachable: %w", err)
	}
	return nil
}

// EmbedDocuments embeds a batch of texts. Cached vectors are returned
// without an API call; the remainder is fetched in configured batch sizes
// and written back to the cache best-effort.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	// Cache pass first, then one API pass over the misses.
	var missTexts []string
	var missIndex []int
	for i, text := range texts {
		if e.cache != nil {
			if vec, ok := e.cache.Get(text); ok {
				vectors[i] = vec
				metrics.EmbeddingCacheHits.Inc()
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIndex = append(missIndex, i)
	}

	if len(missTexts) > 0 {
		fetched, err := e.embedBatches(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range fetched {
			vectors[missIndex[j]] = vec
			if e.cache != nil {
				e.cache.Put(missTexts[j], vec)
			}
		}
	}

	logger.Debug("Documents embedded",
		zap.Int("requested", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missTexts)),
	)

	return vectors, nil
}

// EmbedQuery embeds a single query string. Same computation as documents
// for OpenAI models, exposed separately per the Embedder contract.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var embeddings [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		err := e.cb.Execute(ctx, func() error {
			return retry.Do(ctx, e.retryConfig, func() error {
				resp, err := e.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(e.model),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to generate embeddings: %w", err)
				}

				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d",
						len(resp.Data), len(batch))
				}

				for _, data := range resp.Data {
					vec := make([]float32, len(data.Embedding))
					copy(vec, data.Embedding)
					if e.normalize {
						Normalize(vec)
					}
					embeddings = append(embeddings, vec)
				}

				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return embeddings, nil
}
