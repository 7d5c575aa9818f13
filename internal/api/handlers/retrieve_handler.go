package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cache "github.com/regdoc-agent/backend/internal/cache/redis"
	"github.com/regdoc-agent/backend/internal/retriever"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/pkg/logger"
)

// RetrieveHandler exposes the retriever over HTTP for the agents that
// consume grounding context. The cache client may be nil.
type RetrieveHandler struct {
	retriever        *retriever.Retriever
	cache            *cache.Client
	maxContextTokens int
}

func NewRetrieveHandler(r *retriever.Retriever, c *cache.Client, maxContextTokens int) *RetrieveHandler {
	return &RetrieveHandler{retriever: r, cache: c, maxContextTokens: maxContextTokens}
}

type retrieveRequest struct {
	Query         string         `json:"query"`
	Filters       map[string]any `json:"filters"`
	NResults      int            `json:"n_results"`
	MinSimilarity float64        `json:"min_similarity"`
}

type contextRequest struct {
	retrieveRequest
	MaxTokens        int  `json:"max_tokens"`
	IncludeCitations bool `json:"include_citations"`
}

type resultPayload struct {
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	Distance   float32           `json:"distance"`
	Similarity float32           `json:"similarity"`
	Rank       int               `json:"rank"`
	Section    string            `json:"section"`
	SourceFile string            `json:"source_file"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type retrieveResponse struct {
	RequestID string          `json:"request_id"`
	Results   []resultPayload `json:"results"`
	LatencyMS int             `json:"latency_ms"`
}

func (h *RetrieveHandler) HandleRetrieve(c *fiber.Ctx) error {
	start := time.Now()

	var req retrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	requestID := uuid.New().String()
	cacheKey := cache.Key(req.Query, req.Filters, req.NResults, req.MinSimilarity)

	if h.cache != nil {
		var cached retrieveResponse
		if hit, err := h.cache.GetRetrieval(c.Context(), cacheKey, &cached); err == nil && hit {
			cached.RequestID = requestID
			return c.JSON(cached)
		}
	}

	results, err := h.retriever.Retrieve(c.Context(), req.Query, retriever.Options{
		NResults:      req.NResults,
		Filters:       vector.Filter(req.Filters),
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		logger.Error("Retrieval failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return fiber.NewError(fiber.StatusInternalServerError, "retrieval failed")
	}

	resp := retrieveResponse{
		RequestID: requestID,
		Results:   toPayload(results),
		LatencyMS: int(time.Since(start).Milliseconds()),
	}

	if h.cache != nil {
		if err := h.cache.SetRetrieval(c.Context(), cacheKey, resp); err != nil {
			logger.Warn("Failed to cache retrieval response", zap.Error(err))
		}
	}

	return c.JSON(resp)
}

func (h *RetrieveHandler) HandleContext(c *fiber.Ctx) error {
	var req contextRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	results, err := h.retriever.Retrieve(c.Context(), req.Query, retriever.Options{
		NResults:      req.NResults,
		Filters:       vector.Filter(req.Filters),
		MinSimilarity: req.MinSimilarity,
	})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "retrieval failed")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = h.maxContextTokens
	}

	packed := retriever.BuildContext(results, maxTokens, req.IncludeCitations, "")

	return c.JSON(fiber.Map{
		"context": packed,
		"sources": retriever.RelevantSources(results, true),
		"chunks":  len(results),
	})
}

func toPayload(results []retriever.Result) []resultPayload {
	payload := make([]resultPayload, 0, len(results))
	for _, r := range results {
		payload = append(payload, resultPayload{
			ChunkID:    r.ChunkID,
			Text:       r.Text,
			Distance:   r.Distance,
			Similarity: r.Similarity(),
			Rank:       r.Rank,
			Section:    r.Section,
			SourceFile: r.SourceFile,
			Metadata:   r.Extra,
		})
	}
	return payload
}
