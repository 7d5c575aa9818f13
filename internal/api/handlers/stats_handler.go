package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/regdoc-agent/backend/internal/storage/sqlite"
	"github.com/regdoc-agent/backend/internal/vector"
)

// StatsHandler reports knowledge base size for operational checks.
type StatsHandler struct {
	store vector.Store
	db    *sqlite.Client
}

func NewStatsHandler(store vector.Store, db *sqlite.Client) *StatsHandler {
	return &StatsHandler{store: store, db: db}
}

func (h *StatsHandler) HandleStats(c *fiber.Ctx) error {
	chunkCount, err := h.store.Count(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "vector store unavailable")
	}

	docCount := 0
	if h.db != nil {
		if n, err := h.db.DocumentCount(); err == nil {
			docCount = n
		}
	}

	return c.JSON(fiber.Map{
		"chunks":    chunkCount,
		"documents": docCount,
	})
}

type sourcePayload struct {
	SourcePath   string `json:"source_path"`
	Title        string `json:"title,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	ModelType    string `json:"model_type,omitempty"`
	Year         int    `json:"year,omitempty"`
	ChunkCount   int    `json:"chunk_count"`
	UpdatedAt    int64  `json:"updated_at"`
}

// HandleSources lists the ingested documents from the registry so that
// consumers can see what the knowledge base is grounded on.
func (h *StatsHandler) HandleSources(c *fiber.Ctx) error {
	if h.db == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document registry unavailable")
	}

	docs, err := h.db.ListDocuments()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list sources")
	}

	sources := make([]sourcePayload, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, sourcePayload{
			SourcePath:   doc.SourcePath,
			Title:        doc.Title,
			DocumentType: doc.DocumentType,
			ModelType:    doc.ModelType,
			Year:         doc.Year,
			ChunkCount:   doc.ChunkCount,
			UpdatedAt:    doc.UpdatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"sources": sources,
		"count":   len(sources),
	})
}
