// Package ingestion walks corpus directories, chunks every matching file
// and loads the chunks into the vector store. The run is best-effort per
// file: one bad document never aborts the batch.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/chunker"
	"github.com/regdoc-agent/backend/internal/metrics"
	"github.com/regdoc-agent/backend/internal/storage/models"
	"github.com/regdoc-agent/backend/internal/storage/sqlite"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/utils"
)

// Stats aggregates the outcome of one ingestion run.
type Stats struct {
	DocumentsProcessed int
	DocumentsSkipped   int
	ChunksCreated      int
	ChunksStored       int
	Errors             []string
}

type Pipeline struct {
	db      *sqlite.Client
	store   vector.Store
	chunker *chunker.Chunker
	dirs    []string
}

func NewPipeline(db *sqlite.Client, store vector.Store, ch *chunker.Chunker, dirs []string) *Pipeline {
	return &Pipeline{
		db:      db,
		store:   store,
		chunker: ch,
		dirs:    dirs,
	}
}

// Run ingests every matching file under the configured directories into
// the vector store's single collection. A missing corpus directory is a
// configuration error and fails the run; per-file failures are recorded
// in the stats and skipped.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	if err := p.store.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	for _, dir := range p.dirs {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("corpus directory unavailable: %w", err)
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !supportedFile(path) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := p.processFile(ctx, path, stats); err != nil {
				msg := fmt.Sprintf("%s: %v", path, err)
				stats.Errors = append(stats.Errors, msg)
				metrics.IngestionErrors.Inc()
				logger.Error("Failed to ingest document",
					zap.String("path", path),
					zap.Error(err),
				)
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("failed to walk corpus directory %s: %w", dir, err)
		}
	}

	if p.db != nil {
		run := &models.IngestionRun{
			ID:                 uuid.New().String(),
			DocumentsProcessed: stats.DocumentsProcessed,
			ChunksCreated:      stats.ChunksCreated,
			ChunksStored:       stats.ChunksStored,
			ErrorCount:         len(stats.Errors),
			DurationMS:         int(time.Since(start).Milliseconds()),
			StartedAt:          start,
		}
		if err := p.db.InsertIngestionRun(run); err != nil {
			logger.Warn("Failed to record ingestion run", zap.Error(err))
		}
	}

	logger.Info("Ingestion run finished",
		zap.Int("documents_processed", stats.DocumentsProcessed),
		zap.Int("documents_skipped", stats.DocumentsSkipped),
		zap.Int("chunks_created", stats.ChunksCreated),
		zap.Int("chunks_stored", stats.ChunksStored),
		zap.Int("errors", len(stats.Errors)),
		zap.Duration("duration", time.Since(start)),
	)

	return stats, nil
}

func (p *Pipeline) processFile(ctx context.Context, path string, stats *Stats) (err error) {
	// One malformed document must never abort the whole run.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing document: %v", r)
		}
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	content := string(raw)
	if isHTMLFile(path) {
		content, err = cleanHTML(content)
		if err != nil {
			return err
		}
	}

	contentHash := utils.HashString(content)
	if p.db != nil {
		stored, err := p.db.GetDocumentHash(path)
		if err != nil {
			logger.Warn("Failed to check document hash", zap.String("path", path), zap.Error(err))
		} else if stored == contentHash {
			logger.Debug("Document unchanged, skipping", zap.String("path", path))
			stats.DocumentsSkipped++
			return nil
		}
	}

	chunks := p.chunker.ChunkDocument(content, path)
	stats.DocumentsProcessed++
	metrics.DocumentsIngested.Inc()
	stats.ChunksCreated += len(chunks)
	if len(chunks) == 0 {
		return nil
	}

	keywords := extractKeywords(content)

	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = toRecord(chunk, keywords)
	}

	if err := p.store.Add(ctx, records); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	stats.ChunksStored += len(records)
	metrics.ChunksStored.Add(float64(len(records)))

	if p.db != nil {
		if err := p.registerDocument(path, contentHash, chunks); err != nil {
			// Registry bookkeeping is secondary to the vector store.
			logger.Warn("Failed to update document registry",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}

	logger.Info("Document ingested",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

func toRecord(chunk chunker.Chunk, keywords []string) vector.Record {
	meta := chunk.Metadata

	extra := make(map[string]string, len(meta.Extra)+2)
	for k, v := range meta.Extra {
		extra[k] = v
	}
	extra["filename"] = meta.Filename
	if len(keywords) > 0 {
		extra["keywords"] = strings.Join(keywords, ",")
	}

	year := 0
	if meta.Year != nil {
		year = *meta.Year
	}

	return vector.Record{
		ChunkID:      chunk.ID,
		Text:         chunk.Text,
		DocumentType: meta.DocumentType,
		ModelType:    meta.ModelType,
		Year:         year,
		Section:      meta.Section,
		SectionLevel: meta.SectionLevel,
		ChunkIndex:   meta.ChunkIndex,
		CharStart:    meta.CharStart,
		CharEnd:      meta.CharEnd,
		SourceFile:   chunk.Metadata.SourceFile,
		Extra:        extra,
	}
}

func (p *Pipeline) registerDocument(path, contentHash string, chunks []chunker.Chunk) error {
	now := time.Now()
	meta := chunks[0].Metadata

	year := 0
	if meta.Year != nil {
		year = *meta.Year
	}

	docID := utils.HashString(path)[:16]
	doc := &models.Document{
		ID:           docID,
		SourcePath:   path,
		Title:        meta.Section,
		DocumentType: meta.DocumentType,
		ModelType:    meta.ModelType,
		Year:         year,
		ContentHash:  contentHash,
		ChunkCount:   len(chunks),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.db.UpsertDocument(doc); err != nil {
		return err
	}

	rows := make([]*models.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		rows[i] = &models.DocumentChunk{
			ID:         chunk.ID,
			DocID:      docID,
			ChunkIndex: chunk.Metadata.ChunkIndex,
			Section:    chunk.Metadata.Section,
			CharStart:  chunk.Metadata.CharStart,
			CharEnd:    chunk.Metadata.CharEnd,
			CreatedAt:  now,
		}
	}
	return p.db.ReplaceChunks(docID, rows)
}

// ClearCollection drops and recreates the collection so a rebuild starts
// from nothing. Destructive; callers opt in explicitly.
func (p *Pipeline) ClearCollection(ctx context.Context) error {
	if err := p.store.DropCollection(ctx); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := p.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	if p.db != nil {
		if err := p.db.ClearDocuments(); err != nil {
			return fmt.Errorf("failed to clear document registry: %w", err)
		}
	}
	logger.Warn("Collection cleared for rebuild")
	return nil
}

// QuerySample runs a smoke-test query against the freshly loaded
// collection to validate the pipeline end to end.
func (p *Pipeline) QuerySample(ctx context.Context, query string, n int) ([]vector.Hit, error) {
	if n <= 0 {
		n = 3
	}
	hits, err := p.store.Query(ctx, query, n, nil)
	if err != nil {
		return nil, fmt.Errorf("sample query failed: %w", err)
	}
	logger.Info("Sample query executed",
		zap.String("query", query),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

func supportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".html", ".htm":
		return true
	default:
		return false
	}
}

func isHTMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}
