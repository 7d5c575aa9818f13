package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/storage/models"
	"github.com/regdoc-agent/backend/pkg/logger"
)

// Client is the document registry: which files are ingested, their content
// hashes for change detection, and ingestion run history. The vector store
// remains the source of truth for chunk text and embeddings.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source_path TEXT UNIQUE NOT NULL,
		title TEXT,
		document_type TEXT,
		model_type TEXT,
		year INTEGER,
		content_hash TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);
	CREATE INDEX IF NOT EXISTS idx_documents_year ON documents(year);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		section TEXT,
		char_start INTEGER NOT NULL,
		char_end INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS ingestion_runs (
		id TEXT PRIMARY KEY,
		documents_processed INTEGER NOT NULL,
		chunks_created INTEGER NOT NULL,
		chunks_stored INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertDocument inserts or replaces a document row keyed by source path.
func (c *Client) UpsertDocument(doc *models.Document) error {
	_, err := c.db.Exec(`
		INSERT INTO documents
			(id, source_path, title, document_type, model_type, year, content_hash, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_path) DO UPDATE SET
			title = excluded.title,
			document_type = excluded.document_type,
			model_type = excluded.model_type,
			year = excluded.year,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at`,
		doc.ID, doc.SourcePath, doc.Title, doc.DocumentType, doc.ModelType,
		doc.Year, doc.ContentHash, doc.ChunkCount,
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// ReplaceChunks deletes a document's chunk rows and inserts the new set in
// one transaction, keeping the registry consistent with re-ingestion.
func (c *Client) ReplaceChunks(docID string, chunks []*models.DocumentChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM document_chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete stale chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO document_chunks (id, doc_id, chunk_index, section, char_start, char_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.Exec(chunk.ID, chunk.DocID, chunk.ChunkIndex,
			chunk.Section, chunk.CharStart, chunk.CharEnd, chunk.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocumentHash returns the stored content hash for a source path, or
// empty when the document is unknown.
func (c *Client) GetDocumentHash(sourcePath string) (string, error) {
	var hash string
	err := c.db.QueryRow(
		`SELECT content_hash FROM documents WHERE source_path = ?`, sourcePath,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query document hash: %w", err)
	}
	return hash, nil
}

func (c *Client) InsertIngestionRun(run *models.IngestionRun) error {
	_, err := c.db.Exec(`
		INSERT INTO ingestion_runs
			(id, documents_processed, chunks_created, chunks_stored, error_count, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DocumentsProcessed, run.ChunksCreated, run.ChunksStored,
		run.ErrorCount, run.DurationMS, run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion run: %w", err)
	}
	return nil
}

// ClearDocuments wipes the registry. Used together with the vector store's
// collection drop during explicit rebuilds.
func (c *Client) ClearDocuments() error {
	if _, err := c.db.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return nil
}

// ListDocuments returns every registered document ordered by source path.
func (c *Client) ListDocuments() ([]*models.Document, error) {
	rows, err := c.db.Query(`
		SELECT id, source_path, title, document_type, model_type, year, content_hash, chunk_count, created_at, updated_at
		FROM documents ORDER BY source_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		var createdAt, updatedAt int64
		err := rows.Scan(&doc.ID, &doc.SourcePath, &doc.Title, &doc.DocumentType,
			&doc.ModelType, &doc.Year, &doc.ContentHash, &doc.ChunkCount,
			&createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (c *Client) DocumentCount() (int, error) {
	var count int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
