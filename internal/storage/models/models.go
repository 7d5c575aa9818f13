package models

import "time"

type Document struct {
	ID           string
	SourcePath   string
	Title        string
	DocumentType string
	ModelType    string
	Year         int
	ContentHash  string
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DocumentChunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	Section    string
	CharStart  int
	CharEnd    int
	CreatedAt  time.Time
}

type IngestionRun struct {
	ID                 string
	DocumentsProcessed int
	ChunksCreated      int
	ChunksStored       int
	ErrorCount         int
	DurationMS         int
	StartedAt          time.Time
}
