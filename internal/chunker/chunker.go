// Package chunker splits corpus documents into token-budgeted, overlapping
// chunks that respect section and sentence boundaries.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/corpus"
	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/utils"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 50

	// boundaryWindow is the fraction of a chunk window searched for a
	// sentence or paragraph boundary to snap the cut to.
	boundaryWindow = 0.2
)

// boundaryMarkers are the sentence and paragraph breaks a chunk cut may
// snap to. The snap takes whichever boundary sits closest to the window edge.
var boundaryMarkers = []string{". ", ".\n", "! ", "? ", "\n\n"}

// Chunk is the atomic unit of retrieval: a bounded span of a source
// document plus the metadata it inherits.
type Chunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Metadata merges document-level frontmatter fields with chunk-level
// position fields. CharStart/CharEnd are byte offsets into the document
// body (frontmatter excluded), CharEnd exclusive.
type Metadata struct {
	corpus.Metadata

	Section      string
	SectionLevel int
	ChunkIndex   int
	CharStart    int
	CharEnd      int
	SourceFile   string
	Filename     string
}

// Chunker holds the token budgets. All sizes are in approximate tokens;
// character budgets are derived via utils.CharsPerToken.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.chunkOverlap = overlap
		}
	}
}

func WithMinChunkSize(size int) Option {
	return func(c *Chunker) {
		if size >= 0 {
			c.minChunkSize = size
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		minChunkSize: DefaultMinChunkSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	// The overlap step must leave room to advance.
	if c.chunkOverlap >= c.chunkSize {
		c.chunkOverlap = c.chunkSize / 4
	}

	return c
}

// ChunkDocument splits a raw document (optionally preceded by frontmatter)
// into ordered chunks. Chunk IDs are deterministic for a fixed input:
// "{stem}_chunk_{index:03d}" where stem is the source filename without
// extension, so re-chunking an unchanged document yields identical IDs.
func (c *Chunker) ChunkDocument(content, sourcePath string) []Chunk {
	meta, body := corpus.SplitFrontmatter(content, sourcePath)

	if strings.TrimSpace(body) == "" {
		logger.Warn("Document body is empty, no chunks produced",
			zap.String("source_file", sourcePath),
		)
		return nil
	}

	sections := corpus.ExtractSections(body)

	filename := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	var chunks []Chunk
	index := 0
	for _, section := range sections {
		for _, piece := range c.chunkSection(section) {
			chunks = append(chunks, Chunk{
				ID:   chunkID(stem, index),
				Text: piece.text,
				Metadata: Metadata{
					Metadata:     meta,
					Section:      section.Title,
					SectionLevel: section.Level,
					ChunkIndex:   index,
					CharStart:    piece.start,
					CharEnd:      piece.end,
					SourceFile:   sourcePath,
					Filename:     filename,
				},
			})
			index++
		}
	}

	logger.Debug("Document chunked",
		zap.String("source_file", sourcePath),
		zap.Int("sections", len(sections)),
		zap.Int("chunks", len(chunks)),
	)

	return chunks
}

// piece is a chunk-to-be with offsets into the document body.
type piece struct {
	text  string
	start int
	end   int
}

func (c *Chunker) chunkSection(section corpus.Section) []piece {
	text := section.Text

	// Small sections are emitted verbatim.
	if utils.EstimateTokens(text) <= c.chunkSize {
		p, ok := trimmedPiece(text, section.Start)
		if !ok {
			return nil
		}
		return []piece{p}
	}

	chunkChars := utils.TokensToChars(c.chunkSize)
	overlapChars := utils.TokensToChars(c.chunkOverlap)
	minChars := utils.TokensToChars(c.minChunkSize)

	var pieces []piece
	start := 0
	for start < len(text) {
		end := start + chunkChars
		last := false
		if end >= len(text) {
			end = len(text)
			last = true
		} else {
			end = snapToBoundary(text, start, end)
		}

		if p, ok := trimmedPiece(text[start:end], section.Start+start); ok {
			// Undersized trailing chunks are dropped; the first chunk
			// of a section always survives.
			if len(p.text) >= minChars || len(pieces) == 0 {
				pieces = append(pieces, p)
			}
		}

		if last {
			break
		}

		next := end - overlapChars
		if next <= start {
			// Forward progress guard: never re-cover a window.
			next = end
		}
		start = next
	}

	return pieces
}

// snapToBoundary searches the last portion of the window for the sentence
// or paragraph boundary closest to the raw edge and cuts just after it.
// Snapping only ever moves the cut earlier, never past the window.
func snapToBoundary(text string, start, end int) int {
	window := text[start:end]
	searchFrom := len(window) - int(float64(len(window))*boundaryWindow)

	best := -1
	for _, marker := range boundaryMarkers {
		if i := strings.LastIndex(window[searchFrom:], marker); i >= 0 {
			cut := searchFrom + i + len(marker)
			if cut > best {
				best = cut
			}
		}
	}

	if best > 0 {
		return start + best
	}
	return end
}

// trimmedPiece trims surrounding whitespace and keeps offsets pointing at
// the retained text. Returns false for whitespace-only input.
func trimmedPiece(raw string, offset int) (piece, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return piece{}, false
	}
	lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
	return piece{
		text:  trimmed,
		start: offset + lead,
		end:   offset + lead + len(trimmed),
	}, true
}

func chunkID(stem string, index int) string {
	return fmt.Sprintf("%s_chunk_%03d", stem, index)
}
