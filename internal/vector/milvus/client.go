// Package milvus is the production vector store adapter. One collection
// holds the whole knowledge base; document categories are distinguished by
// metadata columns, not separate collections.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/internal/embedding"
	"github.com/regdoc-agent/backend/internal/vector"
	"github.com/regdoc-agent/backend/pkg/logger"
)

var outputFields = []string{
	"chunk_id", "text", "document_type", "model_type", "year",
	"section", "section_level", "chunk_index", "char_start", "char_end",
	"source_file", "extra",
}

type Store struct {
	client         client.Client
	embedder       embedding.Embedder
	collectionName string
	vectorDim      int
}

func NewStore(endpoint, collectionName string, embedder embedding.Embedder) (*Store, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.String("embedding_model", embedder.ModelName()),
	)

	return &Store{
		client:         c,
		embedder:       embedder,
		collectionName: collectionName,
		vectorDim:      embedder.Dimensions(),
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", s.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    fmt.Sprintf("regulatory knowledge base (embedding model %s)", s.embedder.ModelName()),
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(s.vectorDim)},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "document_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "model_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "year",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "section",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "section_level",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "char_start",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "char_end",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "source_file",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "extra",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "2048"},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to build index config: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))

	return nil
}

func (s *Store) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vecs) != len(records) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vecs), len(records))
	}

	chunkIDs := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	docTypes := make([]string, len(records))
	modelTypes := make([]string, len(records))
	years := make([]int64, len(records))
	sections := make([]string, len(records))
	sectionLevels := make([]int64, len(records))
	chunkIndexes := make([]int64, len(records))
	charStarts := make([]int64, len(records))
	charEnds := make([]int64, len(records))
	sourceFiles := make([]string, len(records))
	extras := make([]string, len(records))

	for i, rec := range records {
		chunkIDs[i] = rec.ChunkID
		embeddings[i] = vecs[i]
		docTypes[i] = rec.DocumentType
		modelTypes[i] = rec.ModelType
		years[i] = int64(rec.Year)
		sections[i] = rec.Section
		sectionLevels[i] = int64(rec.SectionLevel)
		chunkIndexes[i] = int64(rec.ChunkIndex)
		charStarts[i] = int64(rec.CharStart)
		charEnds[i] = int64(rec.CharEnd)
		sourceFiles[i] = rec.SourceFile
		extras[i] = marshalExtra(rec.Extra)
	}

	_, err = s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", s.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("document_type", docTypes),
		entity.NewColumnVarChar("model_type", modelTypes),
		entity.NewColumnInt64("year", years),
		entity.NewColumnVarChar("section", sections),
		entity.NewColumnInt64("section_level", sectionLevels),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnInt64("char_start", charStarts),
		entity.NewColumnInt64("char_end", charEnds),
		entity.NewColumnVarChar("source_file", sourceFiles),
		entity.NewColumnVarChar("extra", extras),
	)
	if err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Records inserted into vector store", zap.Int("count", len(records)))

	return nil
}

func (s *Store) Query(ctx context.Context, query string, topK int, filter vector.Filter) ([]vector.Hit, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		filter.Expr(),
		outputFields,
		[]entity.Vector{entity.FloatVector(queryVec)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []vector.Hit
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			rec := recordFromColumns(sr.Fields, i)
			// COSINE scores are similarities; the contract wants
			// distances (1 - sim).
			hits = append(hits, vector.Hit{
				Record:   rec,
				Distance: 1 - sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(hits)),
		zap.String("filter", filter.Expr()),
	)

	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	count, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count: %w", err)
	}
	return count, nil
}

func (s *Store) Peek(ctx context.Context, limit int) ([]vector.Record, error) {
	rs, err := s.client.Query(
		ctx,
		s.collectionName,
		nil,
		`chunk_id != ""`,
		outputFields,
		client.WithLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to peek collection: %w", err)
	}

	n := 0
	if len(rs) > 0 {
		n = rs[0].Len()
	}
	records := make([]vector.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, recordFromColumns(rs, i))
	}
	return records, nil
}

func (s *Store) DropCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil
	}
	if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	logger.Warn("Collection dropped", zap.String("collection", s.collectionName))
	return nil
}

type columnSet interface {
	GetColumn(name string) entity.Column
}

func recordFromColumns(cols columnSet, i int) vector.Record {
	return vector.Record{
		ChunkID:      stringAt(cols, "chunk_id", i),
		Text:         stringAt(cols, "text", i),
		DocumentType: stringAt(cols, "document_type", i),
		ModelType:    stringAt(cols, "model_type", i),
		Year:         intAt(cols, "year", i),
		Section:      stringAt(cols, "section", i),
		SectionLevel: intAt(cols, "section_level", i),
		ChunkIndex:   intAt(cols, "chunk_index", i),
		CharStart:    intAt(cols, "char_start", i),
		CharEnd:      intAt(cols, "char_end", i),
		SourceFile:   stringAt(cols, "source_file", i),
		Extra:        unmarshalExtra(stringAt(cols, "extra", i)),
	}
}

func stringAt(cols columnSet, name string, i int) string {
	col := cols.GetColumn(name)
	if col == nil {
		return ""
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return v
}

func intAt(cols columnSet, name string, i int) int {
	col := cols.GetColumn(name)
	if col == nil {
		return 0
	}
	v, err := col.GetAsInt64(i)
	if err != nil {
		return 0
	}
	return int(v)
}

func marshalExtra(extra map[string]string) string {
	if len(extra) == 0 {
		return "{}"
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalExtra(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil
	}
	return extra
}
