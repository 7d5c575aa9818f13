// Package memory provides an ephemeral brute-force vector store with the
// same contract as the Milvus adapter. It backs tests and local runs where
// no Milvus deployment is available; distances are exact, not approximate.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/regdoc-agent/backend/internal/embedding"
	"github.com/regdoc-agent/backend/internal/vector"
)

type storedRecord struct {
	rec vector.Record
	vec []float32
}

// Store keeps records and embeddings in process memory. Adding a record
// with an existing chunk ID overwrites it, matching upsert semantics.
type Store struct {
	embedder embedding.Embedder

	mu      sync.RWMutex
	created bool
	records map[string]storedRecord
	order   []string

	queryCalls int
}

func NewStore(embedder embedding.Embedder) *Store {
	return &Store{
		embedder: embedder,
		records:  make(map[string]storedRecord),
	}
}

func (s *Store) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	return nil
}

func (s *Store) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.RLock()
	created := s.created
	s.mu.RUnlock()
	if !created {
		return vector.ErrCollectionMissing
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		if rec.ChunkID == "" {
			return fmt.Errorf("record %d has an empty chunk ID", i)
		}
		texts[i] = rec.Text
	}

	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed records: %w", err)
	}
	if len(vecs) != len(records) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vecs), len(records))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range records {
		if _, exists := s.records[rec.ChunkID]; !exists {
			s.order = append(s.order, rec.ChunkID)
		}
		s.records[rec.ChunkID] = storedRecord{rec: rec, vec: unit(vecs[i])}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, query string, topK int, filter vector.Filter) ([]vector.Hit, error) {
	s.mu.Lock()
	s.queryCalls++
	created := s.created
	s.mu.Unlock()
	if !created {
		return nil, vector.ErrCollectionMissing
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec = unit(queryVec)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []vector.Hit
	for _, id := range s.order {
		stored := s.records[id]
		if len(filter) > 0 && !filter.Matches(stored.rec) {
			continue
		}
		sim := embedding.Dot(queryVec, stored.vec)
		hits = append(hits, vector.Hit{Record: stored.rec, Distance: 1 - sim})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return 0, vector.ErrCollectionMissing
	}
	return int64(len(s.records)), nil
}

func (s *Store) Peek(ctx context.Context, limit int) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, vector.ErrCollectionMissing
	}

	var out []vector.Record
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.records[id].rec)
	}
	return out, nil
}

func (s *Store) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = false
	s.records = make(map[string]storedRecord)
	s.order = nil
	return nil
}

func (s *Store) Close() error {
	return nil
}

// snapshotEntry pairs a record with its already-normalized embedding so a
// reload needs no embedder round-trip.
type snapshotEntry struct {
	Record vector.Record `json:"record"`
	Vector []float32     `json:"vector"`
}

// Save writes the store contents to a JSON snapshot at path, preserving
// insertion order.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return vector.ErrCollectionMissing
	}

	entries := make([]snapshotEntry, 0, len(s.order))
	for _, id := range s.order {
		stored := s.records[id]
		entries = append(entries, snapshotEntry{Record: stored.rec, Vector: stored.vec})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load replaces the store contents with a snapshot previously written by
// Save. The collection is created if it was not already.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	s.records = make(map[string]storedRecord, len(entries))
	s.order = s.order[:0]
	for _, entry := range entries {
		if _, exists := s.records[entry.Record.ChunkID]; !exists {
			s.order = append(s.order, entry.Record.ChunkID)
		}
		s.records[entry.Record.ChunkID] = storedRecord{rec: entry.Record, vec: entry.Vector}
	}
	return nil
}

// QueryCalls reports how many Query round-trips the store has served.
// Tests use it to verify the retriever's relaxation bound.
func (s *Store) QueryCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCalls
}

func unit(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	embedding.Normalize(out)
	return out
}
