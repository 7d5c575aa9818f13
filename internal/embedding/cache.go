package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/utils"
)

// Cache stores embedding vectors on disk, one JSON file per
// (model, content-hash) pair. The files are not a versioned format; the
// whole directory is safe to delete to force recomputation. Concurrent
// writers racing on the same key write identical content, so no locking
// is needed beyond atomic file replacement by the OS.
type Cache struct {
	dir   string
	model string
}

type cacheEntry struct {
	Model  string    `json:"model"`
	Vector []float32 `json:"vector"`
}

func NewCache(dir, model string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Cache{dir: dir, model: model}, nil
}

func (c *Cache) path(text string) string {
	key := utils.HashString(c.model + ":" + text)
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached vector for a text, if present.
func (c *Cache) Get(text string) ([]float32, bool) {
	data, err := os.ReadFile(c.path(text))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry; recompute rather than fail.
		return nil, false
	}
	if entry.Model != c.model {
		return nil, false
	}
	return entry.Vector, true
}

// Put stores a vector. Write failures are logged and swallowed: the cache
// is a pure optimization and must never fail the embedding call.
func (c *Cache) Put(text string, vector []float32) {
	data, err := json.Marshal(cacheEntry{Model: c.model, Vector: vector})
	if err != nil {
		logger.Warn("Failed to marshal embedding cache entry", zap.Error(err))
		return
	}
	if err := os.WriteFile(c.path(text), data, 0o644); err != nil {
		logger.Warn("Failed to write embedding cache entry",
			zap.String("path", c.path(text)),
			zap.Error(err),
		)
	}
}
