package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/regdoc-agent/backend/pkg/logger"
	"github.com/regdoc-agent/backend/pkg/utils"
)

// Client caches retrieval responses keyed by a hash of the query and its
// filters. Purely an optimization layer in front of the retriever.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Key builds the cache key for a retrieval request. Every parameter that
// changes the response must participate in the hash.
func Key(query string, filters map[string]any, nResults int, minSimilarity float64) string {
	payload, _ := json.Marshal(filters)
	return "retrieve:" + utils.HashString(fmt.Sprintf("%s|%s|%d|%g", query, payload, nResults, minSimilarity))
}

func (c *Client) SetRetrieval(ctx context.Context, key string, response any) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set retrieval cache: %w", err)
	}

	logger.Debug("Retrieval response cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// GetRetrieval unmarshals a cached response into out. Returns false on a
// miss.
func (c *Client) GetRetrieval(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get retrieval cache: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}
	return true, nil
}
