// Package redis provides a Redis implementation of the SnapshotCache port.
//
// Each prefix maps to one key, prefix:snapshot:<name>, holding a JSON
// envelope with the covered block range and the cached content. Entries
// expire after the configured TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/multiread/internal/pkg/cachename"
	"github.com/archon-research/multiread/internal/ports/outbound"
)

// Compile-time check that SnapshotCache implements outbound.SnapshotCache
var _ outbound.SnapshotCache = (*SnapshotCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached data lives before expiring. 0 keeps entries forever.
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       7 * 24 * time.Hour,
		KeyPrefix: "multiread",
	}
}

// SnapshotCache is a Redis implementation of the outbound.SnapshotCache port.
type SnapshotCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

type envelope struct {
	Start   int64           `json:"start"`
	End     int64           `json:"end"`
	Content json.RawMessage `json:"content"`
}

// NewSnapshotCache creates a new Redis snapshot cache.
func NewSnapshotCache(cfg Config, logger *slog.Logger) (*SnapshotCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("ttl must be >= 0, got %s", cfg.TTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &SnapshotCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-snapshot-cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format keyPrefix:snapshot:prefix
func (c *SnapshotCache) key(prefix string) string {
	if c.keyPrefix == "" {
		return "snapshot:" + prefix
	}
	return fmt.Sprintf("%s:snapshot:%s", c.keyPrefix, prefix)
}

// Find returns the entry stored under prefix, or nil, nil when absent or expired.
func (c *SnapshotCache) Find(ctx context.Context, prefix string) (*outbound.CacheEntry, error) {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, c.key(prefix)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", prefix, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", prefix, err)
	}

	c.logger.Debug("cache hit", "prefix", prefix, "start", env.Start, "end", env.End)
	return &outbound.CacheEntry{Content: env.Content, Start: env.Start, End: env.End}, nil
}

// Store saves content under prefix, replacing any previous entry.
func (c *SnapshotCache) Store(ctx context.Context, prefix string, start, end int64, content json.RawMessage) error {
	if err := cachename.ValidatePrefix(prefix); err != nil {
		return err
	}

	data, err := json.Marshal(envelope{Start: start, End: end, Content: content})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", prefix, err)
	}

	if err := c.client.Set(ctx, c.key(prefix), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot %s: %w", prefix, err)
	}
	return nil
}
