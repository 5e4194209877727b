package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/priyank/cloudvault/internal/models"
)

// CacheTTL is the time-to-live for cached per-owner stats.
const CacheTTL = 5 * time.Minute

// StatsCache keeps per-owner aggregate stats in Redis so dashboard reads
// skip the database. It is always reconciled from the ledger, never the
// other way around: writes invalidate, reads repopulate.
type StatsCache struct {
	client *redis.Client
}

// NewStatsCache connects to Redis and verifies the connection.
func NewStatsCache(addr, password string, db int) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &StatsCache{client: client}, nil
}

// Close closes the Redis connection.
func (c *StatsCache) Close() error {
	return c.client.Close()
}

func statsKey(ownerID string) string {
	return fmt.Sprintf("stats:%s", ownerID)
}

// GetStats returns the cached aggregate, or nil on a cache miss.
func (c *StatsCache) GetStats(ctx context.Context, ownerID string) (*models.UserStorageStats, error) {
	ctx, span := tracer.Start(ctx, "redis.get_stats",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	data, err := c.client.Get(ctx, statsKey(ownerID)).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var stats models.UserStorageStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached stats: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &stats, nil
}

// SetStats stores the aggregate with the configured TTL.
func (c *StatsCache) SetStats(ctx context.Context, stats *models.UserStorageStats) error {
	ctx, span := tracer.Start(ctx, "redis.set_stats",
		trace.WithAttributes(attribute.String("owner_id", stats.OwnerID)),
	)
	defer span.End()

	data, err := json.Marshal(stats)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, statsKey(stats.OwnerID), data, CacheTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

// Invalidate drops the owner's cached aggregate.
func (c *StatsCache) Invalidate(ctx context.Context, ownerID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_stats",
		trace.WithAttributes(attribute.String("owner_id", ownerID)),
	)
	defer span.End()

	if err := c.client.Del(ctx, statsKey(ownerID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return nil
}
