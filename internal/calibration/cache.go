package calibration

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aprep/backend/internal/models"
)

const paramsKeyPrefix = "irt:params:"

// ParamsCache is a Redis-backed snapshot cache for item parameters. Reads on
// serving paths may come from a possibly-stale snapshot without touching the
// parameter store; writes refresh the snapshot after persistence succeeds.
//
// A nil *ParamsCache is valid and always misses, so callers never need
// to branch on whether caching is configured.
type ParamsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewParamsCache(client *redis.Client, ttl time.Duration) *ParamsCache {
	return &ParamsCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot for an item, or (nil, false) on a miss.
// Cache errors are logged and treated as misses.
func (c *ParamsCache) Get(ctx context.Context, itemID string) (*models.IRTParameters, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, paramsKeyPrefix+itemID).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("WARN: params cache get %s: %v", itemID, err)
		return nil, false
	}

	var p models.IRTParameters
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("WARN: params cache decode %s: %v", itemID, err)
		return nil, false
	}
	return &p, true
}

// Set refreshes the snapshot for an item. Failures are logged, never
// propagated: the store remains the source of truth.
func (c *ParamsCache) Set(ctx context.Context, p *models.IRTParameters) {
	if c == nil || p == nil {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("WARN: params cache encode %s: %v", p.ItemID, err)
		return
	}
	if err := c.client.Set(ctx, paramsKeyPrefix+p.ItemID, data, c.ttl).Err(); err != nil {
		log.Printf("WARN: params cache set %s: %v", p.ItemID, err)
	}
}
