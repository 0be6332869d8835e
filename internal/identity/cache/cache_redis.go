package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"identityvault/internal/identity/models"
)

const viewKeyPrefix = "identity:view:"

// RedisCache shares ledger views across server instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, address string) (*models.LedgerIdentity, bool, error) {
	raw, err := c.client.Get(ctx, viewKeyPrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached view: %w", err)
	}
	var view models.LedgerIdentity
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false, fmt.Errorf("decode cached view: %w", err)
	}
	return &view, true, nil
}

func (c *RedisCache) Put(ctx context.Context, view *models.LedgerIdentity) error {
	if view == nil {
		return nil
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	// A zero ttl means no expiry in go-redis.
	return c.client.Set(ctx, viewKeyPrefix+view.Address, raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, address string) error {
	return c.client.Del(ctx, viewKeyPrefix+address).Err()
}
