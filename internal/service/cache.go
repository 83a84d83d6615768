package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/farm-market-api/internal/dto"
)

const productCacheTTL = 60 * time.Second

// productCache holds product detail responses in Redis. A nil client turns
// every call into a no-op. Anything that changes a product's row, stock
// included, must evict its entry.
type productCache struct {
	client *redis.Client
}

func productCacheKey(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

func (c productCache) get(ctx context.Context, id int64) (*dto.ProductResponse, bool) {
	if c.client == nil {
		return nil, false
	}
	cached, err := c.client.Get(ctx, productCacheKey(id)).Result()
	if err != nil {
		return nil, false
	}
	var resp dto.ProductResponse
	if json.Unmarshal([]byte(cached), &resp) != nil {
		return nil, false
	}
	return &resp, true
}

func (c productCache) set(ctx context.Context, resp dto.ProductResponse) {
	if c.client == nil {
		return
	}
	if data, err := json.Marshal(resp); err == nil {
		c.client.Set(ctx, productCacheKey(resp.ID), data, productCacheTTL)
	}
}

func (c productCache) evict(ctx context.Context, id int64) {
	if c.client != nil {
		c.client.Del(ctx, productCacheKey(id))
	}
}
