package cache

import (
	"fmt"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"github.com/dgraph-io/ristretto"
)

var _ application.UpdateCache = (*RistrettoUpdateCache)(nil)

// RistrettoUpdateCache holds finished updates keyed by "PAIR/ID".
type RistrettoUpdateCache struct {
	cache *ristretto.Cache
}

func NewUpdateCache(maxItems int64) (*RistrettoUpdateCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxItems,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create update cache failed: %w", err)
	}
	return &RistrettoUpdateCache{cache: c}, nil
}

func (c *RistrettoUpdateCache) Get(key string) (domain.QuoteUpdate, bool) {
	if v, ok := c.cache.Get(key); ok {
		u, ok := v.(domain.QuoteUpdate)
		return u, ok
	}
	return domain.QuoteUpdate{}, false
}

func (c *RistrettoUpdateCache) Set(key string, u domain.QuoteUpdate) {
	c.cache.Set(key, u, 1)
}

func (c *RistrettoUpdateCache) Close() { c.cache.Close() }
