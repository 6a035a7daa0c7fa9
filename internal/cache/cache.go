package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a bounded TTL cache. Every entry costs 1, so maxCost is an entry count.
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func New(maxCost int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

func (c *Cache) Get(key string) (any, bool) { return c.c.Get(key) }

// Set stores val and blocks until the write is visible to Get.
func (c *Cache) Set(key string, val any) {
	c.c.SetWithTTL(key, val, 1, c.ttl)
	c.c.Wait()
}

func (c *Cache) Del(key string) { c.c.Del(key) }

func (c *Cache) Close() { c.c.Close() }
