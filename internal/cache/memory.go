package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory crea un cliente de cache en memoria. Expired entries are purged
// every minute.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (c *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := c.c.Get(prefixed(c.prefix, key))
	if !ok {
		c.misses.Add(1)
		return "", ErrNotFound
	}
	c.hits.Add(1)
	s, _ := v.(string)
	return s, nil
}

func (c *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.c.Set(prefixed(c.prefix, key), value, ttl)
	return nil
}

func (c *memoryClient) Delete(_ context.Context, key string) error {
	c.c.Delete(prefixed(c.prefix, key))
	return nil
}

func (c *memoryClient) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.c.Get(prefixed(c.prefix, key))
	return ok, nil
}

func (c *memoryClient) Ping(context.Context) error { return nil }

func (c *memoryClient) Close() error {
	c.c.Flush()
	return nil
}

func (c *memoryClient) Stats(context.Context) (Stats, error) {
	c.c.DeleteExpired()
	return Stats{
		Driver: "memory",
		Keys:   int64(c.c.ItemCount()),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}, nil
}
