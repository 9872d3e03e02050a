// Package rate limita intentos de login por cliente con ventanas fijas.
package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func windowKey(prefix, key string, winStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

func result(hits, max int64, retry time.Duration) Result {
	res := Result{Allowed: hits <= max, CurrentHits: hits, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = retry
	}
	return res
}

// RedisLimiter: fixed window sencillo (INCR + EXPIRE), compartido entre réplicas.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.window)
	redisKey := windowKey(l.prefix, key, winStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// resto de la ventana
	retry := winStart.Add(l.window).Sub(l.now().UTC())
	return result(incr.Val(), l.max, retry.Round(time.Second)), nil
}

// MemoryLimiter is the single-process variant over go-cache.
type MemoryLimiter struct {
	mu     sync.Mutex
	hits   *gocache.Cache
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		hits:   gocache.New(window, window),
		prefix: "rl:",
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.window)
	k := windowKey(l.prefix, key, winStart)

	l.mu.Lock()
	var hits int64 = 1
	if err := l.hits.Add(k, hits, l.window); err != nil {
		hits, _ = l.hits.IncrementInt64(k, 1)
	}
	l.mu.Unlock()

	retry := winStart.Add(l.window).Sub(l.now().UTC())
	return result(hits, l.max, retry.Round(time.Second)), nil
}
