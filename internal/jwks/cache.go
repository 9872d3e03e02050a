// Package jwks keeps a locally cached copy of a remote JSON Web Key Set.
//
// A Cache owns one key-store URL. Prepare downloads the set on first use and
// again once it is older than the TTL; GetKey serves lookups by kid from the
// last complete download. The set is always replaced as a whole, never merged.
// Reads and the staleness check take the mutex; the download itself runs
// outside of it, and concurrent refreshes collapse into a single request.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/dropDatabas3/epicauth/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a downloaded set is served before it is refreshed.
const DefaultTTL = 3600 * time.Second

var (
	// ErrKeyNotFound is returned by GetKey when no download ever succeeded.
	ErrKeyNotFound = errors.New("jwks: key set has not been prepared")

	// ErrUnknownKeyID is returned when the current set has no key with the kid.
	ErrUnknownKeyID = errors.New("jwks: unknown key id")

	// ErrKeyStoreUnavailable wraps every failed download. The previous set
	// stays in place.
	ErrKeyStoreUnavailable = errors.New("jwks: key store unavailable")
)

// Key is one entry of the "keys" array. N and E are base64url encoded.
type Key struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

type document struct {
	Keys []Key `json:"keys"`
}

// KeySet is a point-in-time copy of the cache contents.
type KeySet struct {
	SourceURL string
	Keys      []Key
	FetchedAt time.Time
	ETag      string
}

// Option configures a Cache.
type Option func(*Cache)

// WithFetcher replaces the default HTTP fetcher.
func WithFetcher(f Fetcher) Option { return func(c *Cache) { c.fetcher = f } }

// WithTTL sets the expiration window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for staleness.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithSource names the cache in logs and metrics (e.g. "auth", "connect").
func WithSource(name string) Option { return func(c *Cache) { c.source = name } }

type Cache struct {
	url     string
	source  string
	ttl     time.Duration
	now     func() time.Time
	fetcher Fetcher

	mu        sync.RWMutex
	keys      []Key
	fetched   bool
	fetchedAt time.Time
	etag      string

	// sf evita descargas paralelas del mismo documento
	sf singleflight.Group
}

// New creates an empty cache for url. Nothing is downloaded until Prepare.
func New(url string, opts ...Option) *Cache {
	c := &Cache{
		url:    url,
		source: url,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(DefaultFetchTimeout)
	}
	return c
}

// URL returns the key-store endpoint.
func (c *Cache) URL() string { return c.url }

// Prepare makes sure the cache holds a set that is not stale, downloading it
// when needed. It blocks until that download finishes.
func (c *Cache) Prepare(ctx context.Context) error {
	if !c.stale() {
		return nil
	}
	_, err, _ := c.sf.Do(c.url, func() (any, error) {
		// someone else may have finished a refresh while we were queued
		if !c.stale() {
			return nil, nil
		}
		// one caller giving up must not fail the others sharing this fetch;
		// the fetcher timeout still bounds it
		return nil, c.download(context.WithoutCancel(ctx))
	})
	return err
}

// GetKey returns the key with the given kid from the current set.
func (c *Cache) GetKey(kid string) (Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fetched {
		return Key{}, ErrKeyNotFound
	}
	for _, k := range c.keys {
		if k.Kid == kid {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
}

// Invalidate marks the set as expired so the next Prepare downloads it again.
// The keys stay usable until that download succeeds.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Snapshot returns a copy of the current set.
func (c *Cache) Snapshot() KeySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, len(c.keys))
	copy(keys, c.keys)
	return KeySet{SourceURL: c.url, Keys: keys, FetchedAt: c.fetchedAt, ETag: c.etag}
}

func (c *Cache) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// first download
	if !c.fetched {
		return true
	}
	// expiration refresh
	return c.now().Sub(c.fetchedAt) > c.ttl
}

func (c *Cache) download(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("jwks"), logger.String("source", c.source), logger.URL(c.url))

	c.mu.RLock()
	etag := ""
	if c.fetched {
		etag = c.etag
	}
	c.mu.RUnlock()

	log.Info("downloading key store")
	start := time.Now()

	resp, err := c.fetcher.Get(ctx, c.url, etag)
	if err != nil {
		metrics.ObserveFetch(c.source, "error", time.Since(start))
		log.Warn("key store download failed", logger.Err(err))
		return fmt.Errorf("%w: %w", ErrKeyStoreUnavailable, err)
	}

	if resp.Status == http.StatusNotModified && etag != "" {
		c.mu.Lock()
		c.fetchedAt = c.now()
		c.mu.Unlock()
		metrics.ObserveFetch(c.source, "not_modified", time.Since(start))
		log.Info("key store not modified")
		return nil
	}

	if resp.Status/100 != 2 {
		metrics.ObserveFetch(c.source, "error", time.Since(start))
		log.Warn("key store returned an error status", logger.Status(resp.Status))
		return fmt.Errorf("%w: http %d", ErrKeyStoreUnavailable, resp.Status)
	}

	var doc document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		metrics.ObserveFetch(c.source, "error", time.Since(start))
		log.Warn("key store document is not valid json", logger.Err(err))
		return fmt.Errorf("%w: decode document: %w", ErrKeyStoreUnavailable, err)
	}
	if doc.Keys == nil {
		metrics.ObserveFetch(c.source, "error", time.Since(start))
		log.Warn("key store document has no keys array")
		return fmt.Errorf("%w: document has no keys array", ErrKeyStoreUnavailable)
	}

	c.mu.Lock()
	c.keys = doc.Keys
	c.fetched = true
	c.fetchedAt = c.now()
	c.etag = resp.ETag
	c.mu.Unlock()

	metrics.ObserveFetch(c.source, "ok", time.Since(start))
	metrics.JWKSKeys.WithLabelValues(c.source).Set(float64(len(doc.Keys)))
	log.Info("key store downloaded", logger.Count(len(doc.Keys)))
	return nil
}
