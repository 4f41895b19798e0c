// Package cache keeps recently fetched pages so re-processing a link within
// the TTL does not hit the remote site again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ppiankov/alma/internal/model"
)

// Cache is a byte store with per-entry expiry
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from a URL
func Key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "alma:page:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg, or nil when caching is disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.TTL, cleanupInterval(cfg.TTL))
	}
	return NewLayeredCache(cfg.TTL, cfg.Dir, cfg.TTL)
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 10 * time.Minute
	}
	return ttl * 2
}

// PageCache stores fetched pages as JSON
type PageCache struct {
	backend Cache
	ttl     time.Duration
}

// NewPageCache wraps backend. A nil backend yields a cache that never hits.
func NewPageCache(backend Cache, ttl time.Duration) *PageCache {
	return &PageCache{backend: backend, ttl: ttl}
}

// Get returns the cached page for url
func (c *PageCache) Get(url string) (*model.Page, bool) {
	if c == nil || c.backend == nil {
		return nil, false
	}
	data, ok := c.backend.Get(Key(url))
	if !ok {
		return nil, false
	}
	var page model.Page
	if err := json.Unmarshal(data, &page); err != nil {
		_ = c.backend.Delete(Key(url))
		return nil, false
	}
	page.FetchMeta.FromCache = true
	return &page, true
}

// Put caches page under url
func (c *PageCache) Put(url string, page *model.Page) error {
	if c == nil || c.backend == nil || page == nil {
		return nil
	}
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.backend.Set(Key(url), data, c.ttl)
}
