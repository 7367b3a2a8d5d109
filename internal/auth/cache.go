package auth

import (
	"sync"
	"time"
)

type cacheEntry struct {
	validation TokenValidation
	expiresAt  time.Time
}

// TokenCache caches successful token validations for a fixed TTL. Failed
// validations are never cached so a revoked key cannot be resurrected by a
// stale entry.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTokenCache creates a cache with the given entry TTL. A background
// sweeper removes expired entries so unused tokens do not pin memory until
// their next lookup. Close stops the sweeper.
func NewTokenCache(ttl time.Duration) *TokenCache {
	c := &TokenCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanupLoop()
	}
	return c
}

func (c *TokenCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *TokenCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for token, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, token)
		}
	}
}

// Close stops the background sweeper.
func (c *TokenCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns the cached validation for the token, if present and fresh.
// Expired entries are removed on access.
func (c *TokenCache) Get(token string) (TokenValidation, bool) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return TokenValidation{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		if e, still := c.entries[token]; still && c.now().After(e.expiresAt) {
			delete(c.entries, token)
		}
		c.mu.Unlock()
		return TokenValidation{}, false
	}
	return entry.validation, true
}

// Put stores a successful validation. Invalid results are ignored.
func (c *TokenCache) Put(token string, v TokenValidation) {
	if !v.Valid {
		return
	}
	c.mu.Lock()
	c.entries[token] = cacheEntry{validation: v, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Clear drops all cached entries.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached entries, including any not yet evicted
// expired ones.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
