package llm

import (
	"sync"
	"time"
)

// cacheEntry represents one cached extraction candidate.
type cacheEntry struct {
	expiry    time.Time
	candidate Candidate
}

// extractionCache provides thread-safe caching of extraction results, keyed
// by a hash of the raw input. Retried deliveries of the same message skip
// the model call entirely.
type extractionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

// newExtractionCache creates a new cache with the specified TTL.
func newExtractionCache(ttl time.Duration) *extractionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &extractionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a candidate from the cache if it exists and hasn't expired.
func (c *extractionCache) get(key string) (Candidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return Candidate{}, false
	}
	return entry.candidate, true
}

// set stores a candidate in the cache.
func (c *extractionCache) set(key string, candidate Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		candidate: candidate,
		expiry:    time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *extractionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *extractionCache) Close() {
	close(c.stopCh)
}
