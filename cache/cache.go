package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache is a generic in-memory cache with per-entry expiry and a background
// cleanup loop.
type Cache[T any] struct {
	entries   map[string]entry[T]
	ttl       time.Duration
	mutex     sync.RWMutex
	stopChan  chan struct{}
	cleanupWG sync.WaitGroup
}

// NewCache creates a cache with a default TTL and cleanup interval.
func NewCache[T any](ttl time.Duration, cleanupInterval time.Duration) *Cache[T] {
	c := &Cache[T]{
		entries:  make(map[string]entry[T]),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	c.cleanupWG.Add(1)
	go c.cleanupExpired(cleanupInterval)

	return c
}

// Set stores a value for a given key with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with an explicit TTL overriding the default.
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Get returns the value and whether it was found and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Delete removes a key.
func (c *Cache[T]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

// Len reports the number of entries, including any not yet swept.
func (c *Cache[T]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// cleanupExpired removes expired entries on a timer.
func (c *Cache[T]) cleanupExpired(interval time.Duration) {
	defer c.cleanupWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mutex.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}

// Stop shuts down the background cleanup process.
func (c *Cache[T]) Stop() {
	close(c.stopChan)
	c.cleanupWG.Wait()
}
