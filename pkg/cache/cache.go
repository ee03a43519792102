// Package cache is a small in-memory TTL cache. The auth layer uses it
// to hold join tokens until shortly before they expire.
package cache

import (
	"sync"
	"time"
)

type item struct {
	value     any
	expiresAt time.Time
}

func (it *item) expired(now time.Time) bool {
	return now.After(it.expiresAt)
}

// Cache is a thread-safe map with per-entry expiry. A background
// goroutine sweeps expired entries; call Stop when done with the cache.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*item
	defaultTTL time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func NewCache(defaultTTL time.Duration) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	sweep := defaultTTL / 2
	if sweep < time.Second {
		sweep = time.Second
	}
	go c.sweepLoop(sweep)
	return c
}

// Get returns the live value for a key. Expired entries read as
// missing even before the sweeper removes them.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return nil, false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &item{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item)
}

// Size counts entries, expired or not.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, it := range c.items {
				if it.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Stop ends the sweeper goroutine. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
