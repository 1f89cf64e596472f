package adb

import (
	"sync"
	"time"
)

type cachedOutput struct {
	output   string
	storedAt time.Time
}

// CommandCache is a flat output cache keyed by command text and device, with
// a single TTL. It lets a dispatch round avoid re-issuing identical queries.
type CommandCache struct {
	mu      sync.Mutex
	entries map[string]cachedOutput
	ttl     time.Duration
	now     func() time.Time
}

func NewCommandCache(ttl time.Duration, now func() time.Time) *CommandCache {
	if now == nil {
		now = time.Now
	}

	return &CommandCache{
		entries: make(map[string]cachedOutput),
		ttl:     ttl,
		now:     now,
	}
}

func commandCacheKey(command, device string) string {
	return command + "_" + device
}

func (c *CommandCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}

	return e.output, true
}

func (c *CommandCache) Put(key, output string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedOutput{output: output, storedAt: c.now()}
}

// Purge drops expired entries and returns how many were removed.
func (c *CommandCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}

	return removed
}

func (c *CommandCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Clear drops every entry.
func (c *CommandCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
