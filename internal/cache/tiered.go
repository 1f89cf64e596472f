// Package cache provides the two-tier hot/warm cache used in front of device
// commands.
package cache

import (
	"sync"
	"time"
)

// Tier identifies where a lookup was served from.
type Tier int

const (
	TierNone Tier = iota
	TierHot
	TierWarm
)

type entry[V any] struct {
	value    V
	storedAt time.Time
	deadline time.Time
	seq      uint64
}

// Stats holds cumulative counters since construction.
type Stats struct {
	L1Hits    uint64 `json:"l1_hits"`
	L2Hits    uint64 `json:"l2_hits"`
	Misses    uint64 `json:"misses"`
	Demotions uint64 `json:"demotions"`
	Evictions uint64 `json:"evictions"`
	L1Entries int    `json:"l1_entries"`
	L2Entries int    `json:"l2_entries"`
}

// Requests returns the total number of lookups.
func (s Stats) Requests() uint64 {
	return s.L1Hits + s.L2Hits + s.Misses
}

// HitRate returns the fraction of lookups served from either tier.
func (s Stats) HitRate() float64 {
	total := s.Requests()
	if total == 0 {
		return 0
	}

	return float64(s.L1Hits+s.L2Hits) / float64(total)
}

// Config sizes the tiers. The warm tier TTL is twice TTL.
type Config struct {
	L1Size int
	L2Size int
	TTL    time.Duration
}

// Tiered is a two-level cache. Tier-1 is small and holds entries for TTL,
// tier-2 is larger and holds entries for 2×TTL measured from the time the
// value was stored. Entries overflowing tier-1 are demoted rather than
// dropped; entries overflowing tier-2 are dropped. Expired entries are removed
// when they are looked up.
type Tiered[V any] struct {
	mu     sync.Mutex
	l1     map[string]*entry[V]
	l2     map[string]*entry[V]
	l1Size int
	l2Size int
	ttl    time.Duration
	now    func() time.Time
	seq    uint64
	stats  Stats
}

// Option configures a Tiered cache.
type Option func(*tieredOptions)

type tieredOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *tieredOptions) {
		o.now = now
	}
}

// NewTiered creates a cache. Sizes below one are raised to one.
func NewTiered[V any](cfg Config, opts ...Option) *Tiered[V] {
	o := tieredOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	l1Size := max(cfg.L1Size, 1)
	l2Size := max(cfg.L2Size, 1)

	return &Tiered[V]{
		l1:     make(map[string]*entry[V], l1Size),
		l2:     make(map[string]*entry[V], l2Size),
		l1Size: l1Size,
		l2Size: l2Size,
		ttl:    cfg.TTL,
		now:    o.now,
	}
}

// Get returns the value for key if it is still fresh in either tier.
func (c *Tiered[V]) Get(key string) (V, bool) {
	v, tier := c.Lookup(key)
	return v, tier != TierNone
}

// Lookup is Get that also reports which tier served the value. A tier-2 hit
// promotes the entry to tier-1.
func (c *Tiered[V]) Lookup(key string) (V, Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if e, ok := c.l1[key]; ok {
		if now.Before(e.deadline) {
			c.stats.L1Hits++
			return e.value, TierHot
		}
		delete(c.l1, key)
	}

	if e, ok := c.l2[key]; ok {
		if now.Before(e.deadline) {
			delete(c.l2, key)
			c.insertHot(key, e)
			c.stats.L2Hits++
			return e.value, TierWarm
		}
		delete(c.l2, key)
	}

	c.stats.Misses++
	var zero V

	return zero, TierNone
}

// Put stores value in tier-1, replacing any previous entry for key.
func (c *Tiered[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.seq++
	delete(c.l2, key)
	c.insertHot(key, &entry[V]{
		value:    value,
		storedAt: now,
		deadline: now.Add(c.ttl),
		seq:      c.seq,
	})
}

// Delete removes key from both tiers.
func (c *Tiered[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.l1, key)
	delete(c.l2, key)
}

// Stats returns a snapshot of the counters.
func (c *Tiered[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.L1Entries = len(c.l1)
	s.L2Entries = len(c.l2)

	return s
}

// insertHot must be called with mu held.
func (c *Tiered[V]) insertHot(key string, e *entry[V]) {
	c.l1[key] = e
	if len(c.l1) <= c.l1Size {
		return
	}

	oldestKey, oldest := oldestEntry(c.l1, key)
	delete(c.l1, oldestKey)
	// A demoted entry keeps its age; only the horizon widens to 2×TTL
	oldest.deadline = oldest.storedAt.Add(2 * c.ttl)
	c.l2[oldestKey] = oldest
	c.stats.Demotions++

	if len(c.l2) > c.l2Size {
		dropKey, _ := oldestEntry(c.l2, "")
		delete(c.l2, dropKey)
		c.stats.Evictions++
	}
}

// oldestEntry orders by stored time, then insertion order. skip is never
// chosen so that a freshly inserted or promoted entry cannot bounce straight
// back out.
func oldestEntry[V any](m map[string]*entry[V], skip string) (string, *entry[V]) {
	var (
		oldestKey string
		oldest    *entry[V]
	)
	for k, e := range m {
		if k == skip {
			continue
		}
		if oldest == nil || e.storedAt.Before(oldest.storedAt) ||
			(e.storedAt.Equal(oldest.storedAt) && e.seq < oldest.seq) {
			oldestKey, oldest = k, e
		}
	}

	return oldestKey, oldest
}
