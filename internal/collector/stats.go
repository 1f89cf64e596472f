package collector

import (
	"time"

	"codeberg.org/mutker/droidmetrics/internal/cache"
)

// PerformanceStats is a snapshot of the collector's own behaviour.
type PerformanceStats struct {
	Device              string                  `json:"device"`
	Cache               cache.Stats             `json:"cache"`
	CacheHitRate        float64                 `json:"cache_hit_rate"`
	CommandCacheEntries int                     `json:"command_cache_entries"`
	Latencies           map[string]float64      `json:"latencies_ms"`
	SlowCommands        []string                `json:"slow_commands"`
	Intervals           map[Domain]IntervalInfo `json:"intervals"`
	LastCollected       map[string]time.Time    `json:"last_collected"`
	Workers             int                     `json:"workers"`
}

// Stats reports cache hit rates, the latest latency of each command, the
// commands currently considered slow and the interval table.
func (c *Collector) Stats() PerformanceStats {
	cs := c.cache.Stats()

	latencies := make(map[string]float64)
	for name, d := range c.runner.Latency().Latencies() {
		latencies[name] = float64(d) / float64(time.Millisecond)
	}

	c.mu.Lock()
	last := make(map[string]time.Time, len(c.lastCollected))
	for k, v := range c.lastCollected {
		last[k] = v
	}
	c.mu.Unlock()

	return PerformanceStats{
		Device:              c.runner.Device(),
		Cache:               cs,
		CacheHitRate:        cs.HitRate(),
		CommandCacheEntries: c.runner.CommandCache().Len(),
		Latencies:           latencies,
		SlowCommands:        c.runner.Latency().Slow(),
		Intervals:           c.sampler.Table(),
		LastCollected:       last,
		Workers:             c.dispatch.Width(),
	}
}
