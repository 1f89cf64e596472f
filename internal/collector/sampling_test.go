package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = 4 * time.Second

func newTestSampler(clock *fakeClock, mutate func(*SamplingConfig)) *Sampler {
	cfg := DefaultSamplingConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	return NewSampler(map[Domain]time.Duration{DomainSystem: testBase}, cfg, clock.Now)
}

// simulate runs windows evaluation windows in which every collection takes
// ratio of the current interval, and returns the interval after each window.
func simulate(s *Sampler, clock *fakeClock, ratio float64, windows int) []time.Duration {
	var seen []time.Duration
	for i := 0; i < windows; i++ {
		clock.Advance(s.cfg.EvaluationWindow)
		for j := 0; j < s.cfg.MinSamples; j++ {
			s.Observe(DomainSystem, scale(s.Interval(DomainSystem), ratio))
		}
		seen = append(seen, s.Interval(DomainSystem))
	}

	return seen
}

func TestSamplerGrowsUpToTwiceBase(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, nil)

	seen := simulate(s, clock, 0.9, 60)

	prev := testBase
	for _, interval := range seen {
		assert.GreaterOrEqual(t, interval, prev)
		assert.LessOrEqual(t, interval, 2*testBase)
		prev = interval
	}
	assert.Greater(t, seen[0], testBase)
	assert.Equal(t, 2*testBase, seen[len(seen)-1])
}

func TestSamplerShrinksDownToHalfBase(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, nil)

	seen := simulate(s, clock, 0.2, 60)

	prev := testBase
	for _, interval := range seen {
		assert.LessOrEqual(t, interval, prev)
		assert.GreaterOrEqual(t, interval, testBase/2)
		prev = interval
	}
	assert.Less(t, seen[0], testBase)
	assert.Equal(t, testBase/2, seen[len(seen)-1])
}

func TestSamplerKeepsIntervalInComfortZone(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, nil)

	seen := simulate(s, clock, 0.5, 10)
	for _, interval := range seen {
		assert.Equal(t, testBase, interval)
	}
}

func TestSamplerWaitsForEvaluationWindowAndSamples(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, nil)

	for i := 0; i < 20; i++ {
		assert.False(t, s.Observe(DomainSystem, testBase))
	}
	assert.Equal(t, testBase, s.Interval(DomainSystem), "no evaluation before the window elapses")

	clock.Advance(30 * time.Second)
	assert.True(t, s.Observe(DomainSystem, testBase))
	assert.Equal(t, scale(testBase, 1.2), s.Interval(DomainSystem))

	s = newTestSampler(clock, nil)
	clock.Advance(30 * time.Second)
	for i := 0; i < 4; i++ {
		assert.False(t, s.Observe(DomainSystem, testBase), "too few samples")
	}
}

func TestSamplerDisabled(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, func(c *SamplingConfig) { c.Adaptive = false })

	seen := simulate(s, clock, 0.9, 5)
	assert.Equal(t, testBase, seen[len(seen)-1])
}

func TestSamplerTable(t *testing.T) {
	clock := newFakeClock()
	s := newTestSampler(clock, nil)
	s.Observe(DomainSystem, time.Second)
	s.Observe(DomainSystem, 3*time.Second)

	table := s.Table()
	require.Contains(t, table, DomainSystem)
	assert.Equal(t, IntervalInfo{
		Base:            testBase,
		Current:         testBase,
		AverageDuration: 2 * time.Second,
		Samples:         2,
	}, table[DomainSystem])

	assert.Zero(t, s.Interval(DomainDeviceInfo))
	assert.False(t, s.Observe(DomainDeviceInfo, time.Second))
}
