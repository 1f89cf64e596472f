package collector

import (
	"sync"
	"time"
)

// Domain is a telemetry category with its own sampling interval.
type Domain string

const (
	DomainSystem      Domain = "system"
	DomainAppBasic    Domain = "app_basic"
	DomainAppDetailed Domain = "app_detailed"
	DomainNetwork     Domain = "network"
	DomainDeviceInfo  Domain = "device_info"
)

type SamplingConfig struct {
	Adaptive      bool
	MinMultiplier float64
	MaxMultiplier float64
	// How often intervals are re-evaluated
	EvaluationWindow time.Duration
	History          int
	MinSamples       int
	// Grow when the average duration exceeds SlowRatio of the interval and
	// shrink when it is below FastRatio
	SlowRatio    float64
	FastRatio    float64
	GrowFactor   float64
	ShrinkFactor float64
}

func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Adaptive:         true,
		MinMultiplier:    0.5,
		MaxMultiplier:    2.0,
		EvaluationWindow: 30 * time.Second,
		History:          10,
		MinSamples:       5,
		SlowRatio:        0.8,
		FastRatio:        0.3,
		GrowFactor:       1.2,
		ShrinkFactor:     0.9,
	}
}

// IntervalInfo describes one row of the interval table.
type IntervalInfo struct {
	Base            time.Duration `json:"base"`
	Current         time.Duration `json:"current"`
	AverageDuration time.Duration `json:"average_duration"`
	Samples         int           `json:"samples"`
}

type domainState struct {
	base      time.Duration
	current   time.Duration
	durations []time.Duration
	lastEval  time.Time
}

// Sampler keeps the interval table and adapts it to observed collection
// durations. Only latency moves an interval; failures do not.
type Sampler struct {
	cfg     SamplingConfig
	now     func() time.Time
	mu      sync.Mutex
	domains map[Domain]*domainState
}

func NewSampler(base map[Domain]time.Duration, cfg SamplingConfig, now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	if cfg.History < 1 {
		cfg.History = 1
	}

	s := &Sampler{
		cfg:     cfg,
		now:     now,
		domains: make(map[Domain]*domainState, len(base)),
	}

	start := now()
	for d, interval := range base {
		s.domains[d] = &domainState{
			base:      interval,
			current:   interval,
			durations: make([]time.Duration, 0, cfg.History),
			lastEval:  start,
		}
	}

	return s
}

// Interval returns the current interval of d, or zero for an unknown domain.
func (s *Sampler) Interval(d Domain) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.domains[d]; ok {
		return st.current
	}

	return 0
}

// Observe records how long a collection of d took and re-evaluates the
// interval once per evaluation window. It reports whether the interval
// changed.
func (s *Sampler) Observe(d Domain, took time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.domains[d]
	if !ok {
		return false
	}

	st.durations = append(st.durations, took)
	if len(st.durations) > s.cfg.History {
		st.durations = st.durations[1:]
	}

	now := s.now()
	if !s.cfg.Adaptive || now.Sub(st.lastEval) < s.cfg.EvaluationWindow ||
		len(st.durations) < s.cfg.MinSamples {
		return false
	}
	st.lastEval = now

	avg := average(st.durations)
	ratio := float64(avg) / float64(st.current)

	next := st.current
	switch {
	case ratio > s.cfg.SlowRatio:
		next = scale(st.current, s.cfg.GrowFactor)
	case ratio < s.cfg.FastRatio:
		next = scale(st.current, s.cfg.ShrinkFactor)
	}
	next = clampDuration(next, scale(st.base, s.cfg.MinMultiplier), scale(st.base, s.cfg.MaxMultiplier))

	if next == st.current {
		return false
	}

	st.current = next
	intervalSeconds.WithLabelValues(string(d)).Set(next.Seconds())

	return true
}

// Table returns a copy of the interval table.
func (s *Sampler) Table() map[Domain]IntervalInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Domain]IntervalInfo, len(s.domains))
	for d, st := range s.domains {
		out[d] = IntervalInfo{
			Base:            st.base,
			Current:         st.current,
			AverageDuration: average(st.durations),
			Samples:         len(st.durations),
		}
	}

	return out
}

func average(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range ds {
		sum += d
	}

	return sum / time.Duration(len(ds))
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}

func clampDuration(value, minValue, maxValue time.Duration) time.Duration {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
