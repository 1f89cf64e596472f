// Package collector turns device command output into telemetry records. Each
// domain is collected at its own adaptive interval and served from the tiered
// cache while fresh.
package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/cache"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/parser"
)

const (
	outcomeFresh     = "fresh"
	outcomeCollected = "collected"
	outcomeDegraded  = "degraded"
	outcomeEmpty     = "empty"
)

type Config struct {
	Cache       cache.Config
	Intervals   map[Domain]time.Duration
	Sampling    SamplingConfig
	Estimator   parser.EstimatorConfig
	MaxParallel int
	UIDCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cache: cache.Config{L1Size: 100, L2Size: 500, TTL: 30 * time.Second},
		Intervals: map[Domain]time.Duration{
			DomainSystem:      3 * time.Second,
			DomainAppBasic:    2 * time.Second,
			DomainAppDetailed: 5 * time.Second,
			DomainNetwork:     4 * time.Second,
			DomainDeviceInfo:  60 * time.Second,
		},
		Sampling:    DefaultSamplingConfig(),
		Estimator:   parser.DefaultEstimatorConfig(),
		MaxParallel: 8,
		UIDCacheTTL: 30 * time.Second,
	}
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the wall clock used for freshness, rates and sampling.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type uidEntry struct {
	uid int
	at  time.Time
}

type trafficSample struct {
	rx, tx float64
	at     time.Time
}

// Collector owns the cache, dispatcher and sampling table for one device.
type Collector struct {
	cfg      Config
	runner   *adb.Runner
	dispatch *adb.Dispatcher
	cache    *cache.Tiered[any]
	sampler  *Sampler
	log      logger.Logger
	now      func() time.Time

	mu            sync.Mutex
	lastCollected map[string]time.Time
	uids          map[string]uidEntry
	traffic       map[string]trafficSample
}

func New(cfg Config, runner *adb.Runner, log logger.Logger, opts ...Option) *Collector {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	d := DefaultConfig()
	if cfg.Intervals == nil {
		cfg.Intervals = d.Intervals
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = d.MaxParallel
	}
	if cfg.UIDCacheTTL <= 0 {
		cfg.UIDCacheTTL = d.UIDCacheTTL
	}

	for domain, interval := range cfg.Intervals {
		intervalSeconds.WithLabelValues(string(domain)).Set(interval.Seconds())
	}

	return &Collector{
		cfg:           cfg,
		runner:        runner,
		dispatch:      adb.NewDispatcher(runner, cfg.MaxParallel, log),
		cache:         cache.NewTiered[any](cfg.Cache, cache.WithClock(o.now)),
		sampler:       NewSampler(cfg.Intervals, cfg.Sampling, o.now),
		log:           log,
		now:           o.now,
		lastCollected: make(map[string]time.Time),
		uids:          make(map[string]uidEntry),
		traffic:       make(map[string]trafficSample),
	}
}

// Connect selects the device to collect from. An empty serial picks the first
// online device. Per-device state is reset.
func (c *Collector) Connect(ctx context.Context, serial string) (adb.Device, error) {
	dev, err := adb.Connect(ctx, c.runner, serial)
	if err != nil {
		return adb.Device{}, err
	}

	c.runner.SetDevice(dev.Serial)
	c.runner.CommandCache().Clear()

	c.mu.Lock()
	c.lastCollected = make(map[string]time.Time)
	c.uids = make(map[string]uidEntry)
	c.traffic = make(map[string]trafficSample)
	c.mu.Unlock()

	c.log.Info().Str("device", dev.Serial).Msg("Connected to device")

	return dev, nil
}

// CheckConnection reports whether the current device is still online.
func (c *Collector) CheckConnection(ctx context.Context) error {
	serial := c.runner.Device()
	if serial == "" {
		return errors.New().New(ErrNotConnected)
	}

	_, err := adb.Connect(ctx, c.runner, serial)

	return err
}

// Device returns the serial of the current device.
func (c *Collector) Device() string {
	return c.runner.Device()
}

// Sampler exposes the interval table.
func (c *Collector) Sampler() *Sampler {
	return c.sampler
}

func (c *Collector) requireDevice() error {
	if c.runner.Device() == "" {
		return errors.New().New(ErrNotConnected)
	}

	return nil
}

func (c *Collector) key(d Domain, subject string) string {
	return c.runner.Device() + "/" + string(d) + "/" + subject
}

// freshValue returns the cached value for key while the domain interval has
// not elapsed since the last collection.
func freshValue[T any](c *Collector, d Domain, key string) (T, bool) {
	var zero T

	c.mu.Lock()
	last, ok := c.lastCollected[key]
	c.mu.Unlock()
	if !ok || c.now().Sub(last) >= c.sampler.Interval(d) {
		return zero, false
	}

	v, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}

	typed, ok := v.(T)

	return typed, ok
}

func (c *Collector) remember(key string, v any) {
	c.cache.Put(key, v)

	c.mu.Lock()
	c.lastCollected[key] = c.now()
	c.mu.Unlock()
}

// finish records a collection of d that started at start. An empty outcome
// is not counted.
func (c *Collector) finish(d Domain, start time.Time, outcome string) {
	c.observe(d, c.now().Sub(start), outcome)
}

// observe records one collection of d that took took.
func (c *Collector) observe(d Domain, took time.Duration, outcome string) {
	if outcome != "" {
		collections.WithLabelValues(string(d), outcome).Inc()
	}
	collectionDuration.WithLabelValues(string(d)).Observe(took.Seconds())
	cacheHitRatio.Set(c.cache.Stats().HitRate())

	if c.sampler.Observe(d, took) {
		c.log.Debug().
			Str("domain", string(d)).
			Dur("interval", c.sampler.Interval(d)).
			Msg("Sampling interval adapted")
	}
}

// run issues a single command outside of a batch. Only systemic failures are
// returned as errors; anything else is reported as absent output.
func (c *Collector) run(ctx context.Context, command string, opts ...adb.RunOption) (string, bool, error) {
	out, err := c.runner.Run(ctx, command, append(opts, adb.Quiet())...)
	if err != nil {
		if adb.IsSystemic(err) {
			return "", false, err
		}

		return "", false, nil
	}

	return out, out != "", nil
}

// round shares the output of commands issued outside a batch between the
// packages of one collection call. Nothing outlives the call, so cumulative
// counters are always read fresh.
type round struct {
	c       *Collector
	outputs map[string]roundOutput
}

type roundOutput struct {
	out string
	ok  bool
}

func (c *Collector) newRound() *round {
	return &round{c: c, outputs: make(map[string]roundOutput)}
}

func (r *round) run(ctx context.Context, command string) (string, bool, error) {
	if o, ok := r.outputs[command]; ok {
		return o.out, o.ok, nil
	}

	out, ok, err := r.c.run(ctx, command)
	if err != nil {
		return "", false, err
	}
	r.outputs[command] = roundOutput{out: out, ok: ok}

	return out, ok, nil
}

// rates derives KB/s from the previous cumulative sample of subject. Counter
// resets yield no rate.
func (c *Collector) rates(subject string, rx, tx float64) (*float64, *float64) {
	now := c.now()

	c.mu.Lock()
	prev, ok := c.traffic[subject]
	c.traffic[subject] = trafficSample{rx: rx, tx: tx, at: now}
	c.mu.Unlock()

	if !ok {
		return nil, nil
	}

	secs := now.Sub(prev.at).Seconds()
	if secs <= 0 || rx < prev.rx || tx < prev.tx {
		return nil, nil
	}

	rxRate := (rx - prev.rx) / 1024 / secs
	txRate := (tx - prev.tx) / 1024 / secs

	return &rxRate, &txRate
}

// validPackage rejects names that cannot be a package and would otherwise be
// interpreted by the device shell.
func validPackage(pkg string) bool {
	if pkg == "" {
		return false
	}

	for _, r := range pkg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
		default:
			return false
		}
	}

	return !strings.HasPrefix(pkg, ".")
}
