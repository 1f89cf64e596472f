// Package monitor runs the polling task: one collection cycle per adaptive
// interval, records handed to the buffered writer, and connection problems
// surfaced as events.
package monitor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/collector"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

// DomainCycle is the sampling domain of a whole monitor cycle.
const DomainCycle collector.Domain = "cycle"

const eventBuffer = 32

// Source is the part of the collector the monitor drives.
type Source interface {
	Connect(ctx context.Context, serial string) (adb.Device, error)
	CheckConnection(ctx context.Context) error
	CollectSystem(ctx context.Context) (*telemetry.SystemRecord, error)
	CollectApps(ctx context.Context, pkgs []string) (map[string]*telemetry.AppSnapshot, error)
}

// Recorder receives every record a cycle produces.
type Recorder interface {
	EnqueueAll(records ...telemetry.Record) error
}

type Config struct {
	Interval               time.Duration
	Sampling               collector.SamplingConfig
	MaxConsecutiveFailures int
	// Sleep used when a cycle took longer than the interval
	MinSleep    time.Duration
	BackoffStep time.Duration
	MaxBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:               3 * time.Second,
		Sampling:               collector.DefaultSamplingConfig(),
		MaxConsecutiveFailures: 3,
		MinSleep:               100 * time.Millisecond,
		BackoffStep:            500 * time.Millisecond,
		MaxBackoff:             5 * time.Second,
	}
}

// Options select what one monitoring run collects and where records go.
type Options struct {
	Packages []string
	System   bool
	Recorder Recorder
}

type EventKind string

const (
	EventSample       EventKind = "sample"
	EventError        EventKind = "error"
	EventDisconnected EventKind = "disconnected"
)

type Event struct {
	Kind     EventKind                         `json:"kind"`
	Time     time.Time                         `json:"time"`
	Cycle    int                               `json:"cycle"`
	Failures int                               `json:"failures,omitempty"`
	System   *telemetry.SystemRecord           `json:"system,omitempty"`
	Apps     map[string]*telemetry.AppSnapshot `json:"apps,omitempty"`
	Err      error                             `json:"-"`
	Message  string                            `json:"message,omitempty"`
}

type Option func(*Monitor)

// WithClock replaces the clock used to time cycles.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

type Monitor struct {
	cfg Config
	src Source
	log logger.Logger
	now func() time.Time

	events chan Event

	mu      sync.Mutex
	running bool
	device  string
	opts    Options
	sampler *collector.Sampler
	stop    chan struct{}
	done    chan struct{}
	err     error
	last    *Event
}

func New(cfg Config, src Source, log logger.Logger, opts ...Option) *Monitor {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = d.MinSleep
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = d.BackoffStep
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = d.MaxBackoff
	}

	m := &Monitor{
		cfg:    cfg,
		src:    src,
		log:    log,
		now:    time.Now,
		events: make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start connects to device and launches the polling task. Connection
// failures are returned; an empty device picks the first online one. The task
// outlives ctx and runs until Stop or a lost connection ends it.
func (m *Monitor) Start(ctx context.Context, device string, opts Options) error {
	errFactory := errors.New()

	if !opts.System && len(opts.Packages) == 0 {
		return errFactory.New(ErrNothingToDo)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errFactory.New(ErrAlreadyRunning)
	}
	m.running = true
	m.mu.Unlock()

	dev, err := m.src.Connect(ctx, device)
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.device = dev.Serial
	m.opts = opts
	m.sampler = collector.NewSampler(
		map[collector.Domain]time.Duration{DomainCycle: m.cfg.Interval},
		m.cfg.Sampling,
		m.now,
	)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.err = nil
	m.last = nil
	stop, done := m.stop, m.done
	m.mu.Unlock()

	m.log.Info().
		Str("device", dev.Serial).
		Strs("packages", opts.Packages).
		Bool("system", opts.System).
		Dur("interval", m.cfg.Interval).
		Msg("Monitoring started")

	go m.loop(context.WithoutCancel(ctx), stop, done)

	return nil
}

// Stop asks the polling task to exit after its current cycle and waits for
// it. In-flight device commands finish or time out on their own.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return errors.New().New(ErrNotRunning)
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)

	select {
	case <-done:
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}

	m.log.Info().Msg("Monitoring stopped")

	return nil
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

func (m *Monitor) Device() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.device
}

// Events delivers samples and error events. Events are dropped when nobody
// reads them.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Done is closed when the current run ends. It is nil before Start.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.done
}

// Err returns why the last run ended on its own, or nil after Stop.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}

// Last returns the latest sample event.
func (m *Monitor) Last() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == nil {
		return Event{}, false
	}

	return *m.last, true
}

// Intervals returns the adaptive cycle interval table.
func (m *Monitor) Intervals() map[collector.Domain]collector.IntervalInfo {
	m.mu.Lock()
	sampler := m.sampler
	m.mu.Unlock()

	if sampler == nil {
		return nil
	}

	return sampler.Table()
}

func (m *Monitor) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	m.mu.Lock()
	opts := m.opts
	sampler := m.sampler
	m.mu.Unlock()

	queued := make(recordSet)
	failures := 0
	for cycle := 1; ; cycle++ {
		start := m.now()
		err := m.cycle(ctx, cycle, opts, queued)
		elapsed := m.now().Sub(start)
		cycleDuration.Observe(elapsed.Seconds())

		var wait time.Duration
		if err != nil {
			failures++
			cycles.WithLabelValues("failed").Inc()
			consecutiveFailures.Set(float64(failures))

			m.log.Debug().
				Err(err).
				Int("failures", failures).
				Msg("Monitor cycle failed")

			if failures%m.cfg.MaxConsecutiveFailures == 0 {
				if m.escalate(ctx, cycle, failures, err) {
					return
				}
			}

			wait = min(m.cfg.MaxBackoff, time.Duration(failures)*m.cfg.BackoffStep)
		} else {
			failures = 0
			cycles.WithLabelValues("ok").Inc()
			consecutiveFailures.Set(0)

			if sampler.Observe(DomainCycle, elapsed) {
				m.log.Info().
					Dur("interval", sampler.Interval(DomainCycle)).
					Msg("Monitor interval adjusted")
			}

			wait = sampler.Interval(DomainCycle) - elapsed
			if wait <= 0 {
				wait = m.cfg.MinSleep
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle collects once. It fails when a systemic error occurred or nothing at
// all was collected. Records already queued by an earlier cycle are not
// queued again.
func (m *Monitor) cycle(ctx context.Context, n int, opts Options, queued recordSet) error {
	ev := Event{Kind: EventSample, Time: m.now(), Cycle: n}
	var records []telemetry.Record

	if opts.System {
		rec, err := m.src.CollectSystem(ctx)
		if err != nil {
			return err
		}
		if rec != nil && !rec.Empty() {
			ev.System = rec
			records = append(records, rec)
		}
	}

	if len(opts.Packages) > 0 {
		snaps, err := m.src.CollectApps(ctx, opts.Packages)
		if err != nil {
			return err
		}
		ev.Apps = snaps
		for _, pkg := range opts.Packages {
			if snap := snaps[pkg]; snap != nil {
				records = append(records, snap.Records()...)
			}
		}
	}

	if len(records) == 0 {
		return errors.New().WithMessage(ErrCycleFailed, "no telemetry collected")
	}

	if fresh := queued.update(records); opts.Recorder != nil && len(fresh) > 0 {
		if err := opts.Recorder.EnqueueAll(fresh...); err != nil {
			m.log.Warn().Err(err).Msg("Failed to enqueue telemetry")
		}
	}

	m.mu.Lock()
	m.last = &ev
	m.mu.Unlock()

	m.emit(ev)

	return nil
}

// recordSet holds the records seen by the previous cycle. The collector hands
// back the same record while its domain is fresh.
type recordSet map[telemetry.Record]struct{}

// update replaces the set with records and returns those that were not in it.
func (s recordSet) update(records []telemetry.Record) []telemetry.Record {
	var fresh []telemetry.Record
	for _, r := range records {
		if _, ok := s[r]; !ok {
			fresh = append(fresh, r)
		}
	}

	clear(s)
	for _, r := range records {
		s[r] = struct{}{}
	}

	return fresh
}

// escalate reports repeated failures and checks the connection. It reports
// whether the loop must end.
func (m *Monitor) escalate(ctx context.Context, cycle, failures int, cause error) bool {
	m.log.Warn().
		Err(cause).
		Int("failures", failures).
		Msg("Repeated collection failures")

	m.emit(Event{
		Kind:     EventError,
		Time:     m.now(),
		Cycle:    cycle,
		Failures: failures,
		Err:      cause,
		Message:  cause.Error(),
	})

	if err := m.src.CheckConnection(ctx); err != nil {
		m.log.Error().Err(err).Msg("Device connection lost")

		m.emit(Event{
			Kind:     EventDisconnected,
			Time:     m.now(),
			Cycle:    cycle,
			Failures: failures,
			Err:      err,
			Message:  err.Error(),
		})
		m.finish(errors.New().Wrap(ErrDisconnected, err))

		return true
	}

	return false
}

// finish records why the loop ended on its own.
func (m *Monitor) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.err = err
}

func (m *Monitor) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Debug().Str("kind", string(ev.Kind)).Msg("Monitor event dropped")
	}
}
