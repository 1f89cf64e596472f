package adb

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
)

const (
	defaultPath       = "adb"
	defaultTimeout    = 8 * time.Second
	defaultBackoff    = 100 * time.Millisecond
	defaultCacheTTL   = 30 * time.Second
	defaultSlowFactor = 2.0
)

type Config struct {
	Path              string
	Device            string
	Timeout           time.Duration
	RetryCount        int
	RetryBackoff      time.Duration
	CommandCacheTTL   time.Duration
	SlowCommandFactor float64
}

func DefaultConfig() Config {
	return Config{
		Path:              defaultPath,
		Timeout:           defaultTimeout,
		RetryCount:        1,
		RetryBackoff:      defaultBackoff,
		CommandCacheTTL:   defaultCacheTTL,
		SlowCommandFactor: defaultSlowFactor,
	}
}

// Commander runs one device command. Runner is the production implementation.
type Commander interface {
	Run(ctx context.Context, command string, opts ...RunOption) (string, error)
}

// Runner executes single commands against the current device with a timeout
// and a bounded number of attempts.
type Runner struct {
	exec    Executor
	cfg     Config
	log     logger.Logger
	cache   *CommandCache
	latency *LatencyTracker

	mu     sync.RWMutex
	device string
}

func NewRunner(cfg Config, executor Executor, log logger.Logger) *Runner {
	d := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = d.Path
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	if cfg.CommandCacheTTL <= 0 {
		cfg.CommandCacheTTL = d.CommandCacheTTL
	}
	if cfg.SlowCommandFactor <= 0 {
		cfg.SlowCommandFactor = d.SlowCommandFactor
	}
	if executor == nil {
		executor = NewExecExecutor()
	}

	return &Runner{
		exec:    executor,
		cfg:     cfg,
		log:     log,
		cache:   NewCommandCache(cfg.CommandCacheTTL, nil),
		latency: NewLatencyTracker(time.Duration(cfg.SlowCommandFactor * float64(cfg.Timeout))),
		device:  cfg.Device,
	}
}

// Device returns the serial that commands are scoped to.
func (r *Runner) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

// SetDevice rescopes all later commands. In-flight commands keep their serial.
func (r *Runner) SetDevice(serial string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device = serial
}

func (r *Runner) Timeout() time.Duration {
	return r.cfg.Timeout
}

func (r *Runner) Latency() *LatencyTracker {
	return r.latency
}

func (r *Runner) CommandCache() *CommandCache {
	return r.cache
}

type runOptions struct {
	timeout time.Duration
	retries int
	cached  bool
	global  bool
	quiet   bool
}

type RunOption func(*runOptions)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries overrides the total number of attempts.
func WithRetries(n int) RunOption {
	return func(o *runOptions) {
		if n > 0 {
			o.retries = n
		}
	}
}

// WithCache serves the command from the command cache when possible and
// stores non-empty output in it.
func WithCache() RunOption {
	return func(o *runOptions) {
		o.cached = true
	}
}

// Global runs the command without the device prefix, e.g. "devices".
func Global() RunOption {
	return func(o *runOptions) {
		o.global = true
	}
}

// Quiet suppresses the final failure log line.
func Quiet() RunOption {
	return func(o *runOptions) {
		o.quiet = true
	}
}

// Run executes command, e.g. "shell dumpsys battery", and returns its trimmed
// stdout. Timeouts and non-zero exits are retried; only the last failure is
// logged. Errors carry ErrCommandFailed, ErrCommandTimeout or
// ErrCommandCanceled for per-command failures, and a systemic code (see
// IsSystemic) when the invocation itself cannot work.
func (r *Runner) Run(ctx context.Context, command string, opts ...RunOption) (string, error) {
	errFactory := errors.New()

	o := runOptions{timeout: r.cfg.Timeout, retries: r.cfg.RetryCount}
	for _, opt := range opts {
		opt(&o)
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", errFactory.WithMessage(ErrInvalidCommand, "empty command")
	}

	device := r.Device()
	cacheKey := commandCacheKey(command, device)
	if o.cached {
		if out, ok := r.cache.Get(cacheKey); ok {
			commandCacheHits.Inc()
			return out, nil
		}
	}

	args := make([]string, 0, len(fields)+2)
	if device != "" && !o.global {
		args = append(args, "-s", device)
	}
	args = append(args, fields...)

	name := CommandName(command)
	start := time.Now()

	var lastErr errors.Error
	for attempt := 1; attempt <= o.retries; attempt++ {
		out, err := r.attempt(ctx, args, o.timeout)
		if err == nil {
			r.observe(name, command, time.Since(start))
			if o.cached && out != "" {
				r.cache.Put(cacheKey, out)
			}
			return out, nil
		}

		lastErr = err
		if IsSystemic(err) || ctx.Err() != nil {
			break
		}

		if attempt < o.retries {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.RetryBackoff):
			}
		}
	}

	r.observe(name, command, time.Since(start))
	commandFailures.WithLabelValues(name, string(lastErr.Code())).Inc()

	if !o.quiet {
		switch lastErr.Code() {
		case ErrCommandTimeout:
			r.log.Warn().Str("command", command).Dur("timeout", o.timeout).Msg("Device command timed out")
		case ErrCommandCanceled:
		default:
			r.log.Debug().Err(lastErr).Str("command", command).Int("attempts", o.retries).Msg("Device command failed")
		}
	}

	return "", lastErr
}

func (r *Runner) attempt(ctx context.Context, args []string, timeout time.Duration) (string, errors.Error) {
	errFactory := errors.New()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.exec.Execute(cctx, r.cfg.Path, args...)
	if err == nil {
		return strings.TrimSpace(string(out)), nil
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "", errFactory.Wrap(ErrBridgeMissing, err)
	case ctx.Err() != nil:
		return "", errFactory.Wrap(ErrCommandCanceled, ctx.Err())
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		return "", errFactory.Wrap(ErrCommandTimeout, cctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return "", errFactory.Wrap(ErrCommandFailed, err).
			WithData(strings.TrimSpace(string(exitErr.Stderr)))
	}

	return "", errFactory.Wrap(ErrCommandFailed, err)
}

func (r *Runner) observe(name, command string, d time.Duration) {
	commandDuration.WithLabelValues(name).Observe(d.Seconds())
	if r.latency.Observe(name, d) {
		r.log.Debug().Str("command", command).Dur("duration", d).Msg("Slow command detected")
	}
}
