package adb

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"golang.org/x/sync/semaphore"
)

const (
	defaultWorkers = 8
	// Slack added to the command timeout before a task is abandoned
	defaultTaskSlack = 2 * time.Second
)

// Task is one named command in a batch. Cached tasks go through the
// runner's command cache.
type Task struct {
	Key     string
	Command string
	Cached  bool
}

// Batch is an ordered set of tasks submitted together. Keys must be unique.
type Batch []Task

// Add appends a task and returns the batch for chaining.
func (b Batch) Add(key, command string) Batch {
	return append(b, Task{Key: key, Command: command})
}

// AddCached appends a task whose output may be served from the command cache.
func (b Batch) AddCached(key, command string) Batch {
	return append(b, Task{Key: key, Command: command, Cached: true})
}

// Validate checks that every key is non-empty and unique.
func (b Batch) Validate() error {
	errFactory := errors.New()

	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if t.Key == "" {
			return errFactory.WithMessage(ErrInvalidBatch, "empty task key")
		}
		if _, dup := seen[t.Key]; dup {
			return errFactory.WithData(ErrInvalidBatch, fmt.Sprintf("duplicate task key %q", t.Key))
		}
		seen[t.Key] = struct{}{}
	}

	return nil
}

// Result is the outcome of one task. OK is false when the output is absent.
// Elapsed includes the wait for a worker.
type Result struct {
	Output  string
	OK      bool
	Elapsed time.Duration
}

// Results maps task keys to outcomes. Every submitted key is present.
type Results map[string]Result

// Get returns the output for key, or false when it is absent.
func (r Results) Get(key string) (string, bool) {
	res, ok := r[key]
	if !ok || !res.OK {
		return "", false
	}

	return res.Output, true
}

// Present counts the keys that produced output.
func (r Results) Present() int {
	n := 0
	for _, res := range r {
		if res.OK {
			n++
		}
	}

	return n
}

// Dispatcher fans batches out over a worker pool shared by all callers.
type Dispatcher struct {
	runner  Commander
	workers *semaphore.Weighted
	width   int
	slack   time.Duration
	log     logger.Logger
}

func NewDispatcher(runner Commander, width int, log logger.Logger) *Dispatcher {
	if width < 1 {
		width = defaultWorkers
	}

	return &Dispatcher{
		runner:  runner,
		workers: semaphore.NewWeighted(int64(width)),
		width:   width,
		slack:   defaultTaskSlack,
		log:     log,
	}
}

// Width returns the pool size.
func (d *Dispatcher) Width() int {
	return d.width
}

// ExecuteBatch runs every task concurrently, bounded by the pool width, and
// waits for each one for at most timeout plus a short slack once it holds a
// worker. Failed, panicking or abandoned tasks are reported as absent and never
// affect their siblings. The error is only non-nil for a malformed batch.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, batch Batch, timeout time.Duration) (Results, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	type keyed struct {
		key string
		res Result
	}
	done := make(chan keyed, len(batch))

	for _, task := range batch {
		go func(task Task) {
			done <- keyed{key: task.Key, res: d.runTask(ctx, task, timeout)}
		}(task)
	}

	results := make(Results, len(batch))
	for range batch {
		k := <-done
		results[k.key] = k.res
	}

	absent := len(batch) - results.Present()
	batchDuration.Observe(time.Since(start).Seconds())
	batchAbsent.Add(float64(absent))

	d.log.Debug().
		Int("tasks", len(batch)).
		Int("absent", absent).
		Dur("elapsed", time.Since(start)).
		Msg("Batch executed")

	return results, nil
}

func (d *Dispatcher) runTask(ctx context.Context, task Task, timeout time.Duration) Result {
	begin := time.Now()
	res := d.await(ctx, task, timeout)
	res.Elapsed = time.Since(begin)

	return res
}

func (d *Dispatcher) await(ctx context.Context, task Task, timeout time.Duration) Result {
	if err := d.workers.Acquire(ctx, 1); err != nil {
		return Result{}
	}

	finished := make(chan Result, 1)
	go func() {
		// The worker is held until the command really returns, even if the
		// task has been abandoned
		defer d.workers.Release(1)
		tasksInFlight.Inc()
		defer tasksInFlight.Dec()
		defer func() {
			if p := recover(); p != nil {
				d.log.Warn().Str("task", task.Key).Interface("panic", p).Msg("Batch task panicked")
				finished <- Result{}
			}
		}()

		opts := []RunOption{WithTimeout(timeout)}
		if task.Cached {
			opts = append(opts, WithCache())
		}

		out, err := d.runner.Run(ctx, task.Command, opts...)
		finished <- Result{Output: out, OK: err == nil}
	}()

	timer := time.NewTimer(timeout + d.slack)
	defer timer.Stop()

	select {
	case res := <-finished:
		return res
	case <-timer.C:
		d.log.Debug().Str("task", task.Key).Str("command", task.Command).Msg("Batch task abandoned after timeout")
		return Result{}
	}
}
