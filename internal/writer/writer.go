// Package writer buffers telemetry records per type and hands them to storage
// in bulk. Delivery is at most once: a failed bulk write is logged and its
// records are dropped.
package writer

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

const (
	defaultTick         = time.Second
	defaultFlushTimeout = 10 * time.Second

	triggerSize  = "size"
	triggerAge   = "age"
	triggerFlush = "manual"
)

// Sink receives one bulk write per flush.
type Sink interface {
	StoreBatch(ctx context.Context, recordType telemetry.RecordType, records []telemetry.Record) error
}

type QueueConfig struct {
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
}

type Config struct {
	Queues map[telemetry.RecordType]QueueConfig
	// How often queue ages are checked
	Tick         time.Duration
	FlushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Queues: map[telemetry.RecordType]QueueConfig{
			telemetry.RecordSystem:  {Capacity: 200, BatchSize: 50, FlushInterval: 5 * time.Second},
			telemetry.RecordApp:     {Capacity: 500, BatchSize: 100, FlushInterval: 3 * time.Second},
			telemetry.RecordNetwork: {Capacity: 300, BatchSize: 75, FlushInterval: 4 * time.Second},
			telemetry.RecordFPS:     {Capacity: 300, BatchSize: 75, FlushInterval: 4 * time.Second},
			telemetry.RecordPower:   {Capacity: 300, BatchSize: 75, FlushInterval: 6 * time.Second},
		},
		Tick:         defaultTick,
		FlushTimeout: defaultFlushTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	for t, q := range c.Queues {
		if q.BatchSize < 1 || q.Capacity < 1 || q.FlushInterval <= 0 {
			return errFactory.WithData(ErrInvalidConfig, struct {
				Type  telemetry.RecordType
				Queue QueueConfig
			}{
				Type:  t,
				Queue: q,
			})
		}
	}

	return nil
}

type Option func(*Writer)

// WithClock replaces the clock used for queue ages.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

type queue struct {
	cfg     QueueConfig
	records []telemetry.Record
	// When the oldest queued record arrived
	since time.Time
}

// threshold is the queue length that triggers a flush.
func (q *queue) threshold() int {
	return min(q.cfg.BatchSize, q.cfg.Capacity)
}

type Writer struct {
	sink Sink
	log  logger.Logger
	cfg  Config
	now  func() time.Time

	mu     sync.Mutex
	queues map[telemetry.RecordType]*queue
	closed bool

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// New creates a writer and starts its age flusher unless cfg.Tick is zero.
func New(cfg Config, sink Sink, log logger.Logger, opts ...Option) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}

	w := &Writer{
		sink:          sink,
		log:           log,
		cfg:           cfg,
		now:           time.Now,
		queues:        make(map[telemetry.RecordType]*queue, len(cfg.Queues)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	for t, qc := range cfg.Queues {
		w.queues[t] = &queue{cfg: qc, records: make([]telemetry.Record, 0, qc.BatchSize)}
	}

	if cfg.Tick > 0 {
		w.flushTicker = time.NewTicker(cfg.Tick)
		go w.flusher()
	} else {
		close(w.flushDoneChan)
	}

	return w, nil
}

// Enqueue buffers a record in the queue of its type. Reaching the queue's
// batch size flushes it synchronously.
func (w *Writer) Enqueue(record telemetry.Record) error {
	errFactory := errors.New()

	if record == nil {
		return errFactory.WithMessage(ErrUnknownRecordType, "nil record")
	}

	t := record.Type()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errFactory.New(ErrClosed)
	}

	q, ok := w.queues[t]
	if !ok {
		w.mu.Unlock()
		return errFactory.WithData(ErrUnknownRecordType, t)
	}

	if len(q.records) == 0 {
		q.since = w.now()
	}
	q.records = append(q.records, record)
	queueDepth.WithLabelValues(string(t)).Set(float64(len(q.records)))

	var batch []telemetry.Record
	if len(q.records) >= q.threshold() {
		batch = w.take(t, q)
	}
	w.mu.Unlock()

	if batch != nil {
		return w.write(t, batch, triggerSize)
	}

	return nil
}

// EnqueueAll buffers every record, stopping at the first error.
func (w *Writer) EnqueueAll(records ...telemetry.Record) error {
	for _, r := range records {
		if err := w.Enqueue(r); err != nil {
			return err
		}
	}

	return nil
}

// Flush writes out the queue of one record type.
func (w *Writer) Flush(t telemetry.RecordType) error {
	w.mu.Lock()
	q, ok := w.queues[t]
	if !ok {
		w.mu.Unlock()
		return errors.New().WithData(ErrUnknownRecordType, t)
	}
	batch := w.take(t, q)
	w.mu.Unlock()

	return w.write(t, batch, triggerFlush)
}

// FlushAll writes out every queue and returns the first failure.
func (w *Writer) FlushAll() error {
	var first error
	for _, t := range telemetry.RecordTypes {
		w.mu.Lock()
		_, ok := w.queues[t]
		w.mu.Unlock()
		if !ok {
			continue
		}

		if err := w.Flush(t); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Pending returns the number of queued records per type.
func (w *Writer) Pending() map[telemetry.RecordType]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[telemetry.RecordType]int, len(w.queues))
	for t, q := range w.queues {
		out[t] = len(q.records)
	}

	return out
}

// Close stops the age flusher and flushes what is left. Later enqueues fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.flushTicker != nil {
		close(w.shutdownChan)
		w.flushTicker.Stop()
	}
	<-w.flushDoneChan

	err := w.FlushAll()

	w.log.Debug().Msg("Writer closed")

	return err
}

func (w *Writer) flusher() {
	defer close(w.flushDoneChan)

	for {
		select {
		case <-w.flushTicker.C:
			w.flushExpired()
		case <-w.shutdownChan:
			return
		}
	}
}

// flushExpired writes out every queue whose oldest record has waited at
// least the queue's flush interval.
func (w *Writer) flushExpired() {
	now := w.now()

	type due struct {
		t     telemetry.RecordType
		batch []telemetry.Record
	}
	var pending []due

	w.mu.Lock()
	for t, q := range w.queues {
		if len(q.records) > 0 && now.Sub(q.since) >= q.cfg.FlushInterval {
			pending = append(pending, due{t: t, batch: w.take(t, q)})
		}
	}
	w.mu.Unlock()

	for _, d := range pending {
		// Failures are logged by write
		_ = w.write(d.t, d.batch, triggerAge)
	}
}

// take empties q and returns its records. Callers hold w.mu.
func (w *Writer) take(t telemetry.RecordType, q *queue) []telemetry.Record {
	if len(q.records) == 0 {
		return nil
	}

	batch := q.records
	q.records = make([]telemetry.Record, 0, q.cfg.BatchSize)
	q.since = time.Time{}
	queueDepth.WithLabelValues(string(t)).Set(0)

	return batch
}

func (w *Writer) write(t telemetry.RecordType, batch []telemetry.Record, trigger string) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	if err := w.sink.StoreBatch(ctx, t, batch); err != nil {
		flushes.WithLabelValues(string(t), trigger, "error").Inc()
		droppedRecords.WithLabelValues(string(t)).Add(float64(len(batch)))
		w.log.Error().
			Err(err).
			Str("type", string(t)).
			Int("records", len(batch)).
			Msg("Failed to write telemetry batch, records dropped")

		return errors.New().Wrap(ErrFlushFailed, err)
	}

	flushes.WithLabelValues(string(t), trigger, "ok").Inc()
	w.log.Debug().
		Str("type", string(t)).
		Str("trigger", trigger).
		Int("records", len(batch)).
		Msg("Flushed telemetry batch")

	return nil
}
