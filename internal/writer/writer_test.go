package writer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchCall struct {
	recordType telemetry.RecordType
	records    []telemetry.Record
}

type recordingSink struct {
	mu    sync.Mutex
	calls []batchCall
	fail  error
}

func (s *recordingSink) StoreBatch(_ context.Context, t telemetry.RecordType, records []telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, batchCall{recordType: t, records: records})

	return s.fail
}

func (s *recordingSink) snapshot() []batchCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]batchCall(nil), s.calls...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestWriter(t *testing.T, sink Sink) (*Writer, *manualClock) {
	t.Helper()

	clock := &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Tick = 0

	w, err := New(cfg, sink, logger.Nop(), WithClock(clock.Now))
	require.NoError(t, err)

	return w, clock
}

func systemRecord(i int) *telemetry.SystemRecord {
	return &telemetry.SystemRecord{
		Timestamp: time.Unix(int64(i), 0),
		CPUUsage:  telemetry.Float(float64(i)),
	}
}

func TestFlushOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	w, _ := newTestWriter(t, sink)

	for i := 0; i < 49; i++ {
		require.NoError(t, w.Enqueue(systemRecord(i)))
	}
	assert.Empty(t, sink.snapshot())
	assert.Equal(t, 49, w.Pending()[telemetry.RecordSystem])

	require.NoError(t, w.Enqueue(systemRecord(49)))

	calls := sink.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, telemetry.RecordSystem, calls[0].recordType)
	require.Len(t, calls[0].records, 50)
	for i, r := range calls[0].records {
		assert.Equal(t, time.Unix(int64(i), 0), r.CapturedAt(), "records keep enqueue order")
	}
	assert.Zero(t, w.Pending()[telemetry.RecordSystem])
}

func TestFlushOnAge(t *testing.T) {
	sink := &recordingSink{}
	w, clock := newTestWriter(t, sink)

	require.NoError(t, w.Enqueue(systemRecord(1)))
	require.NoError(t, w.Enqueue(&telemetry.AppRecord{PackageName: "com.a"}))

	clock.Advance(3 * time.Second)
	w.flushExpired()

	calls := sink.snapshot()
	require.Len(t, calls, 1, "app queue flushes after 3s, system waits for 5s")
	assert.Equal(t, telemetry.RecordApp, calls[0].recordType)

	clock.Advance(2 * time.Second)
	w.flushExpired()

	calls = sink.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, telemetry.RecordSystem, calls[1].recordType)
	assert.Len(t, calls[1].records, 1)
}

func TestAgeCountsFromOldestRecord(t *testing.T) {
	sink := &recordingSink{}
	w, clock := newTestWriter(t, sink)

	require.NoError(t, w.Enqueue(systemRecord(1)))
	clock.Advance(4 * time.Second)
	require.NoError(t, w.Enqueue(systemRecord(2)))
	clock.Advance(time.Second)
	w.flushExpired()

	calls := sink.snapshot()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].records, 2)
}

func TestEmptyQueuesAreNotFlushed(t *testing.T) {
	sink := &recordingSink{}
	w, clock := newTestWriter(t, sink)

	clock.Advance(time.Minute)
	w.flushExpired()
	require.NoError(t, w.FlushAll())

	assert.Empty(t, sink.snapshot())
}

func TestFailedBatchIsDropped(t *testing.T) {
	sink := &recordingSink{fail: fmt.Errorf("disk full")}
	w, _ := newTestWriter(t, sink)

	require.NoError(t, w.Enqueue(systemRecord(1)))
	err := w.Flush(telemetry.RecordSystem)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrFlushFailed))

	assert.Zero(t, w.Pending()[telemetry.RecordSystem])

	sink.fail = nil
	require.NoError(t, w.FlushAll())
	assert.Len(t, sink.snapshot(), 1, "dropped records are not retried")
}

func TestFlushAllWritesEveryType(t *testing.T) {
	sink := &recordingSink{}
	w, _ := newTestWriter(t, sink)

	require.NoError(t, w.EnqueueAll(
		systemRecord(1),
		&telemetry.AppRecord{PackageName: "com.a"},
		&telemetry.NetworkRecord{PackageName: "com.a"},
		&telemetry.FPSRecord{PackageName: "com.a"},
		&telemetry.PowerRecord{PackageName: "com.a"},
	))
	require.NoError(t, w.FlushAll())

	var types []telemetry.RecordType
	for _, c := range sink.snapshot() {
		types = append(types, c.recordType)
	}
	assert.Equal(t, telemetry.RecordTypes, types)
}

func TestCloseFlushesAndRejects(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Tick = 10 * time.Millisecond

	w, err := New(cfg, sink, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, w.Enqueue(systemRecord(1)))
	require.NoError(t, w.Close())
	require.Len(t, sink.snapshot(), 1)

	err = w.Enqueue(systemRecord(2))
	assert.True(t, errors.HasCode(err, ErrClosed))
	assert.NoError(t, w.Close(), "close is idempotent")
}

func TestUnknownRecordType(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Tick = 0
	delete(cfg.Queues, telemetry.RecordPower)

	w, err := New(cfg, sink, logger.Nop())
	require.NoError(t, err)

	err = w.Enqueue(&telemetry.PowerRecord{PackageName: "com.a"})
	assert.True(t, errors.HasCode(err, ErrUnknownRecordType))
	assert.True(t, errors.HasCode(w.Enqueue(nil), ErrUnknownRecordType))
}

func TestInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Queues[telemetry.RecordApp] = QueueConfig{Capacity: 10, BatchSize: 0, FlushInterval: time.Second}

	_, err := New(cfg, &recordingSink{}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

func TestCapacityBoundsQueue(t *testing.T) {
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Tick = 0
	cfg.Queues[telemetry.RecordSystem] = QueueConfig{Capacity: 3, BatchSize: 10, FlushInterval: time.Minute}

	w, err := New(cfg, sink, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Enqueue(systemRecord(i)))
	}

	calls := sink.snapshot()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].records, 3)
}
