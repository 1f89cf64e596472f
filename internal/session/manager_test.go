package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"codeberg.org/mutker/droidmetrics/internal/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*storage.Session
	records  map[int64]map[telemetry.RecordType]int
	nextID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions: make(map[int64]*storage.Session),
		records:  make(map[int64]map[telemetry.RecordType]int),
	}
}

func (s *memoryStore) CreateSession(_ context.Context, name, device string, packages []string) (*storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sess := &storage.Session{
		ID:        s.nextID,
		Name:      name,
		Device:    device,
		Packages:  packages,
		Status:    storage.StatusRunning,
		StartedAt: time.Now(),
	}
	s.sessions[sess.ID] = sess
	s.records[sess.ID] = make(map[telemetry.RecordType]int)

	copied := *sess
	return &copied, nil
}

func (s *memoryStore) EndSession(_ context.Context, id int64, status storage.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return errors.New().New(storage.ErrSessionNotFound)
	}
	if sess.Status != storage.StatusRunning {
		return errors.New().New(storage.ErrSessionEnded)
	}
	now := time.Now()
	sess.Status = status
	sess.EndedAt = &now
	sess.Error = reason

	return nil
}

func (s *memoryStore) GetSession(_ context.Context, id int64) (*storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New().New(storage.ErrSessionNotFound)
	}
	copied := *sess

	return &copied, nil
}

func (s *memoryStore) StoreBatch(_ context.Context, id int64, t telemetry.RecordType, records []telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id][t] += len(records)

	return nil
}

func (s *memoryStore) stored(id int64, t telemetry.RecordType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records[id][t]
}

type scriptedSource struct {
	mu     sync.Mutex
	broken bool
}

func (s *scriptedSource) Connect(_ context.Context, serial string) (adb.Device, error) {
	if serial == "gone" {
		return adb.Device{}, errors.New().New(adb.ErrNoDevice)
	}

	return adb.Device{Serial: "emulator-5554", State: adb.StateDevice}, nil
}

func (s *scriptedSource) CheckConnection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return fmt.Errorf("device offline")
	}

	return nil
}

func (s *scriptedSource) CollectSystem(context.Context) (*telemetry.SystemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return nil, errors.New().New(adb.ErrNoDevice)
	}

	return &telemetry.SystemRecord{Timestamp: time.Now(), CPUUsage: telemetry.Float(20)}, nil
}

func (s *scriptedSource) CollectApps(context.Context, []string) (map[string]*telemetry.AppSnapshot, error) {
	return map[string]*telemetry.AppSnapshot{}, nil
}

func (s *scriptedSource) breakDevice() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.broken = true
}

func newTestManager(t *testing.T) (*Manager, *memoryStore, *scriptedSource) {
	t.Helper()

	store := newMemoryStore()
	src := &scriptedSource{}

	monCfg := monitor.DefaultConfig()
	monCfg.Interval = 2 * time.Millisecond
	monCfg.MinSleep = time.Millisecond
	monCfg.BackoffStep = time.Millisecond
	monCfg.MaxBackoff = time.Millisecond
	mon := monitor.New(monCfg, src, logger.Nop())

	wcfg := writer.DefaultConfig()
	wcfg.Tick = 0

	return NewManager(store, src, mon, wcfg, logger.Nop()), store, src
}

func TestStartStopCompletesSession(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Start(ctx, Request{Name: "run", System: true})
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", sess.Device)
	assert.Equal(t, sess.ID, m.Current().ID)

	time.Sleep(20 * time.Millisecond)

	ended, err := m.Stop(ctx, storage.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, ended.Status)
	assert.Nil(t, m.Current())

	assert.Positive(t, store.stored(sess.ID, telemetry.RecordSystem), "stop flushes buffered records")

	_, err = m.Stop(ctx, storage.StatusCompleted)
	assert.True(t, errors.HasCode(err, ErrNotRunning))
}

func TestStartTwiceFails(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, Request{System: true})
	require.NoError(t, err)
	defer m.Stop(ctx, storage.StatusCancelled)

	_, err = m.Start(ctx, Request{System: true})
	assert.True(t, errors.HasCode(err, ErrAlreadyRunning))
}

func TestConnectFailureCreatesNoSession(t *testing.T) {
	m, store, _ := newTestManager(t)

	_, err := m.Start(context.Background(), Request{Device: "gone", System: true})
	assert.True(t, errors.HasCode(err, adb.ErrNoDevice))
	assert.Empty(t, store.sessions)
}

func TestMonitorStartFailureEndsSession(t *testing.T) {
	m, store, _ := newTestManager(t)

	_, err := m.Start(context.Background(), Request{})
	assert.True(t, errors.HasCode(err, monitor.ErrNothingToDo))

	require.Len(t, store.sessions, 1)
	assert.Equal(t, storage.StatusError, store.sessions[1].Status)
	assert.Nil(t, m.Current())
}

func TestDisconnectEndsSessionWithError(t *testing.T) {
	m, store, src := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Start(ctx, Request{System: true})
	require.NoError(t, err)

	src.breakDevice()

	require.Eventually(t, func() bool {
		got, err := store.GetSession(ctx, sess.ID)
		return err == nil && got.Status == storage.StatusError
	}, time.Second, time.Millisecond)

	got, _ := store.GetSession(ctx, sess.ID)
	assert.Contains(t, got.Error, "device offline")
	assert.Nil(t, m.Current())
}

func TestWaitReturnsEndedSession(t *testing.T) {
	m, _, src := newTestManager(t)
	ctx := context.Background()

	_, err := m.Wait(ctx)
	require.True(t, errors.HasCode(err, ErrNotRunning))

	sess, err := m.Start(ctx, Request{System: true})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		src.breakDevice()
	}()

	got, err := m.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, storage.StatusError, got.Status)
}
