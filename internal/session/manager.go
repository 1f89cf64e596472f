// Package session ties one monitoring run to a stored session: it creates the
// session, writes the run's records through a buffered writer bound to it and
// ends the session when the run stops.
package session

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"codeberg.org/mutker/droidmetrics/internal/writer"
)

const finalizeTimeout = 15 * time.Second

// Store is the session side of the storage layer.
type Store interface {
	CreateSession(ctx context.Context, name, device string, packages []string) (*storage.Session, error)
	EndSession(ctx context.Context, id int64, status storage.Status, reason string) error
	GetSession(ctx context.Context, id int64) (*storage.Session, error)
	StoreBatch(ctx context.Context, sessionID int64, recordType telemetry.RecordType, records []telemetry.Record) error
}

// Connector resolves the device a run will use.
type Connector interface {
	Connect(ctx context.Context, serial string) (adb.Device, error)
}

// Runner is the polling task.
type Runner interface {
	Start(ctx context.Context, device string, opts monitor.Options) error
	Stop(ctx context.Context) error
	Done() <-chan struct{}
	Err() error
}

// Request describes a run to start.
type Request struct {
	Device   string   `json:"device"`
	Name     string   `json:"name"`
	Packages []string `json:"packages"`
	System   bool     `json:"system"`
}

// sink binds a writer to one session.
type sink struct {
	store Store
	id    int64
}

func (s sink) StoreBatch(ctx context.Context, recordType telemetry.RecordType, records []telemetry.Record) error {
	return s.store.StoreBatch(ctx, s.id, recordType, records)
}

type run struct {
	session *storage.Session
	writer  *writer.Writer
	done    <-chan struct{}

	// Closed once the session has been ended
	finished chan struct{}
	final    *storage.Session
	err      error
}

type Manager struct {
	store     Store
	connector Connector
	runner    Runner
	writerCfg writer.Config
	log       logger.Logger

	mu     sync.Mutex
	active *run
	// Serializes Start and Stop
	op sync.Mutex
}

func NewManager(store Store, connector Connector, runner Runner, writerCfg writer.Config, log logger.Logger) *Manager {
	return &Manager{
		store:     store,
		connector: connector,
		runner:    runner,
		writerCfg: writerCfg,
		log:       log,
	}
}

// Start connects, creates a running session and starts the polling task.
func (m *Manager) Start(ctx context.Context, req Request) (*storage.Session, error) {
	errFactory := errors.New()

	m.op.Lock()
	defer m.op.Unlock()

	if m.Current() != nil {
		return nil, errFactory.New(ErrAlreadyRunning)
	}

	dev, err := m.connector.Connect(ctx, req.Device)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.CreateSession(ctx, req.Name, dev.Serial, req.Packages)
	if err != nil {
		return nil, err
	}

	w, err := writer.New(m.writerCfg, sink{store: m.store, id: sess.ID}, m.log)
	if err != nil {
		m.abort(sess, err)
		return nil, err
	}

	opts := monitor.Options{Packages: req.Packages, System: req.System, Recorder: w}
	if err := m.runner.Start(ctx, dev.Serial, opts); err != nil {
		if cerr := w.Close(); cerr != nil {
			m.log.Debug().Err(cerr).Msg("Failed to close writer")
		}
		m.abort(sess, err)
		return nil, err
	}

	r := &run{session: sess, writer: w, done: m.runner.Done(), finished: make(chan struct{})}

	m.mu.Lock()
	m.active = r
	m.mu.Unlock()

	go m.watch(r)

	return sess, nil
}

// Stop ends the polling task, flushes the writer and ends the session with
// status.
func (m *Manager) Stop(ctx context.Context, status storage.Status) (*storage.Session, error) {
	m.op.Lock()
	defer m.op.Unlock()

	r := m.take(nil)
	if r == nil {
		return nil, errors.New().New(ErrNotRunning)
	}

	if err := m.runner.Stop(ctx); err != nil && !errors.HasCode(err, monitor.ErrNotRunning) {
		m.log.Warn().Err(err).Msg("Polling task did not stop cleanly")
	}

	return m.finalize(ctx, r, status, "")
}

// Current returns the running session, or nil.
func (m *Manager) Current() *storage.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil
	}

	return m.active.session
}

// watch ends the session when the polling task stops on its own.
func (m *Manager) watch(r *run) {
	<-r.done

	if m.take(r) == nil {
		return
	}

	reason := ""
	if err := m.runner.Err(); err != nil {
		reason = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, err := m.finalize(ctx, r, storage.StatusError, reason); err != nil {
		m.log.Error().Err(err).Msg("Failed to end session")
	}
}

// Wait blocks until the running session ends, either through Stop or because
// the polling task gave up, and returns the ended session.
func (m *Manager) Wait(ctx context.Context) (*storage.Session, error) {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()

	if r == nil {
		return nil, errors.New().New(ErrNotRunning)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.finished:
		return r.final, r.err
	}
}

// take clears the active run. With a non-nil want it only clears that run.
func (m *Manager) take(want *run) *run {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.active
	if r == nil || (want != nil && r != want) {
		return nil
	}
	m.active = nil

	return r
}

func (m *Manager) finalize(ctx context.Context, r *run, status storage.Status, reason string) (*storage.Session, error) {
	defer close(r.finished)

	if err := r.writer.Close(); err != nil {
		m.log.Warn().Err(err).Msg("Final flush failed")
	}

	if r.err = m.store.EndSession(ctx, r.session.ID, status, reason); r.err != nil {
		return nil, r.err
	}

	r.final, r.err = m.store.GetSession(ctx, r.session.ID)

	return r.final, r.err
}

// abort marks a session that never ran as failed.
func (m *Manager) abort(sess *storage.Session, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := m.store.EndSession(ctx, sess.ID, storage.StatusError, cause.Error()); err != nil {
		m.log.Debug().Err(err).Msg("Failed to mark session as failed")
	}
}
