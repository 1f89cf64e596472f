package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestRepository(t *testing.T) (*Repository, *testClock) {
	t.Helper()

	dir := t.TempDir()
	cfg := DefaultConfig(filepath.Join(dir, "telemetry.db"), filepath.Join(dir, "backups"))
	clock := &testClock{now: testStart}

	repo, err := Open(cfg, logger.Nop(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo, clock
}

func TestOpenCreatesSchema(t *testing.T) {
	repo, _ := newTestRepository(t)

	version, err := GetSchemaVersion(repo.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	for _, table := range append(tableNames(), "sessions") {
		exists, err := TableExists(repo.db, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(Config{}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(filepath.Join(dir, "telemetry.db"), filepath.Join(dir, "backups"))

	repo, err := Open(cfg, logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = repo.CreateSession(ctx, "old", "emulator-5554", nil)
	require.NoError(t, err)
	_, err = repo.db.Exec("UPDATE schema_versions SET version = ?", SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(cfg, logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	sessions, err := repo.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestSessionLifecycle(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "", "emulator-5554", []string{"com.a", "com.b"})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s.Status)
	assert.Equal(t, "session-20260301-100000", s.Name)
	assert.NotEmpty(t, s.UUID)

	clock.now = testStart.Add(time.Minute)
	require.NoError(t, repo.EndSession(ctx, s.ID, StatusCompleted, ""))

	got, err := repo.FindSession(ctx, s.UUID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"com.a", "com.b"}, got.Packages)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, time.Minute, got.Duration(clock.now))

	err = repo.EndSession(ctx, s.ID, StatusError, "late")
	assert.True(t, errors.HasCode(err, ErrSessionEnded))
}

func TestEndSessionValidatesStatus(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "x", "d", nil)
	require.NoError(t, err)

	for _, status := range []Status{StatusRunning, "paused"} {
		err := repo.EndSession(ctx, s.ID, status, "")
		assert.True(t, errors.HasCode(err, ErrInvalidStatus), status)
	}

	err = repo.EndSession(ctx, 999, StatusCompleted, "")
	assert.True(t, errors.HasCode(err, ErrSessionNotFound))
}

func TestListSessionsNewestFirst(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	for i, name := range []string{"first", "second", "third"} {
		clock.now = testStart.Add(time.Duration(i) * time.Hour)
		_, err := repo.CreateSession(ctx, name, "d", nil)
		require.NoError(t, err)
	}

	sessions, err := repo.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "third", sessions[0].Name)
	assert.Equal(t, "second", sessions[1].Name)
}

func TestStoreBatchKeepsAbsentMetricsNull(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "x", "d", []string{"com.a"})
	require.NoError(t, err)

	records := []telemetry.Record{
		&telemetry.SystemRecord{Timestamp: testStart, CPUUsage: telemetry.Float(40), ScreenOn: telemetry.Bool(true)},
		&telemetry.SystemRecord{Timestamp: testStart.Add(3 * time.Second), CPUUsage: telemetry.Float(60)},
	}
	require.NoError(t, repo.StoreBatch(ctx, s.ID, telemetry.RecordSystem, records))

	var battery sql.NullFloat64
	require.NoError(t, repo.db.QueryRow(
		"SELECT battery_level FROM system_records WHERE session_id = ? LIMIT 1", s.ID).Scan(&battery))
	assert.False(t, battery.Valid)

	sum, err := repo.Summary(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Counts[telemetry.RecordSystem])
	require.NotNil(t, sum.System.AvgCPU)
	assert.InDelta(t, 50.0, *sum.System.AvgCPU, 1e-9)
	assert.InDelta(t, 60.0, *sum.System.MaxCPU, 1e-9)
	assert.Nil(t, sum.System.AvgBattery)
}

func TestStoreBatchIsAtomic(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "x", "d", nil)
	require.NoError(t, err)

	records := []telemetry.Record{
		&telemetry.AppRecord{Timestamp: testStart, PackageName: "com.a"},
		&telemetry.FPSRecord{Timestamp: testStart, PackageName: "com.a"},
	}
	err = repo.StoreBatch(ctx, s.ID, telemetry.RecordApp, records)
	assert.True(t, errors.HasCode(err, ErrRecordMismatch))

	var n int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM app_records").Scan(&n))
	assert.Zero(t, n)
}

func TestStoreBatchRequiresSession(t *testing.T) {
	repo, _ := newTestRepository(t)

	err := repo.StoreBatch(context.Background(), 42, telemetry.RecordApp, []telemetry.Record{
		&telemetry.AppRecord{Timestamp: testStart, PackageName: "com.a"},
	})
	assert.True(t, errors.HasCode(err, ErrTransactionFailed))
}

func TestAppSummaries(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "x", "d", []string{"com.a", "com.b"})
	require.NoError(t, err)

	require.NoError(t, repo.StoreBatch(ctx, s.ID, telemetry.RecordApp, []telemetry.Record{
		&telemetry.AppRecord{Timestamp: testStart, PackageName: "com.b", CPUUsage: telemetry.Float(10), MemoryPSS: telemetry.Float(100)},
		&telemetry.AppRecord{Timestamp: testStart, PackageName: "com.b", CPUUsage: telemetry.Float(30), MemoryPSS: telemetry.Float(200)},
		&telemetry.AppRecord{Timestamp: testStart, PackageName: "com.a", CPUUsage: telemetry.Float(5)},
	}))
	require.NoError(t, repo.StoreBatch(ctx, s.ID, telemetry.RecordFPS, []telemetry.Record{
		&telemetry.FPSRecord{Timestamp: testStart, PackageName: "com.b", FPS: telemetry.Float(60)},
	}))
	require.NoError(t, repo.StoreBatch(ctx, s.ID, telemetry.RecordPower, []telemetry.Record{
		&telemetry.PowerRecord{Timestamp: testStart, PackageName: "com.a", Source: telemetry.PowerEstimated, PowerUsage: telemetry.Float(12)},
	}))

	sum, err := repo.Summary(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, sum.Apps, 2)

	a, b := sum.Apps[0], sum.Apps[1]
	assert.Equal(t, "com.a", a.PackageName)
	assert.Equal(t, 1, a.Samples)
	assert.Nil(t, a.AvgMemoryPSS)
	require.NotNil(t, a.AvgPowerUsage)
	assert.InDelta(t, 12.0, *a.AvgPowerUsage, 1e-9)

	assert.Equal(t, "com.b", b.PackageName)
	assert.Equal(t, 2, b.Samples)
	assert.InDelta(t, 20.0, *b.AvgCPU, 1e-9)
	assert.InDelta(t, 200.0, *b.MaxMemoryPSS, 1e-9)
	assert.InDelta(t, 60.0, *b.AvgFPS, 1e-9)
}

func TestExport(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, "x", "d", []string{"com.a"})
	require.NoError(t, err)
	require.NoError(t, repo.StoreBatch(ctx, s.ID, telemetry.RecordNetwork, []telemetry.Record{
		&telemetry.NetworkRecord{
			Timestamp:   testStart,
			PackageName: "com.a",
			UID:         telemetry.Int(10123),
			Method:      "netstats",
			RxBytes:     telemetry.Float(2048),
		},
	}))

	var buf bytes.Buffer
	require.NoError(t, repo.Export(ctx, s.ID, &buf))

	var doc struct {
		Session Session                     `json:"session"`
		Records map[string][]map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, s.UUID, doc.Session.UUID)
	assert.Empty(t, doc.Records["system"])
	require.Len(t, doc.Records["network"], 1)

	row := doc.Records["network"][0]
	assert.Equal(t, "com.a", row["package_name"])
	assert.Equal(t, "netstats", row["method"])
	assert.InDelta(t, 10123.0, row["uid"], 1e-9)
	assert.Equal(t, "2026-03-01T10:00:00Z", row["timestamp"])
	assert.NotContains(t, row, "tx_bytes")
}

func TestCleanupRemovesExpiredFinishedSessions(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	old, err := repo.CreateSession(ctx, "old", "d", nil)
	require.NoError(t, err)
	require.NoError(t, repo.StoreBatch(ctx, old.ID, telemetry.RecordSystem, []telemetry.Record{
		&telemetry.SystemRecord{Timestamp: testStart, CPUUsage: telemetry.Float(1)},
	}))
	require.NoError(t, repo.EndSession(ctx, old.ID, StatusCompleted, ""))

	stillRunning, err := repo.CreateSession(ctx, "running", "d", nil)
	require.NoError(t, err)

	clock.now = testStart.Add(4 * 24 * time.Hour)
	recent, err := repo.CreateSession(ctx, "recent", "d", nil)
	require.NoError(t, err)

	deleted, err := repo.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetSession(ctx, old.ID)
	assert.True(t, errors.HasCode(err, ErrSessionNotFound))

	var n int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM system_records").Scan(&n))
	assert.Zero(t, n)

	for _, id := range []int64{stillRunning.ID, recent.ID} {
		_, err := repo.GetSession(ctx, id)
		assert.NoError(t, err)
	}
}
