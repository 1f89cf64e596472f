package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/config"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "droidmetrics.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "debug"

[adb]
device = "emulator-5554"
timeout = "5s"
retry_count = 2
max_parallel_commands = 6

[cache]
l1_size = 10
l2_size = 40
timeout = "15s"

[collection_intervals]
system = "1s"

[writer.app]
batch_size = 20

[storage]
db_path = "/path/to/telemetry.db"
retention_days = 7
`)

	// Set environment variable to point to the test config file
	t.Setenv("DROIDMETRICS_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "emulator-5554", cfg.ADB.Device)
	assert.Equal(t, 5*time.Second, cfg.ADB.Timeout)
	assert.Equal(t, 2, cfg.ADB.RetryCount)
	assert.Equal(t, 6, cfg.ADB.MaxParallelCommands)
	assert.Equal(t, 10, cfg.Cache.L1Size)
	assert.Equal(t, 40, cfg.Cache.L2Size)
	assert.Equal(t, 15*time.Second, cfg.Cache.Timeout)
	assert.Equal(t, time.Second, cfg.Intervals.System)
	assert.Equal(t, 2*time.Second, cfg.Intervals.AppBasic, "unset keys keep their defaults")
	assert.Equal(t, 20, cfg.Writer.App.BatchSize)
	assert.Equal(t, 500, cfg.Writer.App.Capacity)
	assert.Equal(t, "/path/to/telemetry.db", cfg.Storage.DBPath)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("DROIDMETRICS_CONFIG", "")
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.Equal(t, 8*time.Second, cfg.ADB.Timeout)
	assert.Equal(t, 1, cfg.ADB.RetryCount)
	assert.Equal(t, 8, cfg.ADB.MaxParallelCommands)
	assert.Equal(t, 100, cfg.Cache.L1Size)
	assert.Equal(t, 500, cfg.Cache.L2Size)
	assert.Equal(t, 30*time.Second, cfg.Cache.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Intervals.System)
	assert.Equal(t, 60*time.Second, cfg.Intervals.DeviceInfo)
	assert.InDelta(t, 1.8, cfg.Power.ForegroundMultiplier, 1e-9)
	assert.Equal(t, 50, cfg.Writer.System.BatchSize)
	assert.Equal(t, 6*time.Second, cfg.Writer.Power.FlushInterval)
	assert.Equal(t, 3, cfg.Storage.RetentionDays)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("DROIDMETRICS_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("DROIDMETRICS_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
	assert.Equal(t, "Invalid log level: invalid", err.Error())
}

func TestLoadRejectsInvertedCacheSizes(t *testing.T) {
	configPath := writeConfig(t, `
[cache]
l1_size = 50
l2_size = 10
`)
	t.Setenv("DROIDMETRICS_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "l1_size")
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("DROIDMETRICS_CONFIG", "")
	t.Setenv("DROIDMETRICS_ADB_RETRY_COUNT", "3")
	chdir(t, t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ADB.RetryCount)
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("DROIDMETRICS_CONFIG", "")
	chdir(t, t.TempDir())

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level", "debug", "--device", "R58M123"}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
	assert.Equal(t, "R58M123", cfg.ADB.Device)
}

func TestUnchangedFlagsDoNotShadowFile(t *testing.T) {
	configPath := writeConfig(t, `
[adb]
max_parallel_commands = 4
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", configPath}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ADB.MaxParallelCommands)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
