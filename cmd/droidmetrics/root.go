package main

import (
	"context"
	"os"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/api"
	"codeberg.org/mutker/droidmetrics/internal/cache"
	"codeberg.org/mutker/droidmetrics/internal/collector"
	"codeberg.org/mutker/droidmetrics/internal/config"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"codeberg.org/mutker/droidmetrics/internal/writer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

// app carries the loaded configuration to every command.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "droidmetrics",
		Short: "Collect performance telemetry from Android devices over adb",
		Long: `droidmetrics samples CPU, memory, battery, network, frame rate and power
figures from an Android device through adb, buffers them and stores them per
monitoring session in a local SQLite database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Flags())
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newDevicesCmd(a),
		newInfoCmd(a),
		newAppsCmd(a),
		newMonitorCmd(a),
		newSessionsCmd(a),
		newCleanupCmd(a),
		newServeCmd(a),
	)

	return cmd
}

func (a *app) init(fs *pflag.FlagSet) error {
	// A .env file is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}

	cfg, err := config.Load(config.WithFlags(fs))
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		logger.SetLogLevel(logger.ParseLevel(cfg.LogLevel))
	}
	logger.Debug().Msg("Config loaded")

	return nil
}

func (a *app) newRunner() *adb.Runner {
	c := a.cfg.ADB

	return adb.NewRunner(adb.Config{
		Path:              c.Path,
		Device:            c.Device,
		Timeout:           c.Timeout,
		RetryCount:        c.RetryCount,
		RetryBackoff:      c.RetryBackoff,
		CommandCacheTTL:   c.CommandCacheTTL,
		SlowCommandFactor: c.SlowCommandFactor,
	}, adb.NewExecExecutor(), logger.With("adb"))
}

func (a *app) newCollector(runner *adb.Runner) *collector.Collector {
	c := a.cfg

	return collector.New(collector.Config{
		Cache: cache.Config{
			L1Size: c.Cache.L1Size,
			L2Size: c.Cache.L2Size,
			TTL:    c.Cache.Timeout,
		},
		Intervals: map[collector.Domain]time.Duration{
			collector.DomainSystem:      c.Intervals.System,
			collector.DomainAppBasic:    c.Intervals.AppBasic,
			collector.DomainAppDetailed: c.Intervals.AppDetailed,
			collector.DomainNetwork:     c.Intervals.Network,
			collector.DomainDeviceInfo:  c.Intervals.DeviceInfo,
		},
		Sampling: a.samplingConfig(),
		Estimator: parser.EstimatorConfig{
			Base:                 c.Power.Base,
			CPUWeight:            c.Power.CPUWeight,
			CPUCap:               c.Power.CPUCap,
			MemoryWeight:         c.Power.MemoryWeight,
			MemoryCap:            c.Power.MemoryCap,
			ForegroundMultiplier: c.Power.ForegroundMultiplier,
			BackgroundMultiplier: c.Power.BackgroundMultiplier,
			NetworkBonus:         c.Power.NetworkBonus,
			Min:                  c.Power.Min,
			Max:                  c.Power.Max,
		},
		MaxParallel: c.ADB.MaxParallelCommands,
	}, runner, logger.With("collector"))
}

func (a *app) samplingConfig() collector.SamplingConfig {
	s := a.cfg.Sampling

	return collector.SamplingConfig{
		Adaptive:         s.Adaptive,
		MinMultiplier:    s.MinMultiplier,
		MaxMultiplier:    s.MaxMultiplier,
		EvaluationWindow: s.EvaluationWindow,
		History:          s.History,
		MinSamples:       s.MinSamples,
		SlowRatio:        s.SlowRatio,
		FastRatio:        s.FastRatio,
		GrowFactor:       s.GrowFactor,
		ShrinkFactor:     s.ShrinkFactor,
	}
}

func (a *app) monitorConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.Interval = a.cfg.Sampling.BaseInterval
	cfg.Sampling = a.samplingConfig()
	if a.cfg.Sampling.MaxConsecutiveFailures > 0 {
		cfg.MaxConsecutiveFailures = a.cfg.Sampling.MaxConsecutiveFailures
	}

	return cfg
}

// writerConfig resolves the per type queues, falling back to the writer-wide
// thresholds for unset fields.
func (a *app) writerConfig() writer.Config {
	w := a.cfg.Writer
	cfg := writer.DefaultConfig()

	queues := map[telemetry.RecordType]config.QueueConfig{
		telemetry.RecordSystem:  w.System,
		telemetry.RecordApp:     w.App,
		telemetry.RecordNetwork: w.Network,
		telemetry.RecordFPS:     w.FPS,
		telemetry.RecordPower:   w.Power,
	}
	for t, q := range queues {
		resolved := cfg.Queues[t]
		if q.Capacity > 0 {
			resolved.Capacity = q.Capacity
		}
		switch {
		case q.BatchSize > 0:
			resolved.BatchSize = q.BatchSize
		case w.BatchSize > 0:
			resolved.BatchSize = w.BatchSize
		}
		switch {
		case q.FlushInterval > 0:
			resolved.FlushInterval = q.FlushInterval
		case w.FlushInterval > 0:
			resolved.FlushInterval = w.FlushInterval
		}
		cfg.Queues[t] = resolved
	}

	return cfg
}

func (a *app) openStorage() (*storage.Repository, error) {
	s := a.cfg.Storage

	return storage.Open(storage.Config{
		DBPath:          s.DBPath,
		BackupDir:       s.BackupDir,
		BackupOnMigrate: s.BackupOnMigrate,
		RetentionDays:   s.RetentionDays,
	}, logger.With("storage"))
}

func (a *app) apiConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.Listen = a.cfg.API.Listen
	cfg.RateLimit = a.cfg.API.RateLimit
	cfg.RateBurst = a.cfg.API.RateBurst

	return cfg
}

// deviceLister lists devices through runner without selecting one.
func deviceLister(runner *adb.Runner) api.DeviceLister {
	return func(ctx context.Context) ([]adb.Device, error) {
		return adb.ListDevices(ctx, runner)
	}
}
