package main

import (
	"context"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/api"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/pid"
	"codeberg.org/mutker/droidmetrics/internal/session"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API",
		Long: `Runs the HTTP control API. Monitoring sessions are started and stopped
through POST /api/v1/monitor/start and /api/v1/monitor/stop; Prometheus
metrics are exposed on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(parent context.Context) error {
	startedAt := time.Now()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(ctx, cancel)

	pidFile := pid.Default()
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove pid file")
		}
	}()

	repo, err := a.openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	if n, err := repo.Cleanup(ctx); err != nil {
		logger.Warn().Err(err).Msg("Retention cleanup failed")
	} else if n > 0 {
		logger.Info().Int64("sessions", n).Msg("Removed expired sessions")
	}

	runner := a.newRunner()
	col := a.newCollector(runner)
	mon := monitor.New(a.monitorConfig(), col, logger.With("monitor"))
	mgr := session.NewManager(repo, col, mon, a.writerConfig(), logger.With("session"))

	// Collection for on-demand requests needs a selected device. Without one
	// the endpoints report no device until a session connects.
	if _, err := col.Connect(ctx, a.cfg.ADB.Device); err != nil {
		logger.Warn().Err(err).Msg("No device selected")
	}

	srv := api.New(a.apiConfig(), api.Deps{
		Collector: col,
		Sessions:  mgr,
		Monitor:   mon,
		Archive:   repo,
		Devices:   deviceLister(runner),
	}, logger.With("api"))

	notify(daemon.SdNotifyReady, "STATUS=Serving on "+a.cfg.API.Listen)

	err = srv.Run(ctx)
	notify(daemon.SdNotifyStopping)

	if mgr.Current() != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()

		if _, serr := mgr.Stop(stopCtx, storage.StatusCancelled); serr != nil {
			logger.Error().Err(serr).Msg("Failed to end running session")
		}
	}

	logger.Info().Dur("uptime", time.Since(startedAt)).Msg("Exiting...")

	return err
}
