package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/api"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/pid"
	"codeberg.org/mutker/droidmetrics/internal/session"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 30 * time.Second

type monitorFlags struct {
	packages []string
	name     string
	noSystem bool
	serve    bool
	quiet    bool
}

func newMonitorCmd(a *app) *cobra.Command {
	var f monitorFlags

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Record a monitoring session until interrupted",
		Long: `Polls the device every sampling interval and stores system and per-package
telemetry in a new session. The session ends as completed on SIGINT or SIGTERM
and as error when the device is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMonitor(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringSliceVarP(&f.packages, "app", "p", nil, "Package to monitor (repeatable)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Session name (default: generated from the start time)")
	cmd.Flags().BoolVar(&f.noSystem, "no-system", false, "Skip system-wide metrics")
	cmd.Flags().BoolVar(&f.serve, "serve", false, "Also serve the control API")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print samples")

	return cmd
}

func (a *app) runMonitor(parent context.Context, out io.Writer, f monitorFlags) error {
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

	sess, err := mgr.Start(ctx, session.Request{
		Device:   a.cfg.ADB.Device,
		Name:     f.name,
		Packages: f.packages,
		System:   !f.noSystem,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int64("id", sess.ID).
		Str("uuid", sess.UUID).
		Str("name", sess.Name).
		Str("device", sess.Device).
		Msg("Session started")

	notify(daemon.SdNotifyReady, "STATUS=Recording session "+sess.UUID+" on "+sess.Device)

	g, gctx := errgroup.WithContext(ctx)

	if f.serve {
		srv := api.New(a.apiConfig(), api.Deps{
			Collector: col,
			Sessions:  mgr,
			Monitor:   mon,
			Archive:   repo,
			Devices:   deviceLister(runner),
		}, logger.With("api"))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if !f.quiet {
		g.Go(func() error {
			printEvents(gctx, out, mon.Events())
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		defer notify(daemon.SdNotifyStopping)
		return awaitSession(gctx, out, mgr, mon)
	})

	return g.Wait()
}

// awaitSession ends the session when ctx is cancelled, or reports how it
// ended on its own.
func awaitSession(ctx context.Context, out io.Writer, mgr *session.Manager, mon *monitor.Monitor) error {
	ended, err := mgr.Wait(ctx)
	if err == nil {
		printSessionEnd(out, ended)
		return mon.Err()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	ended, err = mgr.Stop(stopCtx, storage.StatusCompleted)
	if errors.HasCode(err, session.ErrNotRunning) {
		return nil
	}
	if err != nil {
		return err
	}
	printSessionEnd(out, ended)

	return nil
}

func printEvents(ctx context.Context, out io.Writer, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			printEvent(out, ev)
		}
	}
}

func printEvent(out io.Writer, ev monitor.Event) {
	stamp := ev.Time.Local().Format(time.TimeOnly)

	switch ev.Kind {
	case monitor.EventError:
		fmt.Fprintf(out, "%s %s %s\n", stamp, styleBad.Render("error"), ev.Message)
		return
	case monitor.EventDisconnected:
		fmt.Fprintf(out, "%s %s %s\n", stamp, styleBad.Render("disconnected"), ev.Message)
		return
	}

	var parts []string
	if s := ev.System; s != nil {
		parts = append(parts,
			"cpu "+formatFloat(s.CPUUsage, "%"),
			"mem "+formatFloat(s.MemoryUsed, "MB"),
			"battery "+formatFloat(s.BatteryLevel, "%"),
		)
	}

	pkgs := make([]string, 0, len(ev.Apps))
	for pkg := range ev.Apps {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	for _, pkg := range pkgs {
		snap := ev.Apps[pkg]
		if snap == nil || snap.App == nil {
			parts = append(parts, pkg+" -")
			continue
		}
		line := pkg + " cpu " + formatFloat(snap.App.CPUUsage, "%") + " pss " + formatFloat(snap.App.MemoryPSS, "MB")
		if snap.FPS != nil {
			line += " fps " + formatFloat(snap.FPS.FPS, "")
		}
		if snap.Power != nil {
			line += " power " + formatFloat(snap.Power.PowerUsage, "mAh")
		}
		parts = append(parts, line)
	}

	fmt.Fprintf(out, "%s #%d %s\n", stamp, ev.Cycle, strings.Join(parts, " | "))
}

func printSessionEnd(out io.Writer, sess *storage.Session) {
	status := styleGood.Render(string(sess.Status))
	if sess.Status != storage.StatusCompleted {
		status = styleBad.Render(string(sess.Status))
	}

	fields := []field{
		{"Session", fmt.Sprintf("%d (%s)", sess.ID, sess.UUID)},
		{"Status", status},
		{"Duration", sess.Duration(time.Now()).Round(time.Second).String()},
	}
	if sess.Error != "" {
		fields = append(fields, field{"Error", sess.Error})
	}
	renderFields(out, sess.Name, fields)
}
