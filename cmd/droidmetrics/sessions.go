package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/logger"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect recorded sessions",
	}

	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsShowCmd(a),
		newSessionsExportCmd(a),
	)

	return cmd
}

// withStorage opens the database for the duration of fn.
func (a *app) withStorage(fn func(repo *storage.Repository) error) error {
	repo, err := a.openStorage()
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	return fn(repo)
}

func newSessionsListCmd(a *app) *cobra.Command {
	var (
		limit  int
		format func() (Format, error)
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := format()
			if err != nil {
				return err
			}

			return a.withStorage(func(repo *storage.Repository) error {
				sessions, err := repo.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()

				return render(out, f, sessions, func() {
					now := time.Now()
					rows := make([][]string, 0, len(sessions))
					for _, s := range sessions {
						rows = append(rows, []string{
							strconv.FormatInt(s.ID, 10),
							s.Name,
							s.Device,
							string(s.Status),
							formatTime(&s.StartedAt),
							s.Duration(now).Round(time.Second).String(),
						})
					}
					renderTable(out, []string{"ID", "NAME", "DEVICE", "STATUS", "STARTED", "DURATION"}, rows)
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list (0 for all)")
	format = addFormatFlag(cmd)

	return cmd
}

func newSessionsShowCmd(a *app) *cobra.Command {
	var format func() (Format, error)

	cmd := &cobra.Command{
		Use:   "show <id|uuid>",
		Short: "Show a session summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := format()
			if err != nil {
				return err
			}

			return a.withStorage(func(repo *storage.Repository) error {
				sess, err := repo.FindSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				sum, err := repo.Summary(cmd.Context(), sess.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()

				return render(out, f, sum, func() {
					printSummary(out, sum)
				})
			})
		},
	}

	format = addFormatFlag(cmd)

	return cmd
}

func printSummary(out io.Writer, sum *storage.SessionSummary) {
	s := sum.Session

	fields := []field{
		{"ID", strconv.FormatInt(s.ID, 10)},
		{"UUID", s.UUID},
		{"Device", s.Device},
		{"Status", string(s.Status)},
		{"Started", formatTime(&s.StartedAt)},
		{"Ended", formatTime(s.EndedAt)},
		{"Duration", sum.Duration.Round(time.Second).String()},
	}
	if s.Error != "" {
		fields = append(fields, field{"Error", s.Error})
	}
	for _, rt := range telemetry.RecordTypes {
		fields = append(fields, field{string(rt) + " records", strconv.Itoa(sum.Counts[rt])})
	}
	fields = append(fields,
		field{"Avg CPU", formatFloat(sum.System.AvgCPU, "%")},
		field{"Max CPU", formatFloat(sum.System.MaxCPU, "%")},
		field{"Avg memory used", formatFloat(sum.System.AvgMemoryUsed, "MB")},
		field{"Avg battery", formatFloat(sum.System.AvgBattery, "%")},
		field{"Avg CPU temp", formatFloat(sum.System.AvgTemperature, "°C")},
	)
	renderFields(out, s.Name, fields)

	if len(sum.Apps) == 0 {
		return
	}

	rows := make([][]string, 0, len(sum.Apps))
	for _, as := range sum.Apps {
		rows = append(rows, []string{
			as.PackageName,
			strconv.Itoa(as.Samples),
			formatFloat(as.AvgCPU, "%"),
			formatFloat(as.MaxCPU, "%"),
			formatFloat(as.AvgMemoryPSS, "MB"),
			formatFloat(as.AvgFPS, ""),
			formatFloat(as.AvgPowerUsage, "mAh"),
		})
	}
	fmt.Fprintln(out)
	renderTable(out, []string{"PACKAGE", "SAMPLES", "AVG CPU", "MAX CPU", "AVG PSS", "AVG FPS", "AVG POWER"}, rows)
}

func newSessionsExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id|uuid>",
		Short: "Export a session and all of its records as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(func(repo *storage.Repository) error {
				sess, err := repo.FindSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					return repo.Export(cmd.Context(), sess.ID, cmd.OutOrStdout())
				}

				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := repo.Export(cmd.Context(), sess.ID, f); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}

				logger.Info().Str("path", output).Int64("session", sess.ID).Msg("Session exported")

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func newCleanupCmd(a *app) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished sessions older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("days") {
				a.cfg.Storage.RetentionDays = days
			}

			return a.withStorage(func(repo *storage.Repository) error {
				n, err := repo.Cleanup(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s)\n", n)

				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention period in days (default: storage.retention_days)")

	return cmd
}
