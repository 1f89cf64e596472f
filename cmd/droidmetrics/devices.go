package main

import (
	"context"
	"strings"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/collector"
	"github.com/spf13/cobra"
)

func newDevicesCmd(a *app) *cobra.Command {
	var format func() (Format, error)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices known to adb",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := format()
			if err != nil {
				return err
			}

			devices, err := adb.ListDevices(cmd.Context(), a.newRunner())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			return render(out, f, devices, func() {
				rows := make([][]string, 0, len(devices))
				for _, d := range devices {
					state := styleBad.Render(string(d.State))
					if d.Online() {
						state = styleGood.Render(string(d.State))
					}
					rows = append(rows, []string{d.Serial, state})
				}
				renderTable(out, []string{"SERIAL", "STATE"}, rows)
			})
		},
	}

	format = addFormatFlag(cmd)

	return cmd
}

// connected returns a collector bound to the configured device.
func (a *app) connected(ctx context.Context) (*collector.Collector, error) {
	col := a.newCollector(a.newRunner())
	if _, err := col.Connect(ctx, a.cfg.ADB.Device); err != nil {
		return nil, err
	}

	return col, nil
}

func newInfoCmd(a *app) *cobra.Command {
	var format func() (Format, error)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show device properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := format()
			if err != nil {
				return err
			}

			col, err := a.connected(cmd.Context())
			if err != nil {
				return err
			}

			info, err := col.DeviceInfo(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			return render(out, f, info, func() {
				screen := "-"
				if info.ScreenWidth != nil && info.ScreenHeight != nil {
					screen = formatInt(info.ScreenWidth, "") + "x" + formatInt(info.ScreenHeight, "")
				}

				renderFields(out, info.Serial, []field{
					{"Model", info.Model},
					{"Brand", info.Brand},
					{"Manufacturer", info.Manufacturer},
					{"Android", info.AndroidVersion + " (SDK " + info.SDK + ")"},
					{"ABI", info.CPUABI},
					{"Build", info.BuildID},
					{"Screen", screen},
					{"Density", formatInt(info.ScreenDensity, " dpi")},
				})
			})
		},
	}

	format = addFormatFlag(cmd)

	return cmd
}

func newAppsCmd(a *app) *cobra.Command {
	var (
		thirdParty bool
		filter     string
		format     func() (Format, error)
	)

	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := format()
			if err != nil {
				return err
			}

			col, err := a.connected(cmd.Context())
			if err != nil {
				return err
			}

			apps, err := col.InstalledApps(cmd.Context(), thirdParty)
			if err != nil {
				return err
			}

			if filter != "" {
				kept := apps[:0]
				for _, pkg := range apps {
					if strings.Contains(pkg.PackageName, filter) {
						kept = append(kept, pkg)
					}
				}
				apps = kept
			}

			out := cmd.OutOrStdout()

			return render(out, f, apps, func() {
				rows := make([][]string, 0, len(apps))
				for _, pkg := range apps {
					kind := "user"
					if pkg.System {
						kind = "system"
					}
					rows = append(rows, []string{pkg.PackageName, pkg.DisplayName, kind})
				}
				renderTable(out, []string{"PACKAGE", "NAME", "KIND"}, rows)
			})
		},
	}

	cmd.Flags().BoolVar(&thirdParty, "third-party", false, "Only list third-party packages")
	cmd.Flags().StringVar(&filter, "filter", "", "Only list packages containing this text")
	format = addFormatFlag(cmd)

	return cmd
}
