package collector

import (
	"context"
	"sort"
	"strings"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

var deviceProps = []struct {
	key  string
	prop string
	set  func(*telemetry.DeviceInfo, string)
}{
	{"model", "ro.product.model", func(d *telemetry.DeviceInfo, v string) { d.Model = v }},
	{"brand", "ro.product.brand", func(d *telemetry.DeviceInfo, v string) { d.Brand = v }},
	{"manufacturer", "ro.product.manufacturer", func(d *telemetry.DeviceInfo, v string) { d.Manufacturer = v }},
	{"release", "ro.build.version.release", func(d *telemetry.DeviceInfo, v string) { d.AndroidVersion = v }},
	{"sdk", "ro.build.version.sdk", func(d *telemetry.DeviceInfo, v string) { d.SDK = v }},
	{"abi", "ro.product.cpu.abi", func(d *telemetry.DeviceInfo, v string) { d.CPUABI = v }},
	{"build_id", "ro.build.id", func(d *telemetry.DeviceInfo, v string) { d.BuildID = v }},
}

// DeviceInfo returns the identity and display properties of the device.
func (c *Collector) DeviceInfo(ctx context.Context) (*telemetry.DeviceInfo, error) {
	if err := c.requireDevice(); err != nil {
		return nil, err
	}

	key := c.key(DomainDeviceInfo, "")
	if info, ok := freshValue[*telemetry.DeviceInfo](c, DomainDeviceInfo, key); ok {
		collections.WithLabelValues(string(DomainDeviceInfo), outcomeFresh).Inc()
		return info, nil
	}

	start := c.now()
	var batch adb.Batch
	for _, p := range deviceProps {
		batch = batch.Add(p.key, "shell getprop "+p.prop)
	}
	batch = batch.Add("wm_size", "shell wm size").Add("wm_density", "shell wm density")

	results, err := c.dispatch.ExecuteBatch(ctx, batch, c.runner.Timeout())
	if err != nil {
		return nil, err
	}

	info := &telemetry.DeviceInfo{Serial: c.runner.Device(), CollectedAt: start}
	for _, p := range deviceProps {
		if out, ok := results.Get(p.key); ok {
			p.set(info, strings.TrimSpace(out))
		}
	}

	if out, ok := results.Get("wm_size"); ok {
		if w, h, ok := parser.ParseWMSize(out); ok {
			info.ScreenWidth = telemetry.Int(w)
			info.ScreenHeight = telemetry.Int(h)
		}
	}

	if out, ok := results.Get("wm_density"); ok {
		if d, ok := parser.ParseWMDensity(out); ok {
			info.ScreenDensity = telemetry.Int(d)
		}
	}

	outcome := outcomeCollected
	if results.Present() == 0 {
		outcome = outcomeEmpty
	}

	c.finish(DomainDeviceInfo, start, outcome)
	c.remember(key, info)

	return info, nil
}

// InstalledApps lists the packages worth monitoring, sorted by display name.
// With thirdPartyOnly only user-installed packages are returned.
func (c *Collector) InstalledApps(ctx context.Context, thirdPartyOnly bool) ([]telemetry.AppInfo, error) {
	if err := c.requireDevice(); err != nil {
		return nil, err
	}

	batch := adb.Batch{}.
		Add("all", "shell pm list packages").
		Add("third_party", "shell pm list packages -3")

	results, err := c.dispatch.ExecuteBatch(ctx, batch, c.runner.Timeout())
	if err != nil {
		return nil, err
	}

	all, ok := results.Get("all")
	if !ok {
		return nil, errors.New().WithMessage(ErrNoData, "package list unavailable")
	}

	thirdParty := make(map[string]struct{})
	if out, ok := results.Get("third_party"); ok {
		for _, pkg := range parser.ParsePackages(out) {
			thirdParty[pkg] = struct{}{}
		}
	}

	var apps []telemetry.AppInfo
	for _, pkg := range parser.ParsePackages(all) {
		if parser.IsHiddenPackage(pkg) {
			continue
		}

		_, user := thirdParty[pkg]
		if thirdPartyOnly && !user {
			continue
		}

		apps = append(apps, telemetry.AppInfo{
			PackageName: pkg,
			DisplayName: parser.DisplayName(pkg),
			System:      !user,
		})
	}

	sort.SliceStable(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].DisplayName) < strings.ToLower(apps[j].DisplayName)
	})

	return apps, nil
}
