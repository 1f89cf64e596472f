package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

const (
	keyCPUInfoAll     = "cpuinfo_all"
	keyTopAll         = "top_all"
	keyActivities     = "activities"
	keyWindows        = "windows"
	keyNetstatsDetail = "netstats_detail"
	keyTCP            = "tcp"
	keyTCP6           = "tcp6"
	keyUDP            = "udp"
	keyUDP6           = "udp6"
	keyMeminfoPrefix  = "meminfo_"
	keyStatusPrefix   = "status_"

	cmdNetstatsDetail = "shell dumpsys netstats detail"
)

// detailed is what the app_detailed domain caches per package.
type detailed struct {
	fps        *telemetry.FPSRecord
	power      *telemetry.PowerRecord
	foreground *bool
}

// appPlan tracks one package through a multi-app collection.
type appPlan struct {
	pkg  string
	snap *telemetry.AppSnapshot

	basic    bool
	detailed bool
	network  bool

	proc *parser.TopProcess
	name string
	uid  *int
}

func (p *appPlan) stale() bool {
	return p.basic || p.detailed || p.network
}

// CollectApp collects every app domain of one package.
func (c *Collector) CollectApp(ctx context.Context, pkg string) (*telemetry.AppSnapshot, error) {
	snaps, err := c.CollectApps(ctx, []string{pkg})
	if err != nil {
		return nil, err
	}

	return snaps[pkg], nil
}

// CollectApps collects several packages in two phases. Phase one takes shared
// snapshots (cpuinfo, top, uid lookups) once for all packages; the process
// name each package runs under is resolved from top. Phase two issues the
// per-package commands against the resolved process names.
func (c *Collector) CollectApps(ctx context.Context, pkgs []string) (map[string]*telemetry.AppSnapshot, error) {
	if err := c.requireDevice(); err != nil {
		return nil, err
	}

	plans, err := c.plan(pkgs)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*telemetry.AppSnapshot, len(plans))
	for _, p := range plans {
		out[p.pkg] = p.snap
	}

	var anyBasic, anyDetailed, anyNetwork bool
	for _, p := range plans {
		anyBasic = anyBasic || p.basic
		anyDetailed = anyDetailed || p.detailed
		anyNetwork = anyNetwork || p.network
	}
	if !anyBasic && !anyDetailed && !anyNetwork {
		return out, nil
	}

	start := c.now()
	timeout := c.runner.Timeout()

	phase1 := c.sharedBatch(plans, anyBasic || anyDetailed)
	shared, err := c.dispatch.ExecuteBatch(ctx, phase1, timeout)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	procs := parser.ParseTop(resultOr(shared, keyTopAll))
	for _, p := range plans {
		c.resolve(p, procs)
		if p.network && p.uid == nil {
			if err := c.resolveUID(ctx, p, shared); err != nil {
				return nil, err
			}
		}
	}
	sharedTook := c.now().Sub(start)

	perApp, err := c.dispatch.ExecuteBatch(ctx, c.perAppBatch(plans), timeout)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Every domain waits for the shared phase, then only for its own
	// commands and its own fallbacks
	took := make(map[Domain]time.Duration, 3)
	for key, res := range perApp {
		d := taskDomain(key)
		took[d] = max(took[d], res.Elapsed)
	}
	timed := func(d Domain, fn func() error) error {
		begin := c.now()
		err := fn()
		took[d] += c.now().Sub(begin)
		return err
	}

	r := c.newRound()
	cpuinfo := resultOr(shared, keyCPUInfoAll)
	for _, p := range plans {
		if !p.stale() {
			continue
		}

		if p.basic {
			if err := timed(DomainAppBasic, func() error {
				return c.assembleApp(ctx, r, p, cpuinfo, perApp, start)
			}); err != nil {
				return nil, err
			}
		}

		if p.network {
			if err := timed(DomainNetwork, func() error {
				return c.assembleNetwork(ctx, r, p, perApp, start)
			}); err != nil {
				return nil, err
			}
		}

		if p.detailed {
			if err := timed(DomainAppDetailed, func() error {
				return c.assembleDetailed(ctx, r, p, perApp, start)
			}); err != nil {
				return nil, err
			}
		}
	}

	// Outcomes were counted per package
	if anyBasic {
		c.observe(DomainAppBasic, sharedTook+took[DomainAppBasic], "")
	}
	if anyNetwork {
		c.observe(DomainNetwork, sharedTook+took[DomainNetwork], "")
	}
	if anyDetailed {
		c.observe(DomainAppDetailed, sharedTook+took[DomainAppDetailed], "")
	}

	return out, nil
}

// plan dedupes pkgs and fills each snapshot from fresh cache entries.
func (c *Collector) plan(pkgs []string) ([]*appPlan, error) {
	seen := make(map[string]struct{}, len(pkgs))
	plans := make([]*appPlan, 0, len(pkgs))

	for _, pkg := range pkgs {
		if !validPackage(pkg) {
			return nil, errors.New().WithData(ErrInvalidPackage, pkg)
		}
		if _, dup := seen[pkg]; dup {
			continue
		}
		seen[pkg] = struct{}{}

		p := &appPlan{pkg: pkg, snap: &telemetry.AppSnapshot{PackageName: pkg}, name: pkg}

		if rec, ok := freshValue[*telemetry.AppRecord](c, DomainAppBasic, c.key(DomainAppBasic, pkg)); ok {
			p.snap.App = rec
			collections.WithLabelValues(string(DomainAppBasic), outcomeFresh).Inc()
		} else {
			p.basic = true
		}

		if rec, ok := freshValue[*telemetry.NetworkRecord](c, DomainNetwork, c.key(DomainNetwork, pkg)); ok {
			p.snap.Network = rec
			collections.WithLabelValues(string(DomainNetwork), outcomeFresh).Inc()
		} else {
			p.network = true
		}

		if det, ok := freshValue[detailed](c, DomainAppDetailed, c.key(DomainAppDetailed, pkg)); ok {
			p.snap.FPS = det.fps
			p.snap.Power = det.power
			p.snap.Foreground = det.foreground
			collections.WithLabelValues(string(DomainAppDetailed), outcomeFresh).Inc()
		} else {
			p.detailed = true
		}

		if p.network {
			p.uid = c.cachedUID(pkg)
		}

		plans = append(plans, p)
	}

	return plans, nil
}

func (c *Collector) sharedBatch(plans []*appPlan, snapshots bool) adb.Batch {
	var b adb.Batch
	if snapshots {
		b = b.Add(keyCPUInfoAll, cmdCPUInfo).Add(keyTopAll, cmdTop)
	}

	for _, p := range plans {
		if p.network && p.uid == nil {
			b = b.AddCached(uidKey(p.pkg), "shell pm list packages -U "+p.pkg)
		}
	}

	return b
}

// resolve picks the OS process for the package from the top snapshot.
func (c *Collector) resolve(p *appPlan, procs []parser.TopProcess) {
	proc, ambiguous, ok := parser.ResolveProcess(procs, p.pkg)
	if !ok {
		return
	}

	if ambiguous {
		c.log.Debug().
			Str("package", p.pkg).
			Str("process", proc.Name).
			Msg("Several processes match package, using the busiest")
	}

	p.proc = &proc
	p.name = proc.Name
}

// taskDomain maps a phase two task key to the domain that waits for it.
func taskDomain(key string) Domain {
	switch {
	case strings.HasPrefix(key, keyMeminfoPrefix), strings.HasPrefix(key, keyStatusPrefix):
		return DomainAppBasic
	case key == keyNetstatsDetail, key == keyTCP, key == keyTCP6, key == keyUDP, key == keyUDP6:
		return DomainNetwork
	default:
		return DomainAppDetailed
	}
}

func (c *Collector) perAppBatch(plans []*appPlan) adb.Batch {
	var (
		b           adb.Batch
		anyDetailed bool
		anyUID      bool
	)

	for _, p := range plans {
		if p.basic {
			b = b.Add(keyMeminfoPrefix+p.pkg, "shell dumpsys meminfo "+p.name)
			if p.proc != nil {
				b = b.Add(keyStatusPrefix+p.pkg, fmt.Sprintf("shell cat /proc/%d/status", p.proc.PID))
			}
		}

		if p.detailed {
			anyDetailed = true
			b = b.Add("gfxinfo_"+p.pkg, "shell dumpsys gfxinfo "+p.name+" framestats")
			b = b.Add("batterystats_"+p.pkg, "shell dumpsys batterystats "+p.pkg)
		}

		if p.network && p.uid != nil {
			anyUID = true
		}
	}

	if anyDetailed {
		b = b.Add(keyActivities, "shell dumpsys activity activities").
			Add(keyWindows, "shell dumpsys window windows")
	}

	if anyUID {
		if !c.runner.Latency().IsSlow(adb.CommandName(cmdNetstatsDetail)) {
			b = b.Add(keyNetstatsDetail, cmdNetstatsDetail)
		}

		b = b.Add(keyTCP, "shell cat /proc/net/tcp").
			Add(keyTCP6, "shell cat /proc/net/tcp6").
			Add(keyUDP, "shell cat /proc/net/udp").
			Add(keyUDP6, "shell cat /proc/net/udp6")
	}

	return b
}

func (c *Collector) assembleApp(ctx context.Context, r *round, p *appPlan, cpuinfo string, results adb.Results, at time.Time) error {
	rec := &telemetry.AppRecord{Timestamp: at, PackageName: p.pkg, ProcessName: p.name}

	if cpu, ok := parser.ParseCPUInfoApp(cpuinfo, p.name); ok {
		rec.CPUUsage = &cpu
	} else if p.proc != nil {
		rec.CPUUsage = telemetry.Float(p.proc.CPU)
	}

	if p.proc != nil {
		if p.proc.RESKB > 0 {
			rec.MemoryRSS = telemetry.Float(p.proc.RESKB / 1024)
		}
		rec.MemoryPercent = telemetry.Float(p.proc.Mem)
	}

	if out, ok := results.Get(keyMeminfoPrefix + p.pkg); ok {
		applyAppMemory(rec, out)
	}

	if out, ok := results.Get(keyStatusPrefix + p.pkg); ok {
		status := parser.ParseProcStatus(out)
		rec.ThreadsCount = status.Threads
		if rec.MemoryRSS == nil {
			rec.MemoryRSS = status.VmRSS
		}
	}

	outcome := outcomeCollected
	if rec.Empty() {
		outcome = outcomeDegraded
		if err := c.collectAppSerial(ctx, r, rec); err != nil {
			return err
		}
		if rec.Empty() {
			outcome = outcomeEmpty
			rec = nil
		}
	}

	collections.WithLabelValues(string(DomainAppBasic), outcome).Inc()
	c.remember(c.key(DomainAppBasic, p.pkg), rec)
	p.snap.App = rec

	return nil
}

func applyAppMemory(rec *telemetry.AppRecord, meminfo string) {
	mem := parser.ParseAppMemory(meminfo)
	rec.MemoryPSS = mem.PSS
	rec.MemoryJava = mem.Java
	rec.MemoryNative = mem.Native
}

// collectAppSerial is the degraded path for one package: meminfo by package
// name and a cpuinfo shared with the other packages of the round, one command
// at a time.
func (c *Collector) collectAppSerial(ctx context.Context, r *round, rec *telemetry.AppRecord) error {
	out, ok, err := c.run(ctx, "shell dumpsys meminfo "+rec.PackageName)
	if err != nil {
		return err
	}
	if ok {
		applyAppMemory(rec, out)
	}

	out, ok, err = r.run(ctx, cmdCPUInfo)
	if err != nil {
		return err
	}
	if ok {
		if cpu, found := parser.ParseCPUInfoApp(out, rec.PackageName); found {
			rec.CPUUsage = &cpu
		}
	}

	return nil
}

func (c *Collector) assembleDetailed(ctx context.Context, r *round, p *appPlan, results adb.Results, at time.Time) error {
	det := detailed{}

	activities, _ := results.Get(keyActivities)
	windows, _ := results.Get(keyWindows)
	if fg, ok := parser.IsForeground(activities, windows, p.pkg); ok {
		det.foreground = &fg
	}

	if out, ok := results.Get("gfxinfo_" + p.pkg); ok {
		if stats, ok := parser.ParseFPS(out); ok {
			det.fps = fpsRecord(p.pkg, at, stats)
		}
	}

	batterystats, _ := results.Get("batterystats_" + p.pkg)
	power, err := c.collectPower(ctx, r, p.pkg, batterystats, estimateInput(p.snap, det.foreground))
	if err != nil {
		return err
	}
	if power != nil {
		power.Timestamp = at
	}
	det.power = power

	c.remember(c.key(DomainAppDetailed, p.pkg), det)
	p.snap.FPS = det.fps
	p.snap.Power = det.power
	p.snap.Foreground = det.foreground

	return nil
}

func fpsRecord(pkg string, at time.Time, stats parser.FrameStats) *telemetry.FPSRecord {
	return &telemetry.FPSRecord{
		Timestamp:     at,
		PackageName:   pkg,
		Source:        stats.Source,
		FPS:           telemetry.Float(stats.FPS),
		FrameTimeAvg:  stats.AvgMS,
		FrameTimeMax:  stats.MaxMS,
		FrameTimeP99:  stats.P99MS,
		TotalFrames:   stats.Total,
		DroppedFrames: stats.Dropped,
		JankFrames:    stats.Jank,
	}
}

// estimateInput gathers what is already known about a package for the power
// estimate.
func estimateInput(snap *telemetry.AppSnapshot, foreground *bool) parser.EstimateInput {
	in := parser.EstimateInput{Foreground: foreground}

	if snap.App != nil {
		in.CPUPercent = snap.App.CPUUsage
		in.MemoryMB = snap.App.MemoryPSS
		if in.MemoryMB == nil {
			in.MemoryMB = snap.App.MemoryRSS
		}
	}

	if n := snap.Network; n != nil {
		in.NetworkActive = positive(n.RxRate) || positive(n.TxRate)
	}

	return in
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func resultOr(results adb.Results, key string) string {
	out, _ := results.Get(key)
	return out
}
