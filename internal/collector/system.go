package collector

import (
	"context"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

const (
	keyCPUInfo    = "cpuinfo"
	keyMeminfo    = "meminfo"
	keyLoadavg    = "loadavg"
	keyBattery    = "battery"
	keyNetDev     = "netdev"
	keyThermal0   = "thermal0"
	keyThermal1   = "thermal1"
	keyBrightness = "brightness"
	keyDisplay    = "display"

	cmdCPUInfo  = "shell dumpsys cpuinfo"
	cmdTop      = "shell top -n 1 -b"
	cmdMeminfo  = "shell cat /proc/meminfo"
	cmdBattery  = "shell dumpsys battery"
	cmdNetstats = "shell dumpsys netstats"
)

func systemBatch() adb.Batch {
	return adb.Batch{}.
		Add(keyCPUInfo, cmdCPUInfo).
		Add(keyMeminfo, cmdMeminfo).
		Add(keyLoadavg, "shell cat /proc/loadavg").
		Add(keyBattery, cmdBattery).
		Add(keyNetDev, "shell cat /proc/net/dev").
		Add(keyThermal0, "shell cat /sys/class/thermal/thermal_zone0/temp").
		Add(keyThermal1, "shell cat /sys/class/thermal/thermal_zone1/temp").
		Add(keyBrightness, "shell settings get system screen_brightness").
		Add(keyDisplay, "shell dumpsys power | grep -e Display -e mWakefulness")
}

// CollectSystem returns the device-wide record. A fresh record is served from
// the cache. When the batch yields nothing usable the metrics are collected
// one command at a time instead.
func (c *Collector) CollectSystem(ctx context.Context) (*telemetry.SystemRecord, error) {
	if err := c.requireDevice(); err != nil {
		return nil, err
	}

	key := c.key(DomainSystem, "")
	if rec, ok := freshValue[*telemetry.SystemRecord](c, DomainSystem, key); ok {
		collections.WithLabelValues(string(DomainSystem), outcomeFresh).Inc()
		return rec, nil
	}

	start := c.now()
	results, err := c.dispatch.ExecuteBatch(ctx, systemBatch(), c.runner.Timeout())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &telemetry.SystemRecord{Timestamp: start}
	applySystem(rec, results)

	outcome := outcomeCollected
	if rec.Empty() {
		outcome = outcomeDegraded
		if err := c.collectSystemSerial(ctx, rec); err != nil {
			return nil, err
		}
	} else if err := c.fillSystemGaps(ctx, rec); err != nil {
		return nil, err
	}

	if rec.NetworkRxBytes != nil && rec.NetworkTxBytes != nil {
		rec.NetworkRxRate, rec.NetworkTxRate = c.rates("system", *rec.NetworkRxBytes, *rec.NetworkTxBytes)
	}

	if rec.Empty() {
		outcome = outcomeEmpty
		c.log.Debug().Msg("System collection produced no data")
	}

	c.finish(DomainSystem, start, outcome)
	c.remember(key, rec)

	return rec, nil
}

func applySystem(rec *telemetry.SystemRecord, results adb.Results) {
	if out, ok := results.Get(keyCPUInfo); ok {
		applyCPU(rec, out)
	}

	if out, ok := results.Get(keyMeminfo); ok {
		applyMemory(rec, out)
	}

	if out, ok := results.Get(keyLoadavg); ok {
		if load, ok := parser.ParseLoadavg(out); ok {
			rec.Load1 = telemetry.Float(load.Load1)
			rec.Load5 = telemetry.Float(load.Load5)
			rec.Load15 = telemetry.Float(load.Load15)
		}
	}

	if out, ok := results.Get(keyBattery); ok {
		applyBattery(rec, out)
	}

	if out, ok := results.Get(keyNetDev); ok {
		if traffic, ok := parser.ParseNetDev(out); ok {
			rec.NetworkRxBytes = telemetry.Float(traffic.RxBytes)
			rec.NetworkTxBytes = telemetry.Float(traffic.TxBytes)
		}
	}

	for _, k := range []string{keyThermal0, keyThermal1} {
		out, ok := results.Get(k)
		if !ok {
			continue
		}
		if temp, ok := parser.ParseThermal(out); ok {
			rec.CPUTemperature = &temp
			break
		}
	}

	if out, ok := results.Get(keyBrightness); ok {
		if b, ok := parser.ParseBrightness(out); ok {
			rec.ScreenBrightness = &b
		}
	}

	if out, ok := results.Get(keyDisplay); ok {
		if on, ok := parser.ParseScreenOn(out); ok {
			rec.ScreenOn = &on
		}
	}
}

func applyCPU(rec *telemetry.SystemRecord, cpuinfo string) {
	cpu, ok := parser.ParseCPUInfoTotal(cpuinfo)
	if !ok {
		return
	}

	rec.CPUUsage = telemetry.Float(cpu.Total)
	rec.CPUUser = cpu.User
	rec.CPUKernel = cpu.Kernel
	rec.CPUIOWait = cpu.IOWait
	rec.CPUIRQ = cpu.IRQ
	rec.CPUSoftIRQ = cpu.SoftIRQ
}

func applyMemory(rec *telemetry.SystemRecord, meminfo string) {
	mem, ok := parser.ParseMeminfo(meminfo)
	if !ok {
		return
	}

	rec.MemoryTotal = telemetry.Float(mem.Total)
	rec.MemoryAvailable = mem.Available
	rec.MemoryUsed = mem.Used()
	rec.MemoryFree = mem.Free
}

func applyBattery(rec *telemetry.SystemRecord, out string) {
	b := parser.ParseBattery(out)
	rec.BatteryLevel = b.Level
	rec.BatteryTemperature = b.Temperature
	rec.BatteryVoltage = b.Voltage
	rec.BatteryHealth = b.Health
	rec.BatteryStatus = b.Status
}

// fillSystemGaps tries the secondary source of metrics the batch missed.
func (c *Collector) fillSystemGaps(ctx context.Context, rec *telemetry.SystemRecord) error {
	if rec.CPUUsage == nil {
		out, ok, err := c.run(ctx, cmdTop)
		if err != nil {
			return err
		}
		if ok {
			if cpu, ok := parser.ParseTopCPU(out); ok {
				rec.CPUUsage = &cpu
			}
		}
	}

	if rec.NetworkRxBytes == nil {
		out, ok, err := c.run(ctx, cmdNetstats)
		if err != nil {
			return err
		}
		if ok {
			if traffic, ok := parser.ParseNetstatsTotals(out); ok {
				rec.NetworkRxBytes = telemetry.Float(traffic.RxBytes)
				rec.NetworkTxBytes = telemetry.Float(traffic.TxBytes)
			}
		}
	}

	return nil
}

// collectSystemSerial is the degraded path: the core metrics, one command at
// a time.
func (c *Collector) collectSystemSerial(ctx context.Context, rec *telemetry.SystemRecord) error {
	if out, ok, err := c.run(ctx, cmdCPUInfo); err != nil {
		return err
	} else if ok {
		applyCPU(rec, out)
	}

	if out, ok, err := c.run(ctx, cmdMeminfo); err != nil {
		return err
	} else if ok {
		applyMemory(rec, out)
	}

	if out, ok, err := c.run(ctx, cmdBattery); err != nil {
		return err
	} else if ok {
		applyBattery(rec, out)
	}

	return c.fillSystemGaps(ctx, rec)
}
