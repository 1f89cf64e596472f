package collector

import (
	"context"

	"codeberg.org/mutker/droidmetrics/internal/parser"
	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

const cmdBatterystats = "shell dumpsys batterystats"

// collectPower walks the power fallback chain: the package's own
// batterystats (plain, then --charged), the package section of the general
// batterystats dump, and finally the heuristic estimate. A nil record means
// nothing was found and no estimate was possible.
func (c *Collector) collectPower(ctx context.Context, r *round, pkg, direct string, in parser.EstimateInput) (*telemetry.PowerRecord, error) {
	reading := parser.ParsePower(direct)
	source := telemetry.PowerDirect

	if reading.Usage == nil {
		out, ok, err := r.run(ctx, cmdBatterystats+" --charged "+pkg)
		if err != nil {
			return nil, err
		}
		if ok {
			reading = mergeReading(reading, parser.ParsePower(out))
		}
	}

	if reading.Usage == nil {
		out, ok, err := r.run(ctx, cmdBatterystats)
		if err != nil {
			return nil, err
		}
		if ok {
			reading = mergeReading(reading, parser.ParsePower(parser.PackageSection(out, pkg)))
			if reading.Usage != nil {
				source = telemetry.PowerGeneral
			}
		}
	}

	if reading.Usage == nil {
		if v, ok := c.cfg.Estimator.Estimate(in); ok {
			reading.Usage = &v
			source = telemetry.PowerEstimated
		}
	}

	if reading.Empty() {
		return nil, nil
	}

	rec := &telemetry.PowerRecord{
		PackageName:   pkg,
		PowerUsage:    reading.Usage,
		WakelockCount: reading.Wakelocks,
		AlarmCount:    reading.Alarms,
	}
	if reading.Usage != nil {
		rec.Source = source
		powerSource.WithLabelValues(string(source)).Inc()
	}

	for field, v := range reading.Subsystems {
		if dst := subsystemField(rec, field); dst != nil {
			*dst = telemetry.Float(v)
		}
	}

	return rec, nil
}

// mergeReading keeps what base already has and fills the rest from next.
func mergeReading(base, next parser.PowerReading) parser.PowerReading {
	if base.Usage == nil {
		base.Usage = next.Usage
		base.Rule = next.Rule
	}
	if base.Wakelocks == nil {
		base.Wakelocks = next.Wakelocks
	}
	if base.Alarms == nil {
		base.Alarms = next.Alarms
	}

	for field, v := range next.Subsystems {
		if base.Subsystems == nil {
			base.Subsystems = make(map[string]float64)
		}
		if _, ok := base.Subsystems[field]; !ok {
			base.Subsystems[field] = v
		}
	}

	return base
}

func subsystemField(rec *telemetry.PowerRecord, field string) **float64 {
	switch field {
	case "cpu_power":
		return &rec.CPUPower
	case "gpu_power":
		return &rec.GPUPower
	case "display_power":
		return &rec.DisplayPower
	case "wifi_power":
		return &rec.WifiPower
	case "bluetooth_power":
		return &rec.BluetoothPower
	case "cellular_power":
		return &rec.CellularPower
	case "camera_power":
		return &rec.CameraPower
	case "audio_power":
		return &rec.AudioPower
	case "video_power":
		return &rec.VideoPower
	}

	return nil
}

// ResetBatteryStats clears the device's battery statistics so that later
// readings cover only the monitoring period.
func (c *Collector) ResetBatteryStats(ctx context.Context) error {
	if err := c.requireDevice(); err != nil {
		return err
	}

	if _, err := c.runner.Run(ctx, cmdBatterystats+" --reset"); err != nil {
		return err
	}

	c.log.Info().Str("device", c.runner.Device()).Msg("Battery statistics reset")

	return nil
}
