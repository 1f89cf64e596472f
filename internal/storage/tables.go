package storage

import (
	"strings"

	"codeberg.org/mutker/droidmetrics/internal/telemetry"
)

type column struct {
	name    string
	sqlType string
}

// recordTable maps one record type onto its table. Every table also carries
// id, session_id and timestamp (unix milliseconds).
type recordTable struct {
	name       string
	perPackage bool
	columns    []column
	values     func(telemetry.Record) ([]any, bool)
}

var recordTables = map[telemetry.RecordType]recordTable{
	telemetry.RecordSystem: {
		name: "system_records",
		columns: []column{
			{"cpu_usage", "REAL"}, {"cpu_user", "REAL"}, {"cpu_kernel", "REAL"},
			{"cpu_iowait", "REAL"}, {"cpu_irq", "REAL"}, {"cpu_softirq", "REAL"},
			{"cpu_temperature", "REAL"},
			{"load_1", "REAL"}, {"load_5", "REAL"}, {"load_15", "REAL"},
			{"memory_total", "REAL"}, {"memory_available", "REAL"},
			{"memory_used", "REAL"}, {"memory_free", "REAL"},
			{"battery_level", "REAL"}, {"battery_temperature", "REAL"},
			{"battery_voltage", "REAL"}, {"battery_health", "INTEGER"},
			{"battery_status", "INTEGER"},
			{"network_rx_bytes", "REAL"}, {"network_tx_bytes", "REAL"},
			{"network_rx_rate", "REAL"}, {"network_tx_rate", "REAL"},
			{"screen_brightness", "REAL"}, {"screen_on", "INTEGER"},
		},
		values: func(rec telemetry.Record) ([]any, bool) {
			r, ok := rec.(*telemetry.SystemRecord)
			if !ok {
				return nil, false
			}

			return []any{
				r.CPUUsage, r.CPUUser, r.CPUKernel,
				r.CPUIOWait, r.CPUIRQ, r.CPUSoftIRQ,
				r.CPUTemperature,
				r.Load1, r.Load5, r.Load15,
				r.MemoryTotal, r.MemoryAvailable,
				r.MemoryUsed, r.MemoryFree,
				r.BatteryLevel, r.BatteryTemperature,
				r.BatteryVoltage, r.BatteryHealth,
				r.BatteryStatus,
				r.NetworkRxBytes, r.NetworkTxBytes,
				r.NetworkRxRate, r.NetworkTxRate,
				r.ScreenBrightness, r.ScreenOn,
			}, true
		},
	},
	telemetry.RecordApp: {
		name:       "app_records",
		perPackage: true,
		columns: []column{
			{"process_name", "TEXT"}, {"cpu_usage", "REAL"},
			{"memory_pss", "REAL"}, {"memory_rss", "REAL"},
			{"memory_java", "REAL"}, {"memory_native", "REAL"},
			{"memory_percent", "REAL"}, {"threads_count", "INTEGER"},
		},
		values: func(rec telemetry.Record) ([]any, bool) {
			r, ok := rec.(*telemetry.AppRecord)
			if !ok {
				return nil, false
			}

			return []any{
				r.PackageName,
				nullString(r.ProcessName), r.CPUUsage,
				r.MemoryPSS, r.MemoryRSS,
				r.MemoryJava, r.MemoryNative,
				r.MemoryPercent, r.ThreadsCount,
			}, true
		},
	},
	telemetry.RecordNetwork: {
		name:       "network_records",
		perPackage: true,
		columns: []column{
			{"uid", "INTEGER"}, {"method", "TEXT"},
			{"rx_bytes", "REAL"}, {"tx_bytes", "REAL"},
			{"rx_packets", "INTEGER"}, {"tx_packets", "INTEGER"},
			{"rx_rate", "REAL"}, {"tx_rate", "REAL"},
			{"connection_count", "INTEGER"}, {"tcp_connections", "INTEGER"},
			{"udp_connections", "INTEGER"},
		},
		values: func(rec telemetry.Record) ([]any, bool) {
			r, ok := rec.(*telemetry.NetworkRecord)
			if !ok {
				return nil, false
			}

			return []any{
				r.PackageName,
				r.UID, nullString(r.Method),
				r.RxBytes, r.TxBytes,
				r.RxPackets, r.TxPackets,
				r.RxRate, r.TxRate,
				r.ConnectionCount, r.TCPConnections,
				r.UDPConnections,
			}, true
		},
	},
	telemetry.RecordFPS: {
		name:       "fps_records",
		perPackage: true,
		columns: []column{
			{"source", "TEXT"}, {"fps", "REAL"},
			{"frame_time_avg", "REAL"}, {"frame_time_max", "REAL"},
			{"frame_time_p99", "REAL"}, {"total_frames", "INTEGER"},
			{"dropped_frames", "INTEGER"}, {"jank_frames", "INTEGER"},
			{"gpu_usage", "REAL"}, {"gpu_temperature", "REAL"},
		},
		values: func(rec telemetry.Record) ([]any, bool) {
			r, ok := rec.(*telemetry.FPSRecord)
			if !ok {
				return nil, false
			}

			return []any{
				r.PackageName,
				nullString(r.Source), r.FPS,
				r.FrameTimeAvg, r.FrameTimeMax,
				r.FrameTimeP99, r.TotalFrames,
				r.DroppedFrames, r.JankFrames,
				r.GPUUsage, r.GPUTemperature,
			}, true
		},
	},
	telemetry.RecordPower: {
		name:       "power_records",
		perPackage: true,
		columns: []column{
			{"source", "TEXT"}, {"power_usage", "REAL"},
			{"cpu_power", "REAL"}, {"gpu_power", "REAL"},
			{"display_power", "REAL"}, {"wifi_power", "REAL"},
			{"bluetooth_power", "REAL"}, {"cellular_power", "REAL"},
			{"camera_power", "REAL"}, {"audio_power", "REAL"},
			{"video_power", "REAL"},
			{"wakelock_count", "INTEGER"}, {"alarm_count", "INTEGER"},
		},
		values: func(rec telemetry.Record) ([]any, bool) {
			r, ok := rec.(*telemetry.PowerRecord)
			if !ok {
				return nil, false
			}

			return []any{
				r.PackageName,
				nullString(string(r.Source)), r.PowerUsage,
				r.CPUPower, r.GPUPower,
				r.DisplayPower, r.WifiPower,
				r.BluetoothPower, r.CellularPower,
				r.CameraPower, r.AudioPower,
				r.VideoPower,
				r.WakelockCount, r.AlarmCount,
			}, true
		},
	},
}

// columnNames returns the data columns in insert order, package_name first
// for per-package tables.
func (t recordTable) columnNames() []string {
	names := make([]string, 0, len(t.columns)+1)
	if t.perPackage {
		names = append(names, "package_name")
	}
	for _, c := range t.columns {
		names = append(names, c.name)
	}

	return names
}

func (t recordTable) createSQL() string {
	var b strings.Builder

	b.WriteString("CREATE TABLE IF NOT EXISTS " + t.name + " (\n")
	b.WriteString("    id         INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("    session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,\n")
	b.WriteString("    timestamp  INTEGER NOT NULL")
	if t.perPackage {
		b.WriteString(",\n    package_name TEXT NOT NULL")
	}
	for _, c := range t.columns {
		b.WriteString(",\n    " + c.name + " " + c.sqlType)
	}
	b.WriteString("\n);\n")
	b.WriteString("CREATE INDEX IF NOT EXISTS idx_" + t.name + "_session ON " +
		t.name + " (session_id, timestamp);\n")

	return b.String()
}

func (t recordTable) insertSQL() string {
	names := append([]string{"session_id", "timestamp"}, t.columnNames()...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	return "INSERT INTO " + t.name + " (" + strings.Join(names, ", ") +
		") VALUES (" + placeholders + ")"
}

// tableNames lists record tables in telemetry.RecordTypes order.
func tableNames() []string {
	names := make([]string, 0, len(telemetry.RecordTypes))
	for _, rt := range telemetry.RecordTypes {
		names = append(names, recordTables[rt].name)
	}

	return names
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
