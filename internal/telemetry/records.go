// Package telemetry defines the normalized records produced by the collector.
// Metrics that could not be read are nil, never zero.
package telemetry

import "time"

// RecordType tags a record by telemetry domain.
type RecordType string

const (
	RecordSystem  RecordType = "system"
	RecordApp     RecordType = "app"
	RecordNetwork RecordType = "network"
	RecordFPS     RecordType = "fps"
	RecordPower   RecordType = "power"
)

// RecordTypes lists every record type in flush order.
var RecordTypes = []RecordType{RecordSystem, RecordApp, RecordNetwork, RecordFPS, RecordPower}

// Record is implemented by every record variant.
type Record interface {
	Type() RecordType
	CapturedAt() time.Time
}

type SystemRecord struct {
	Timestamp time.Time `json:"timestamp"`

	CPUUsage       *float64 `json:"cpu_usage,omitempty"`
	CPUUser        *float64 `json:"cpu_user,omitempty"`
	CPUKernel      *float64 `json:"cpu_kernel,omitempty"`
	CPUIOWait      *float64 `json:"cpu_iowait,omitempty"`
	CPUIRQ         *float64 `json:"cpu_irq,omitempty"`
	CPUSoftIRQ     *float64 `json:"cpu_softirq,omitempty"`
	CPUTemperature *float64 `json:"cpu_temperature,omitempty"`

	Load1  *float64 `json:"load_1,omitempty"`
	Load5  *float64 `json:"load_5,omitempty"`
	Load15 *float64 `json:"load_15,omitempty"`

	// Memory in MB
	MemoryTotal     *float64 `json:"memory_total,omitempty"`
	MemoryAvailable *float64 `json:"memory_available,omitempty"`
	MemoryUsed      *float64 `json:"memory_used,omitempty"`
	MemoryFree      *float64 `json:"memory_free,omitempty"`

	BatteryLevel       *float64 `json:"battery_level,omitempty"`
	BatteryTemperature *float64 `json:"battery_temperature,omitempty"`
	BatteryVoltage     *float64 `json:"battery_voltage,omitempty"`
	BatteryHealth      *int     `json:"battery_health,omitempty"`
	BatteryStatus      *int     `json:"battery_status,omitempty"`

	// Cumulative bytes across non-loopback interfaces and KB/s rates derived
	// from the previous sample
	NetworkRxBytes *float64 `json:"network_rx_bytes,omitempty"`
	NetworkTxBytes *float64 `json:"network_tx_bytes,omitempty"`
	NetworkRxRate  *float64 `json:"network_rx_rate,omitempty"`
	NetworkTxRate  *float64 `json:"network_tx_rate,omitempty"`

	ScreenBrightness *float64 `json:"screen_brightness,omitempty"`
	ScreenOn         *bool    `json:"screen_on,omitempty"`
}

func (*SystemRecord) Type() RecordType { return RecordSystem }
func (r *SystemRecord) CapturedAt() time.Time { return r.Timestamp }

// Empty reports whether no metric was collected.
func (r *SystemRecord) Empty() bool {
	return r.CPUUsage == nil && r.MemoryTotal == nil && r.BatteryLevel == nil &&
		r.Load1 == nil && r.NetworkRxBytes == nil && r.CPUTemperature == nil &&
		r.ScreenBrightness == nil && r.ScreenOn == nil
}

type AppRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	PackageName string    `json:"package_name"`
	ProcessName string    `json:"process_name,omitempty"`

	CPUUsage *float64 `json:"cpu_usage,omitempty"`
	// Memory in MB
	MemoryPSS     *float64 `json:"memory_pss,omitempty"`
	MemoryRSS     *float64 `json:"memory_rss,omitempty"`
	MemoryJava    *float64 `json:"memory_java,omitempty"`
	MemoryNative  *float64 `json:"memory_native,omitempty"`
	MemoryPercent *float64 `json:"memory_percent,omitempty"`
	ThreadsCount  *int     `json:"threads_count,omitempty"`
}

func (*AppRecord) Type() RecordType { return RecordApp }
func (r *AppRecord) CapturedAt() time.Time { return r.Timestamp }

func (r *AppRecord) Empty() bool {
	return r.CPUUsage == nil && r.MemoryPSS == nil && r.MemoryRSS == nil &&
		r.MemoryJava == nil && r.MemoryNative == nil && r.ThreadsCount == nil
}

type NetworkRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	PackageName string    `json:"package_name"`
	UID         *int      `json:"uid,omitempty"`
	Method      string    `json:"method,omitempty"`

	RxBytes   *float64 `json:"rx_bytes,omitempty"`
	TxBytes   *float64 `json:"tx_bytes,omitempty"`
	RxPackets *int     `json:"rx_packets,omitempty"`
	TxPackets *int     `json:"tx_packets,omitempty"`
	// KB/s since the previous sample for this package
	RxRate *float64 `json:"rx_rate,omitempty"`
	TxRate *float64 `json:"tx_rate,omitempty"`

	ConnectionCount *int `json:"connection_count,omitempty"`
	TCPConnections  *int `json:"tcp_connections,omitempty"`
	UDPConnections  *int `json:"udp_connections,omitempty"`
}

func (*NetworkRecord) Type() RecordType { return RecordNetwork }
func (r *NetworkRecord) CapturedAt() time.Time { return r.Timestamp }

type FPSRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	PackageName string    `json:"package_name"`
	Source      string    `json:"source,omitempty"`

	FPS *float64 `json:"fps,omitempty"`
	// Frame times in ms
	FrameTimeAvg   *float64 `json:"frame_time_avg,omitempty"`
	FrameTimeMax   *float64 `json:"frame_time_max,omitempty"`
	FrameTimeP99   *float64 `json:"frame_time_p99,omitempty"`
	TotalFrames    *int     `json:"total_frames,omitempty"`
	DroppedFrames  *int     `json:"dropped_frames,omitempty"`
	JankFrames     *int     `json:"jank_frames,omitempty"`
	// Schema columns kept for archive compatibility; gfxinfo carries no GPU
	// load or temperature, so the collector leaves them nil.
	GPUUsage       *float64 `json:"gpu_usage,omitempty"`
	GPUTemperature *float64 `json:"gpu_temperature,omitempty"`
}

func (*FPSRecord) Type() RecordType { return RecordFPS }
func (r *FPSRecord) CapturedAt() time.Time { return r.Timestamp }

// PowerSource records which step of the power fallback chain produced the
// value.
type PowerSource string

const (
	PowerDirect    PowerSource = "batterystats"
	PowerGeneral   PowerSource = "batterystats_general"
	PowerEstimated PowerSource = "estimate"
)

type PowerRecord struct {
	Timestamp   time.Time   `json:"timestamp"`
	PackageName string      `json:"package_name"`
	Source      PowerSource `json:"source,omitempty"`

	// mAh
	PowerUsage     *float64 `json:"power_usage,omitempty"`
	CPUPower       *float64 `json:"cpu_power,omitempty"`
	GPUPower       *float64 `json:"gpu_power,omitempty"`
	DisplayPower   *float64 `json:"display_power,omitempty"`
	WifiPower      *float64 `json:"wifi_power,omitempty"`
	BluetoothPower *float64 `json:"bluetooth_power,omitempty"`
	CellularPower  *float64 `json:"cellular_power,omitempty"`
	CameraPower    *float64 `json:"camera_power,omitempty"`
	AudioPower     *float64 `json:"audio_power,omitempty"`
	VideoPower     *float64 `json:"video_power,omitempty"`

	WakelockCount *int `json:"wakelock_count,omitempty"`
	AlarmCount    *int `json:"alarm_count,omitempty"`
}

func (*PowerRecord) Type() RecordType { return RecordPower }
func (r *PowerRecord) CapturedAt() time.Time { return r.Timestamp }

// AppSnapshot merges the per-app records of one collection. Records that
// produced no data are nil.
type AppSnapshot struct {
	PackageName string         `json:"package_name"`
	Foreground  *bool          `json:"foreground,omitempty"`
	App         *AppRecord     `json:"app,omitempty"`
	Network     *NetworkRecord `json:"network,omitempty"`
	FPS         *FPSRecord     `json:"fps,omitempty"`
	Power       *PowerRecord   `json:"power,omitempty"`
}

// Records returns the non-nil records of the snapshot.
func (s *AppSnapshot) Records() []Record {
	var out []Record
	if s.App != nil {
		out = append(out, s.App)
	}
	if s.Network != nil {
		out = append(out, s.Network)
	}
	if s.FPS != nil {
		out = append(out, s.FPS)
	}
	if s.Power != nil {
		out = append(out, s.Power)
	}

	return out
}

type DeviceInfo struct {
	Serial         string    `json:"serial"`
	Model          string    `json:"model,omitempty"`
	Brand          string    `json:"brand,omitempty"`
	Manufacturer   string    `json:"manufacturer,omitempty"`
	AndroidVersion string    `json:"android_version,omitempty"`
	SDK            string    `json:"sdk,omitempty"`
	CPUABI         string    `json:"cpu_abi,omitempty"`
	BuildID        string    `json:"build_id,omitempty"`
	ScreenWidth    *int      `json:"screen_width,omitempty"`
	ScreenHeight   *int      `json:"screen_height,omitempty"`
	ScreenDensity  *int      `json:"screen_density,omitempty"`
	CollectedAt    time.Time `json:"collected_at"`
}

type AppInfo struct {
	PackageName string `json:"package_name"`
	DisplayName string `json:"display_name"`
	System      bool   `json:"system"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
