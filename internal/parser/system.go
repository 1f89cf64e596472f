package parser

import (
	"bufio"
	"regexp"
	"strings"
)

// CPUBreakdown is the device-wide CPU load split by kind, in percent.
type CPUBreakdown struct {
	Total   float64
	User    *float64
	Kernel  *float64
	IOWait  *float64
	IRQ     *float64
	SoftIRQ *float64
}

var (
	cpuinfoTotalRe = regexp.MustCompile(number + `%\s+TOTAL:(.*)`)
	cpuinfoPartRe  = regexp.MustCompile(number + `%\s+(user|kernel|iowait|irq|softirq)`)
	topCPURe       = regexp.MustCompile(`(\d+)%cpu\s+.*?(\d+)%idle`)
)

// ParseCPUInfoTotal reads the TOTAL line of dumpsys cpuinfo, e.g.
// "87% TOTAL: 54% user + 29% kernel + 0% iowait + 3.1% irq + 0.8% softirq".
func ParseCPUInfoTotal(text string) (CPUBreakdown, bool) {
	m := cpuinfoTotalRe.FindStringSubmatch(text)
	if m == nil {
		return CPUBreakdown{}, false
	}

	total, ok := atof(m[1])
	if !ok || total < 0 {
		return CPUBreakdown{}, false
	}

	// Multi-core devices may report above 100
	out := CPUBreakdown{Total: min(total, 100)}
	for _, part := range cpuinfoPartRe.FindAllStringSubmatch(m[2], -1) {
		v, ok := atof(part[1])
		if !ok {
			continue
		}

		switch part[2] {
		case "user":
			out.User = &v
		case "kernel":
			out.Kernel = &v
		case "iowait":
			out.IOWait = &v
		case "irq":
			out.IRQ = &v
		case "softirq":
			out.SoftIRQ = &v
		}
	}

	return out, true
}

// ParseTopCPU reads the summary line of toybox top ("800%cpu ... 700%idle")
// and returns the busy share in percent.
func ParseTopCPU(text string) (float64, bool) {
	m := topCPURe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	capacity, ok1 := atof(m[1])
	idle, ok2 := atof(m[2])
	if !ok1 || !ok2 || capacity <= 0 || idle > capacity {
		return 0, false
	}

	return (capacity - idle) / capacity * 100, true
}

// Memory is the device memory summary in MB.
type Memory struct {
	Total     float64
	Available *float64
	Free      *float64
	Cached    *float64
	Buffers   *float64
}

// Used is Total minus Available, or nil when availability is unknown.
func (m Memory) Used() *float64 {
	if m.Available == nil {
		return nil
	}

	used := m.Total - *m.Available

	return &used
}

// ParseMeminfo reads /proc/meminfo. Values are converted from kB to MB.
func ParseMeminfo(text string) (Memory, bool) {
	fields := keyValues(text, ":")

	total, ok := kbField(fields, "MemTotal")
	if !ok || total <= 0 {
		return Memory{}, false
	}

	out := Memory{Total: total}
	if v, ok := kbField(fields, "MemAvailable"); ok {
		out.Available = &v
	}

	if v, ok := kbField(fields, "MemFree"); ok {
		out.Free = &v
	}

	if v, ok := kbField(fields, "Cached"); ok {
		out.Cached = &v
	}

	if v, ok := kbField(fields, "Buffers"); ok {
		out.Buffers = &v
	}

	if out.Available == nil && out.Free != nil {
		avail := *out.Free
		if out.Cached != nil {
			avail += *out.Cached
		}

		if out.Buffers != nil {
			avail += *out.Buffers
		}

		out.Available = &avail
	}

	return out, true
}

func kbField(fields map[string]string, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}

	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return 0, false
	}

	v, ok := atof(parts[0])

	return v / 1024, ok
}

// keyValues splits "key<sep> value" lines into a map with trimmed keys and
// values. Later duplicates do not override earlier ones.
func keyValues(text, sep string) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), sep)
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if _, seen := out[key]; seen || key == "" {
			continue
		}

		out[key] = strings.TrimSpace(value)
	}

	return out
}

// LoadAverage holds the 1, 5 and 15 minute load averages.
type LoadAverage struct {
	Load1, Load5, Load15 float64
}

// ParseLoadavg reads /proc/loadavg.
func ParseLoadavg(text string) (LoadAverage, bool) {
	parts := strings.Fields(text)
	if len(parts) < 3 {
		return LoadAverage{}, false
	}

	l1, ok1 := atof(parts[0])
	l5, ok2 := atof(parts[1])
	l15, ok3 := atof(parts[2])
	if !ok1 || !ok2 || !ok3 {
		return LoadAverage{}, false
	}

	return LoadAverage{Load1: l1, Load5: l5, Load15: l15}, true
}

// Battery is the state reported by dumpsys battery. Temperature is in °C and
// voltage in V.
type Battery struct {
	Level       *float64
	Temperature *float64
	Voltage     *float64
	Health      *int
	Status      *int
}

func (b Battery) Empty() bool {
	return b.Level == nil && b.Temperature == nil && b.Voltage == nil &&
		b.Health == nil && b.Status == nil
}

// ParseBattery reads dumpsys battery. The level is scaled to percent when a
// non-default scale is reported.
func ParseBattery(text string) Battery {
	fields := keyValues(text, ":")

	var out Battery
	if v, ok := atof(fields["level"]); ok {
		if scale, ok := atof(fields["scale"]); ok && scale > 0 && scale != 100 {
			v = v * 100 / scale
		}

		if v >= 0 && v <= 100 {
			out.Level = &v
		}
	}

	if v, ok := atof(fields["temperature"]); ok {
		v /= 10
		out.Temperature = &v
	}

	if v, ok := atof(fields["voltage"]); ok {
		// Some devices already report volts
		if v > 100 {
			v /= 1000
		}

		out.Voltage = &v
	}

	if v, ok := atoi(fields["health"]); ok {
		out.Health = &v
	}

	if v, ok := atoi(fields["status"]); ok {
		out.Status = &v
	}

	return out
}

// Traffic is a cumulative byte count pair.
type Traffic struct {
	RxBytes float64
	TxBytes float64
}

// ParseNetDev sums receive and transmit bytes over every non-loopback
// interface in /proc/net/dev.
func ParseNetDev(text string) (Traffic, bool) {
	var (
		out   Traffic
		found bool
	)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		// Two header lines
		if i < 2 {
			continue
		}

		iface, stats, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(iface) == "lo" {
			continue
		}

		parts := strings.Fields(stats)
		if len(parts) < 9 {
			continue
		}

		rx, ok1 := atof(parts[0])
		tx, ok2 := atof(parts[8])
		if !ok1 || !ok2 {
			continue
		}

		out.RxBytes += rx
		out.TxBytes += tx
		found = true
	}

	return out, found
}

var (
	netstatsRxRe = regexp.MustCompile(`(?i)rx.*?(\d+)\s*bytes`)
	netstatsTxRe = regexp.MustCompile(`(?i)tx.*?(\d+)\s*bytes`)
)

// ParseNetstatsTotals sums "rx ... N bytes" and "tx ... N bytes" mentions in
// dumpsys netstats. It is the fallback when /proc/net/dev is unreadable.
func ParseNetstatsTotals(text string) (Traffic, bool) {
	var (
		out   Traffic
		found bool
	)

	for _, m := range netstatsRxRe.FindAllStringSubmatch(text, -1) {
		if v, ok := atof(m[1]); ok {
			out.RxBytes += v
			found = true
		}
	}

	for _, m := range netstatsTxRe.FindAllStringSubmatch(text, -1) {
		if v, ok := atof(m[1]); ok {
			out.TxBytes += v
			found = true
		}
	}

	return out, found
}

// ParseThermal reads a thermal zone temperature. Millidegree readings are
// converted to °C; values outside (0, 150) are rejected.
func ParseThermal(text string) (float64, bool) {
	v, ok := atof(strings.TrimSpace(text))
	if !ok {
		return 0, false
	}

	if v > 1000 {
		v /= 1000
	}

	if v <= 0 || v >= 150 {
		return 0, false
	}

	return v, true
}

// ParseBrightness converts the 0-255 screen_brightness setting to percent.
func ParseBrightness(text string) (float64, bool) {
	v, ok := atoi(strings.TrimSpace(text))
	if !ok || v < 0 || v > 255 {
		return 0, false
	}

	return float64(v) * 100 / 255, true
}

var displayPowerRe = regexp.MustCompile(`Display Power:\s*state=(\w+)`)

// ParseScreenOn reads the display power state from dumpsys power.
func ParseScreenOn(text string) (bool, bool) {
	m := displayPowerRe.FindStringSubmatch(text)
	if m != nil {
		return m[1] == "ON", true
	}

	switch {
	case strings.Contains(text, "mWakefulness=Awake"):
		return true, true
	case strings.Contains(text, "mWakefulness=Asleep"), strings.Contains(text, "mWakefulness=Dozing"):
		return false, true
	}

	return false, false
}
