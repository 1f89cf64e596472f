// Package parser turns raw device command output into numbers. Every parser
// is a pure function of its input; a value that cannot be found is reported
// as absent rather than zero.
package parser

import (
	"regexp"
	"strconv"
)

// Range bounds a plausible value, inclusive on both ends.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Rule is one extraction pattern. The first capture group holds the number,
// which is multiplied by Scale when Scale is non-zero.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Scale   float64
}

// Chain tries its rules in order and returns the first match whose value is
// inside Valid.
type Chain struct {
	Metric string
	Rules  []Rule
	Valid  Range
}

// Match is a value extracted by a Chain together with the rule that produced
// it.
type Match struct {
	Value float64
	Rule  string
}

func rule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern)}
}

func scaled(name, pattern string, scale float64) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Scale: scale}
}

// Extract returns the first valid match in text.
func (c Chain) Extract(text string) (Match, bool) {
	for _, r := range c.Rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}

			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}

			if r.Scale != 0 {
				v *= r.Scale
			}

			if c.Valid.Contains(v) {
				return Match{Value: v, Rule: r.Name}, true
			}
		}
	}

	return Match{}, false
}

const number = `(\d+(?:\.\d+)?)`

var (
	// MemoryPSS reads the total PSS of an app from dumpsys meminfo, in MB.
	MemoryPSS = Chain{
		Metric: "memory_pss",
		Rules: []Rule{
			scaled("total", `(?m)^\s*TOTAL\s+(\d+)`, 1.0/1024),
			scaled("total_pss", `TOTAL PSS:\s+(\d+)`, 1.0/1024),
		},
		Valid: Range{Min: 0, Max: 1 << 20},
	}

	JavaHeap = Chain{
		Metric: "memory_java",
		Rules:  []Rule{scaled("java_heap", `Java Heap:\s+(\d+)`, 1.0/1024)},
		Valid:  Range{Min: 0, Max: 1 << 20},
	}

	NativeHeap = Chain{
		Metric: "memory_native",
		Rules:  []Rule{scaled("native_heap", `Native Heap:\s+(\d+)`, 1.0/1024)},
		Valid:  Range{Min: 0, Max: 1 << 20},
	}

	// PowerConsumption reads an app's battery usage from batterystats. Rules
	// are ordered from the most to the least specific wording.
	PowerConsumption = Chain{
		Metric: "power_usage",
		Rules: []Rule{
			rule("estimated_power_use", `(?i)Estimated power use.*?`+number+`\s*mAh`),
			rule("power_use_mah", `(?i)Power use \(mAh\):\s*`+number),
			rule("uid_total", `(?i)Uid\s+\S+:\s*`+number+`\s*\(`),
			rule("total", `(?i)Total.*?`+number+`\s*mAh`),
			rule("consumption", `(?i)Consumption:\s*`+number+`\s*mAh`),
			rule("power", `(?i)Power:\s*`+number+`\s*mAh`),
			rule("battery_drain", `(?i)Battery drain:\s*`+number+`\s*mAh`),
			rule("mah_label", `(?i)mAh:\s*`+number),
			rule("estimated_power", `(?i)Estimated power.*?`+number+`mAh`),
			rule("app_battery_usage", `(?i)App battery usage.*?`+number),
			rule("power_usage_percent", `(?i)Power usage:\s*`+number+`%`),
			rule("battery_percent", `(?i)Battery:\s*`+number+`%`),
			rule("mah", `(?i)`+number+`\s*mAh`),
		},
		Valid: Range{Min: 0, Max: 10000},
	}

	Wakelocks = Chain{
		Metric: "wakelock_count",
		Rules: []Rule{
			rule("wake_lock_count", `(?i)Wake lock.*?count=(\d+)`),
			rule("wakelock_times", `(?i)Wakelock.*?(\d+)\s+times`),
			rule("partial_count", `(?i)partial.*?count:\s*(\d+)`),
			rule("wakelocks", `(?i)Wakelocks:\s*(\d+)`),
			rule("wake_locks", `(?i)Wake locks:\s*(\d+)`),
		},
		Valid: Range{Min: 0, Max: 10000},
	}

	Alarms = Chain{
		Metric: "alarm_count",
		Rules: []Rule{
			rule("alarm_count", `(?i)Alarm.*?count=(\d+)`),
			rule("alarms", `(?i)alarms:\s*(\d+)`),
			rule("wakeups", `(?i)wakeups:\s*(\d+)`),
		},
		Valid: Range{Min: 0, Max: 10000},
	}

	// FPSAlternative covers devices whose gfxinfo has no framestats table.
	FPSAlternative = Chain{
		Metric: "fps",
		Rules: []Rule{
			rule("refresh_rate", `(?i)RefreshRate[:\s]+`+number),
			rule("fps", `(?i)FPS[:\s]+`+number),
			rule("frame_rate", `(?i)Frame rate[:\s]+`+number),
		},
		Valid: Range{Min: 1, Max: 120},
	}

	UID = Chain{
		Metric: "uid",
		Rules: []Rule{
			rule("pm_list", `uid:(\d+)`),
			rule("user_id", `userId=(\d+)`),
		},
		Valid: Range{Min: 0, Max: 1 << 31},
	}
)

// Subsystem maps a batterystats component to the record field it fills.
type Subsystem struct {
	Field string
	Chain Chain
}

func subsystem(field, label string) Subsystem {
	return Subsystem{
		Field: field,
		Chain: Chain{
			Metric: field,
			Rules: []Rule{
				rule(label+"_eq", `(?i)\b`+label+`=`+number),
				rule(label+"_mah", `(?i)\b`+label+`:\s*`+number+`\s*mAh`),
			},
			Valid: Range{Min: 0, Max: 10000},
		},
	}
}

// PowerSubsystems are the per-component power breakdowns batterystats may
// report for a uid.
var PowerSubsystems = []Subsystem{
	subsystem("cpu_power", "cpu"),
	subsystem("gpu_power", "gpu"),
	subsystem("display_power", "screen"),
	subsystem("wifi_power", "wifi"),
	subsystem("bluetooth_power", "bluetooth"),
	subsystem("cellular_power", "mobile_radio"),
	subsystem("camera_power", "camera"),
	subsystem("audio_power", "audio"),
	subsystem("video_power", "video"),
}

func atof(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

func atoi(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return v, true
}
