package parser

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	maxFPS          = 120
	minFrameSamples = 5
	jankFrameMS     = 1000.0 / 60
	droppedFrameMS  = 2 * jankFrameMS
	profileMarker   = "---PROFILEDATA---"
)

// FrameStats summarizes rendering performance. Fields other than FPS are nil
// when the source did not carry them.
type FrameStats struct {
	FPS     float64
	AvgMS   *float64
	MaxMS   *float64
	P99MS   *float64
	Total   *int
	Jank    *int
	Dropped *int
	Source  string
}

var (
	totalFramesRe = regexp.MustCompile(`Total frames rendered:\s*(\d+)`)
	jankyFramesRe = regexp.MustCompile(`Janky frames:\s*(\d+)`)
	p99Re         = regexp.MustCompile(`99th percentile:\s*(\d+)ms`)
)

// ParseFPS reads dumpsys gfxinfo <pkg> framestats. Frame timings are
// preferred; the alternative refresh-rate patterns are used otherwise.
func ParseFPS(text string) (FrameStats, bool) {
	if stats, ok := ParseFramestats(text); ok {
		return stats, true
	}

	m, ok := FPSAlternative.Extract(text)
	if !ok {
		return FrameStats{}, false
	}

	out := FrameStats{FPS: m.Value, Source: m.Rule}
	applySummary(&out, text)

	return out, true
}

// ParseFramestats computes frame statistics from the PROFILEDATA table. When
// the table has a header, frame time is FrameCompleted minus IntendedVsync and
// frames with non-zero flags are skipped; headerless tables use the first two
// timestamp columns.
func ParseFramestats(text string) (FrameStats, bool) {
	times := frameTimes(text)
	if len(times) <= minFrameSamples {
		return FrameStats{}, false
	}

	var sum, peak float64
	var jank, dropped int
	for _, t := range times {
		sum += t
		peak = math.Max(peak, t)
		if t > jankFrameMS {
			jank++
		}

		if t > droppedFrameMS {
			dropped++
		}
	}

	avg := sum / float64(len(times))
	if avg <= 0 {
		return FrameStats{}, false
	}

	fps := math.Min(1000/avg, maxFPS)
	if fps < 1 {
		return FrameStats{}, false
	}

	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.99*float64(len(sorted)))) - 1
	p99 := sorted[max(idx, 0)]
	total := len(times)

	out := FrameStats{
		FPS:     fps,
		AvgMS:   &avg,
		MaxMS:   &peak,
		P99MS:   &p99,
		Total:   &total,
		Jank:    &jank,
		Dropped: &dropped,
		Source:  "framestats",
	}

	return out, true
}

// frameTimes returns per-frame durations in ms.
func frameTimes(text string) []float64 {
	var (
		out      []float64
		inTable  bool
		flagsCol = -1
		startCol = 1
		endCol   = 2
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == profileMarker {
			inTable = !inTable
			continue
		}

		if !inTable || line == "" {
			continue
		}

		parts := strings.Split(strings.TrimSuffix(line, ","), ",")
		if parts[0] == "Flags" {
			flagsCol = 0
			for i, name := range parts {
				switch name {
				case "IntendedVsync":
					startCol = i
				case "FrameCompleted":
					endCol = i
				}
			}

			continue
		}

		if len(parts) <= max(startCol, endCol) {
			continue
		}

		if flagsCol >= 0 && parts[flagsCol] != "0" {
			continue
		}

		start, ok1 := atof(parts[startCol])
		end, ok2 := atof(parts[endCol])
		if !ok1 || !ok2 || start <= 0 || end <= start {
			continue
		}

		out = append(out, (end-start)/1e6)
	}

	return out
}

// applySummary fills counters from the textual gfxinfo summary.
func applySummary(out *FrameStats, text string) {
	if m := totalFramesRe.FindStringSubmatch(text); m != nil {
		if v, ok := atoi(m[1]); ok {
			out.Total = &v
		}
	}

	if m := jankyFramesRe.FindStringSubmatch(text); m != nil {
		if v, ok := atoi(m[1]); ok {
			out.Jank = &v
		}
	}

	if m := p99Re.FindStringSubmatch(text); m != nil {
		if v, ok := atof(m[1]); ok {
			out.P99MS = &v
		}
	}
}
