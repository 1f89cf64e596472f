package parser

import (
	"regexp"
	"sort"
	"strings"
)

// TopProcess is one process row of a `top -n 1 -b` snapshot.
type TopProcess struct {
	PID   int
	User  string
	CPU   float64
	Mem   float64
	RESKB float64
	Name  string
}

const topMinFields = 11

// ParseTop reads the process table of a batch-mode top snapshot. Rows that
// belong to the shell running the snapshot itself are skipped.
func ParseTop(text string) []TopProcess {
	var out []TopProcess
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "grep") || strings.Contains(line, "sh -c") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < topMinFields {
			continue
		}

		pid, ok := atoi(parts[0])
		if !ok {
			continue
		}

		cpu, ok := atof(strings.TrimSuffix(parts[8], "%"))
		if !ok {
			continue
		}

		p := TopProcess{
			PID:  pid,
			User: parts[1],
			CPU:  cpu,
			Name: parts[len(parts)-1],
		}

		if mem, ok := atof(strings.TrimSuffix(parts[9], "%")); ok {
			p.Mem = mem
		}

		if res, ok := parseSize(parts[5]); ok {
			p.RESKB = res
		}

		out = append(out, p)
	}

	return out
}

// parseSize converts a top memory column (512K, 180M, 1.2G or plain bytes)
// to kB.
func parseSize(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1024
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	default:
		mult = 1.0 / 1024
	}

	v, ok := atof(s)
	if !ok {
		return 0, false
	}

	return v * mult, true
}

// ResolveProcess picks the process that represents pkg in a top snapshot.
// An exact name match wins. Otherwise the busiest process named pkg.<x> or
// pkg:<x> is chosen and ambiguous reports that more than one candidate
// existed.
func ResolveProcess(procs []TopProcess, pkg string) (proc TopProcess, ambiguous bool, ok bool) {
	var candidates []TopProcess
	for _, p := range procs {
		if p.Name == pkg {
			return p, false, true
		}

		if strings.HasPrefix(p.Name, pkg+".") || strings.HasPrefix(p.Name, pkg+":") {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return TopProcess{}, false, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CPU > candidates[j].CPU
	})

	return candidates[0], len(candidates) > 1, true
}

// ParseCPUInfoApp reads the CPU share of process from dumpsys cpuinfo, e.g.
// "12% 1234/com.example: 8% user + 4% kernel".
func ParseCPUInfoApp(text, process string) (float64, bool) {
	re, err := regexp.Compile(number + `%\s+\d+/` + regexp.QuoteMeta(process) + `(?::|\s|$)`)
	if err != nil {
		return 0, false
	}

	if m := re.FindStringSubmatch(text); m != nil {
		if v, ok := atof(m[1]); ok {
			return v, true
		}
	}

	return 0, false
}

// AppMemory is the memory breakdown of one process in MB.
type AppMemory struct {
	PSS    *float64
	Java   *float64
	Native *float64
}

func (m AppMemory) Empty() bool {
	return m.PSS == nil && m.Java == nil && m.Native == nil
}

// ParseAppMemory reads dumpsys meminfo <process>.
func ParseAppMemory(text string) AppMemory {
	var out AppMemory
	if strings.Contains(text, "No process found") {
		return out
	}

	if m, ok := MemoryPSS.Extract(text); ok {
		out.PSS = &m.Value
	}

	if m, ok := JavaHeap.Extract(text); ok {
		out.Java = &m.Value
	}

	if m, ok := NativeHeap.Extract(text); ok {
		out.Native = &m.Value
	}

	return out
}

// ProcStatus holds the fields read from /proc/<pid>/status.
type ProcStatus struct {
	Threads *int
	// MB
	VmRSS *float64
}

func ParseProcStatus(text string) ProcStatus {
	fields := keyValues(text, ":")

	var out ProcStatus
	if v, ok := atoi(fields["Threads"]); ok {
		out.Threads = &v
	}

	if v, ok := kbField(fields, "VmRSS"); ok {
		out.VmRSS = &v
	}

	return out
}
