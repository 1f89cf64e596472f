package adb

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// LatencyTracker keeps the last observed duration per command name and the
// set of commands that ran slower than the slow threshold.
type LatencyTracker struct {
	mu        sync.RWMutex
	last      map[string]time.Duration
	slow      map[string]struct{}
	threshold time.Duration
}

func NewLatencyTracker(threshold time.Duration) *LatencyTracker {
	return &LatencyTracker{
		last:      make(map[string]time.Duration),
		slow:      make(map[string]struct{}),
		threshold: threshold,
	}
}

// Observe records d for name and reports whether it crossed the threshold.
func (t *LatencyTracker) Observe(name string, d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last[name] = d
	if t.threshold > 0 && d > t.threshold {
		t.slow[name] = struct{}{}
		return true
	}

	return false
}

func (t *LatencyTracker) IsSlow(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.slow[name]
	return ok
}

// Latencies returns a copy of the last observed durations.
func (t *LatencyTracker) Latencies() map[string]time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]time.Duration, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}

	return out
}

// Slow returns the sorted names of commands currently marked slow.
func (t *LatencyTracker) Slow() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.slow))
	for k := range t.slow {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = make(map[string]time.Duration)
	t.slow = make(map[string]struct{})
}

// CommandName reduces a command line to a stable label, e.g.
// "shell dumpsys meminfo com.example" becomes "dumpsys meminfo".
func CommandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) > 0 && fields[0] == "shell" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "dumpsys", "pm", "cat", "wm", "getprop":
		if len(fields) > 1 && !strings.HasPrefix(fields[1], "-") {
			return fields[0] + " " + fields[1]
		}
	}

	return fields[0]
}
