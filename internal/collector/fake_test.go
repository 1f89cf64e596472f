package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/adb"
	"codeberg.org/mutker/droidmetrics/internal/logger"
)

const testSerial = "emulator-5554"

// scriptedDevice answers commands from a table. Unknown commands fail like a
// non-zero exit.
type scriptedDevice struct {
	mu       sync.Mutex
	outputs  map[string]string
	failOnce map[string]bool
	calls    []string
}

func newScriptedDevice() *scriptedDevice {
	return &scriptedDevice{
		outputs:  make(map[string]string),
		failOnce: make(map[string]bool),
	}
}

func (s *scriptedDevice) set(command, output string) *scriptedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[command] = output
	return s
}

func (s *scriptedDevice) Execute(_ context.Context, _ string, args ...string) ([]byte, error) {
	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	command := strings.Join(args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, command)
	if s.failOnce[command] {
		delete(s.failOnce, command)
		return nil, fmt.Errorf("exit status 1")
	}

	out, ok := s.outputs[command]
	if !ok {
		return nil, fmt.Errorf("exit status 1")
	}

	return []byte(out), nil
}

func (s *scriptedDevice) callCount(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c == command {
			n++
		}
	}

	return n
}

// callIndex returns the position of the first call of command, or -1.
func (s *scriptedDevice) callIndex(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.calls {
		if c == command {
			return i
		}
	}

	return -1
}

func (s *scriptedDevice) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCollector(t *testing.T, dev *scriptedDevice, serial string) (*Collector, *fakeClock) {
	t.Helper()

	cfg := adb.DefaultConfig()
	cfg.Device = serial
	cfg.Timeout = 200 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond

	clock := newFakeClock()
	runner := adb.NewRunner(cfg, dev, logger.Nop())

	return New(DefaultConfig(), runner, logger.Nop(), WithClock(clock.Now)), clock
}

const cpuinfoOutput = `Load: 6.42 / 6.12 / 5.98
CPU usage from 10023ms to 2ms ago:
  23% 4321/com.a.service: 18% user + 5% kernel
  8.5% 5678/com.b: 6% user + 2.5% kernel
87% TOTAL: 54% user + 29% kernel + 0% iowait + 3.1% irq + 0.8% softirq`

const topOutput = `Tasks: 612 total,   1 running, 611 sleeping,   0 stopped,   0 zombie
800%cpu  45%user   0%nice  30%sys 720%idle   0%iow   5%irq   0%sirq   0%host
  PID USER         PR  NI VIRT  RES  SHR S[%CPU] %MEM     TIME+ ARGS
 4321 u0_a210      10 -10  14G 220M 120M S 21.0   2.9   1:02.33 com.a.service
 5678 u0_a211      10 -10  13G 150M  90M S  7.9   1.9   0:30.00 com.b`

const appMeminfoOutput = `** MEMINFO in pid 4321 [com.a.service] **
        TOTAL   153600    90000    30000        0   225280
           Java Heap:    12288
         Native Heap:    20480`

func netDevOutput(rx, tx int) string {
	return fmt.Sprintf(`Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:   5000      50    0    0    0     0          0         0     5000      50    0    0    0     0       0          0
 wlan0: %d    900    0    0    0     0          0         0   %d     400    0    0    0     0       0          0`, rx, tx)
}

func systemDevice() *scriptedDevice {
	return newScriptedDevice().
		set("shell dumpsys cpuinfo", cpuinfoOutput).
		set("shell cat /proc/meminfo", "MemTotal: 8388608 kB\nMemFree: 1048576 kB\nMemAvailable: 4194304 kB").
		set("shell cat /proc/loadavg", "1.50 1.20 0.90 2/1234 5678").
		set("shell dumpsys battery", "  level: 85\n  scale: 100\n  temperature: 285\n  voltage: 4213\n  health: 2\n  status: 2").
		set("shell cat /proc/net/dev", netDevOutput(1048576, 524288)).
		set("shell cat /sys/class/thermal/thermal_zone0/temp", "45000").
		set("shell settings get system screen_brightness", "128").
		set("shell dumpsys power | grep -e Display -e mWakefulness", "  Display Power: state=ON")
}
