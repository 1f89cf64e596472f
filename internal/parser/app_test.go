package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTop(t *testing.T) {
	procs := ParseTop(topFixture)
	require.Len(t, procs, 4)

	assert.Equal(t, TopProcess{
		PID:   4321,
		User:  "u0_a210",
		CPU:   21.0,
		Mem:   2.9,
		RESKB: 220 * 1024,
		Name:  "com.a.service",
	}, procs[0])

	for _, p := range procs {
		assert.NotEqual(t, 9999, p.PID, "shell rows are skipped")
	}
}

func TestResolveProcess(t *testing.T) {
	procs := ParseTop(topFixture)

	proc, ambiguous, ok := ResolveProcess(procs, "com.a")
	require.True(t, ok)
	assert.Equal(t, "com.a.service", proc.Name)
	assert.True(t, ambiguous)

	proc, ambiguous, ok = ResolveProcess(procs, "com.b")
	require.True(t, ok)
	assert.Equal(t, "com.b", proc.Name)
	assert.False(t, ambiguous)

	_, _, ok = ResolveProcess(procs, "com.c")
	assert.False(t, ok)
}

func TestResolveProcessPrefersExactMatch(t *testing.T) {
	procs := []TopProcess{
		{PID: 1, CPU: 50, Name: "com.a:sync"},
		{PID: 2, CPU: 1, Name: "com.a"},
	}

	proc, ambiguous, ok := ResolveProcess(procs, "com.a")
	require.True(t, ok)
	assert.Equal(t, 2, proc.PID)
	assert.False(t, ambiguous)
}

func TestParseCPUInfoApp(t *testing.T) {
	got, ok := ParseCPUInfoApp(cpuinfoFixture, "com.a.service")
	require.True(t, ok)
	assert.InDelta(t, 23, got, 1e-9)

	got, ok = ParseCPUInfoApp(cpuinfoFixture, "com.b")
	require.True(t, ok)
	assert.InDelta(t, 8.5, got, 1e-9)

	_, ok = ParseCPUInfoApp(cpuinfoFixture, "com.a")
	assert.False(t, ok, "a package prefix must not match a longer process name")
}

func TestParseAppMemory(t *testing.T) {
	got := ParseAppMemory(appMeminfoFixture)

	require.NotNil(t, got.PSS)
	assert.InDelta(t, 150, *got.PSS, 1e-9)
	require.NotNil(t, got.Java)
	assert.InDelta(t, 12, *got.Java, 1e-9)
	require.NotNil(t, got.Native)
	assert.InDelta(t, 20, *got.Native, 1e-9)

	assert.True(t, ParseAppMemory("No process found for: com.x").Empty())
}

func TestParseProcStatus(t *testing.T) {
	got := ParseProcStatus("Name:\tcom.a\nThreads:\t42\nVmRSS:\t  204800 kB\n")

	require.NotNil(t, got.Threads)
	assert.Equal(t, 42, *got.Threads)
	require.NotNil(t, got.VmRSS)
	assert.InDelta(t, 200, *got.VmRSS, 1e-9)
}

func TestParseSize(t *testing.T) {
	tests := map[string]float64{
		"512K": 512,
		"180M": 180 * 1024,
		"1.5G": 1.5 * 1024 * 1024,
		"2048": 2,
	}

	for in, want := range tests {
		got, ok := parseSize(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
}
