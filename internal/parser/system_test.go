package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUInfoTotal(t *testing.T) {
	got, ok := ParseCPUInfoTotal(cpuinfoFixture)
	require.True(t, ok)

	assert.InDelta(t, 87, got.Total, 1e-9)
	require.NotNil(t, got.User)
	assert.InDelta(t, 54, *got.User, 1e-9)
	require.NotNil(t, got.Kernel)
	assert.InDelta(t, 29, *got.Kernel, 1e-9)
	require.NotNil(t, got.IRQ)
	assert.InDelta(t, 3.1, *got.IRQ, 1e-9)
	require.NotNil(t, got.SoftIRQ)
	assert.InDelta(t, 0.8, *got.SoftIRQ, 1e-9)

	_, ok = ParseCPUInfoTotal("Load: 1.0 / 1.0 / 1.0")
	assert.False(t, ok)
}

func TestParseTopCPU(t *testing.T) {
	got, ok := ParseTopCPU(topFixture)
	require.True(t, ok)
	assert.InDelta(t, 10, got, 1e-9)
}

func TestParseMeminfo(t *testing.T) {
	got, ok := ParseMeminfo(procMeminfoFixture)
	require.True(t, ok)

	assert.InDelta(t, 7821164.0/1024, got.Total, 1e-6)
	require.NotNil(t, got.Available)
	assert.InDelta(t, 3072, *got.Available, 1e-6)
	require.NotNil(t, got.Used())
	assert.InDelta(t, 7821164.0/1024-3072, *got.Used(), 1e-6)

	_, ok = ParseMeminfo("garbage")
	assert.False(t, ok)
}

func TestParseMeminfoWithoutAvailable(t *testing.T) {
	got, ok := ParseMeminfo("MemTotal: 2048 kB\nMemFree: 512 kB\nCached: 512 kB\n")
	require.True(t, ok)
	require.NotNil(t, got.Available)
	assert.InDelta(t, 1.0, *got.Available, 1e-9)
}

func TestParseLoadavg(t *testing.T) {
	got, ok := ParseLoadavg("1.50 1.20 0.90 2/1234 5678")
	require.True(t, ok)
	assert.Equal(t, LoadAverage{Load1: 1.5, Load5: 1.2, Load15: 0.9}, got)

	_, ok = ParseLoadavg("1.0")
	assert.False(t, ok)
}

func TestParseBattery(t *testing.T) {
	got := ParseBattery(batteryFixture)

	require.NotNil(t, got.Level)
	assert.InDelta(t, 85, *got.Level, 1e-9)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 28.5, *got.Temperature, 1e-9)
	require.NotNil(t, got.Voltage)
	assert.InDelta(t, 4.213, *got.Voltage, 1e-9)
	require.NotNil(t, got.Health)
	assert.Equal(t, 2, *got.Health)
	require.NotNil(t, got.Status)
	assert.Equal(t, 2, *got.Status)

	assert.True(t, ParseBattery("").Empty())
}

func TestParseNetDevSkipsLoopback(t *testing.T) {
	got, ok := ParseNetDev(netDevFixture)
	require.True(t, ok)

	assert.InDelta(t, 1050624, got.RxBytes, 1e-9)
	assert.InDelta(t, 525312, got.TxBytes, 1e-9)
}

func TestParseNetstatsTotals(t *testing.T) {
	got, ok := ParseNetstatsTotals("wlan rx: 100 bytes\nwlan tx: 40 bytes\nmobile rx: 20 bytes\n")
	require.True(t, ok)

	assert.InDelta(t, 120, got.RxBytes, 1e-9)
	assert.InDelta(t, 40, got.TxBytes, 1e-9)
}

func TestParseThermal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "45000", want: 45, ok: true},
		{in: "38", want: 38, ok: true},
		{in: "0", ok: false},
		{in: "200000", ok: false},
		{in: "n/a", ok: false},
	}

	for _, tt := range tests {
		got, ok := ParseThermal(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, tt.in)
		}
	}
}

func TestParseBrightness(t *testing.T) {
	got, ok := ParseBrightness("255\n")
	require.True(t, ok)
	assert.InDelta(t, 100, got, 1e-9)

	_, ok = ParseBrightness("300")
	assert.False(t, ok)
}

func TestParseScreenOn(t *testing.T) {
	on, ok := ParseScreenOn("  Display Power: state=ON")
	require.True(t, ok)
	assert.True(t, on)

	on, ok = ParseScreenOn("  Display Power: state=OFF")
	require.True(t, ok)
	assert.False(t, on)

	_, ok = ParseScreenOn("")
	assert.False(t, ok)
}
