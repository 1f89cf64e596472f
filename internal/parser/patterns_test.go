package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainFirstMatchWins(t *testing.T) {
	text := "Estimated power use: 12.5 mAh\nTotal drain 90 mAh"

	m, ok := PowerConsumption.Extract(text)
	require.True(t, ok)
	assert.InDelta(t, 12.5, m.Value, 1e-9)
	assert.Equal(t, "estimated_power_use", m.Rule)
}

func TestChainSkipsOutOfRangeValues(t *testing.T) {
	text := "Total: 25000 mAh\nConsumption: 30 mAh"

	m, ok := PowerConsumption.Extract(text)
	require.True(t, ok)
	assert.InDelta(t, 30, m.Value, 1e-9)
}

func TestChainNoMatch(t *testing.T) {
	_, ok := PowerConsumption.Extract("nothing to see here")
	assert.False(t, ok)

	_, ok = FPSAlternative.Extract("FPS: 240")
	assert.False(t, ok)
}

func TestChainAppliesScale(t *testing.T) {
	m, ok := JavaHeap.Extract("Java Heap:    2048")
	require.True(t, ok)
	assert.InDelta(t, 2.0, m.Value, 1e-9)
}

func TestSubsystemChains(t *testing.T) {
	got := ParsePower("Uid u0a1: 10 ( cpu=4.5 screen=3 mobile_radio=1.5 )")

	assert.InDelta(t, 4.5, got.Subsystems["cpu_power"], 1e-9)
	assert.InDelta(t, 3.0, got.Subsystems["display_power"], 1e-9)
	assert.InDelta(t, 1.5, got.Subsystems["cellular_power"], 1e-9)
	assert.NotContains(t, got.Subsystems, "gpu_power")
}

func TestParsingIsIdempotent(t *testing.T) {
	inputs := []string{cpuinfoFixture, topFixture, appMeminfoFixture, batterystatsAppFixture, framestatsFixture}

	for _, in := range inputs {
		cpu1, ok1 := ParseCPUInfoTotal(in)
		cpu2, ok2 := ParseCPUInfoTotal(in)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, cpu1, cpu2)

		assert.Equal(t, ParseTop(in), ParseTop(in))
		assert.Equal(t, ParseAppMemory(in), ParseAppMemory(in))
		assert.Equal(t, ParsePower(in), ParsePower(in))

		fps1, ok1 := ParseFPS(in)
		fps2, ok2 := ParseFPS(in)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, fps1, fps2)
	}
}
