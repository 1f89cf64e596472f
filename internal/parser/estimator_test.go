package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEstimate(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	got, ok := cfg.Estimate(EstimateInput{
		CPUPercent: ptr(10.0),
		MemoryMB:   ptr(100.0),
		Foreground: ptr(false),
	})
	require.True(t, ok)
	assert.InDelta(t, (5+8+2)*0.4, got, 1e-9)
}

func TestEstimateMultiplierScalesNetworkBonus(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	got, ok := cfg.Estimate(EstimateInput{
		CPUPercent:    ptr(10.0),
		Foreground:    ptr(true),
		NetworkActive: true,
	})
	require.True(t, ok)
	assert.InDelta(t, (5+8+8)*1.8, got, 1e-9)

	got, ok = cfg.Estimate(EstimateInput{
		CPUPercent: ptr(3.0),
		MemoryMB:   ptr(1.0),
		Foreground: ptr(false),
	})
	require.True(t, ok)
	assert.Equal(t, 2.97, got, "(5+2.4+0.02)*0.4 = 2.968")
}

func TestEstimateClampsExtremeInputs(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	got, ok := cfg.Estimate(EstimateInput{
		CPUPercent:    ptr(100.0),
		MemoryMB:      ptr(1e9),
		Foreground:    ptr(true),
		NetworkActive: true,
	})
	require.True(t, ok)
	assert.LessOrEqual(t, got, 150.0)
	assert.GreaterOrEqual(t, got, 0.1)
	assert.InDelta(t, 150, got, 1e-9, "(5+50+20+8)*1.8 is clamped")

	cfg.ForegroundMultiplier = 10
	got, ok = cfg.Estimate(EstimateInput{CPUPercent: ptr(100.0), Foreground: ptr(true)})
	require.True(t, ok)
	assert.InDelta(t, 150, got, 1e-9)

	cfg = DefaultEstimatorConfig()
	cfg.Base = 0
	got, ok = cfg.Estimate(EstimateInput{CPUPercent: ptr(0.01), Foreground: ptr(false)})
	require.True(t, ok)
	assert.InDelta(t, 0.1, got, 1e-9)
}

func TestEstimateOmittedWithoutObservations(t *testing.T) {
	cfg := DefaultEstimatorConfig()

	_, ok := cfg.Estimate(EstimateInput{})
	assert.False(t, ok)

	_, ok = cfg.Estimate(EstimateInput{Foreground: ptr(true)})
	assert.False(t, ok, "the foreground multiplier alone is not a component")

	_, ok = cfg.Estimate(EstimateInput{CPUPercent: ptr(0.0)})
	assert.False(t, ok, "an idle cpu reading does not count")

	_, ok = cfg.Estimate(EstimateInput{NetworkActive: true})
	assert.True(t, ok)
}
