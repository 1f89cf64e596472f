package parser

import "math"

// EstimatorConfig holds the weights of the heuristic power estimate. The
// defaults are empirical and exposed so they can be recalibrated.
type EstimatorConfig struct {
	Base                 float64
	CPUWeight            float64
	CPUCap               float64
	MemoryWeight         float64
	MemoryCap            float64
	ForegroundMultiplier float64
	BackgroundMultiplier float64
	NetworkBonus         float64
	Min                  float64
	Max                  float64
}

func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Base:                 5,
		CPUWeight:            0.8,
		CPUCap:               50,
		MemoryWeight:         0.02,
		MemoryCap:            20,
		ForegroundMultiplier: 1.8,
		BackgroundMultiplier: 0.4,
		NetworkBonus:         8,
		Min:                  0.1,
		Max:                  150,
	}
}

// EstimateInput carries the observations available for one package. Nil
// fields were not observed.
type EstimateInput struct {
	CPUPercent    *float64
	MemoryMB      *float64
	Foreground    *bool
	NetworkActive bool
}

// Estimate returns a heuristic power usage in mAh, rounded to 0.01. The
// foreground or background multiplier scales the whole sum, network bonus
// included. The base cost always counts as one component; the estimate is
// only returned when at least one observation contributed as well.
func (c EstimatorConfig) Estimate(in EstimateInput) (float64, bool) {
	total := c.Base
	components := 1

	if in.CPUPercent != nil && *in.CPUPercent > 0 {
		total += min(*in.CPUPercent*c.CPUWeight, c.CPUCap)
		components++
	}

	if in.MemoryMB != nil && *in.MemoryMB > 0 {
		total += min(*in.MemoryMB*c.MemoryWeight, c.MemoryCap)
		components++
	}

	if in.NetworkActive {
		total += c.NetworkBonus
		components++
	}

	if in.Foreground != nil {
		if *in.Foreground {
			total *= c.ForegroundMultiplier
		} else {
			total *= c.BackgroundMultiplier
		}
	}

	if components < 2 {
		return 0, false
	}

	return math.Round(max(c.Min, min(total, c.Max))*100) / 100, true
}
