package acquisition

import (
	"math"
	"time"
)

const (
	// rateStabilityThreshold is the maximum allowed rate standard deviation as a fraction of the mean rate.
	// Example: 100 Hz mean → stable if stddev < 15 Hz
	rateStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of the expected interval.
	// Example: 100 Hz (10ms interval) → stable if jitter < 2ms
	jitterStabilityThreshold = 0.20
)

// RateStats describes the effective sampling rate of a sensor.
type RateStats struct {
	Samples      int           `json:"samples"`
	Duration     time.Duration `json:"duration"`
	RateMean     float64       `json:"rate_mean_hz"`
	RateStdDev   float64       `json:"rate_stddev_hz"`
	RateMin      float64       `json:"rate_min_hz"`
	RateMax      float64       `json:"rate_max_hz"`
	JitterMean   float64       `json:"jitter_mean_s"`
	JitterStdDev float64       `json:"jitter_stddev_s"`
	JitterMax    float64       `json:"jitter_max_s"`
	IsStable     bool          `json:"is_stable"`
}

// CalculateRate computes rate and jitter statistics from reading timestamps.
//
// The mean rate is intervals / (last - first). Instantaneous rates are taken
// per interval; jitter is the absolute deviation of each interval from the
// expected one (1 / mean rate). Stable means stddev < 15% of the mean rate
// AND mean jitter < 20% of the expected interval.
func CalculateRate(times []time.Time) RateStats {
	n := len(times)
	if n < 2 {
		return RateStats{Samples: n}
	}

	duration := times[n-1].Sub(times[0])
	if duration <= 0 {
		return RateStats{Samples: n, Duration: duration}
	}

	rateMean := float64(n-1) / duration.Seconds()

	rates := make([]float64, 0, n-1)
	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		intervals = append(intervals, interval)
		if interval > 0 {
			rates = append(rates, 1.0/interval)
		}
	}

	st := RateStats{
		Samples:  n,
		Duration: duration,
		RateMean: rateMean,
	}

	if len(rates) > 0 {
		st.RateMin, st.RateMax = rates[0], rates[0]
		var sumSquares float64
		for _, r := range rates {
			st.RateMin = math.Min(st.RateMin, r)
			st.RateMax = math.Max(st.RateMax, r)
			diff := r - rateMean
			sumSquares += diff * diff
		}
		st.RateStdDev = math.Sqrt(sumSquares / float64(len(rates)))
	}

	expected := 1.0 / rateMean
	var jitterSum float64
	jitters := make([]float64, len(intervals))
	for i, interval := range intervals {
		j := math.Abs(interval - expected)
		jitters[i] = j
		jitterSum += j
		st.JitterMax = math.Max(st.JitterMax, j)
	}
	st.JitterMean = jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - st.JitterMean
		jitterSumSquares += diff * diff
	}
	st.JitterStdDev = math.Sqrt(jitterSumSquares / float64(len(jitters)))

	st.IsStable = st.RateStdDev < rateMean*rateStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold

	return st
}
