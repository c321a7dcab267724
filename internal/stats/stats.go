// Package stats computes statistical control limits from a sample series.
package stats

import (
	"fmt"
	"math"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
)

// Result holds the control limits derived from one series.
type Result struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
}

// Degenerate reports whether the series had no variance.
func (r Result) Degenerate() bool {
	return r.StdDev == 0
}

// Mean returns the arithmetic mean of samples. It returns NaN for an empty series.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// PStdDev returns the population standard deviation (divisor N) of samples around mean.
func PStdDev(samples []float64, mean float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	var ss float64
	for _, v := range samples {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(samples)))
}

// Compute returns mean, population standard deviation and the limits mean ± k·stddev.
// The low limit is not clamped here.
func Compute(samples []float64, k int) (Result, error) {
	if len(samples) == 0 {
		return Result{}, apperrors.NewInternalError("cannot compute control limits of an empty series")
	}
	if k < 1 {
		return Result{}, apperrors.NewConfigurationError(
			"NUM_STANDARD_DEVIATION must be at least 1, got %d", k)
	}

	mean := Mean(samples)
	sd := PStdDev(samples, mean)
	// Rounding can leave a tiny residue for identical samples.
	if allEqual(samples) {
		sd = 0
	}

	r := Result{
		Mean:   mean,
		StdDev: sd,
		High:   mean + float64(k)*sd,
		Low:    mean - float64(k)*sd,
	}
	if !finite(r.Mean, r.StdDev, r.High, r.Low) {
		return Result{}, apperrors.NewInternalError(fmt.Sprintf(
			"control limits overflow for %d samples (mean=%g, stddev=%g)", len(samples), r.Mean, r.StdDev))
	}
	return r, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return false
		}
	}
	return true
}

func allEqual(samples []float64) bool {
	for _, v := range samples[1:] {
		if v != samples[0] {
			return false
		}
	}
	return true
}
