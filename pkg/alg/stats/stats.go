// Package stats summarizes samples for reports.
package stats

import (
	"math"
	"slices"
	"time"
)

// Percentile returns the p-th percentile of values, p in [0, 1], using
// linear interpolation. values is not modified. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	count := len(values)
	if count == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	p = max(0, min(p, 1))
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper {
		return sorted[lower]
	}

	frac := idx - float64(lower)

	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}

	for _, v := range values {
		mean += v
	}

	mean /= float64(len(values))

	var sumSq float64

	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return mean, math.Sqrt(sumSq / float64(len(values)))
}

// Summary describes a set of durations.
type Summary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	P50    time.Duration
	P95    time.Duration
	Max    time.Duration
}

// Summarize computes a Summary. The zero Summary is returned for no samples.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	values := make([]float64, len(samples))
	for i, d := range samples {
		values[i] = float64(d)
	}

	slices.Sort(values)

	mean, stddev := MeanStdDev(values)

	return Summary{
		Count:  len(samples),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(stddev),
		P50:    time.Duration(percentileSorted(values, 0.5)),
		P95:    time.Duration(percentileSorted(values, 0.95)),
		Max:    time.Duration(values[len(values)-1]),
	}
}
