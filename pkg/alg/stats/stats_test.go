package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/collview/pkg/alg/stats"
)

func TestPercentile(t *testing.T) {
	t.Parallel()

	values := []float64{4, 1, 3, 2}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"min", 0, 1},
		{"median", 0.5, 2.5},
		{"max", 1, 4},
		{"clamped", 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.want, stats.Percentile(values, tt.p), 1e-9)
		})
	}

	assert.Equal(t, []float64{4, 1, 3, 2}, values)
	assert.Zero(t, stats.Percentile(nil, 0.5))
}

func TestMeanStdDev(t *testing.T) {
	t.Parallel()

	mean, stddev := stats.MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, stddev, 1e-9)

	mean, stddev = stats.MeanStdDev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, stats.Summary{}, stats.Summarize(nil))

	s := stats.Summarize([]time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond})
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2*time.Millisecond, s.Mean)
	assert.Equal(t, 2*time.Millisecond, s.P50)
	assert.Equal(t, 3*time.Millisecond, s.Max)
	assert.Greater(t, s.P95, 2*time.Millisecond)
}
