package observability

import (
	"context"
	"fmt"
	"math"
	runtimemetrics "runtime/metrics"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricGoroutines = "collview.runtime.goroutines"
	metricHeapBytes  = "collview.runtime.heap.bytes"
	metricGCCycles   = "collview.runtime.gc.cycles"

	sampleGoroutines = "/sched/goroutines:goroutines"
	sampleHeapBytes  = "/memory/classes/heap/objects:bytes"
	sampleGCCycles   = "/gc/cycles/total:gc-cycles"
)

// RuntimeMetrics reports goroutine, heap and GC figures from runtime/metrics
// on every collection cycle. Background recomputes and the buffer pool show
// up here.
type RuntimeMetrics struct {
	goroutines metric.Int64ObservableGauge
	heapBytes  metric.Int64ObservableGauge
	gcCycles   metric.Int64ObservableCounter
}

// NewRuntimeMetrics registers the runtime instruments on mt.
func NewRuntimeMetrics(mt metric.Meter) (*RuntimeMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &RuntimeMetrics{
		goroutines: b.gauge(metricGoroutines, "Live goroutines", "{goroutine}"),
		heapBytes:  b.gauge(metricHeapBytes, "Bytes occupied by live and unswept heap objects", "By"),
		gcCycles:   b.observableCounter(metricGCCycles, "Completed GC cycles", "{cycle}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	_, err := mt.RegisterCallback(rm.observe, rm.goroutines, rm.heapBytes, rm.gcCycles)
	if err != nil {
		return nil, fmt.Errorf("register runtime metrics callback: %w", err)
	}

	return rm, nil
}

func (rm *RuntimeMetrics) observe(_ context.Context, obs metric.Observer) error {
	samples := []runtimemetrics.Sample{
		{Name: sampleGoroutines},
		{Name: sampleHeapBytes},
		{Name: sampleGCCycles},
	}

	runtimemetrics.Read(samples)

	for idx := range samples {
		val, ok := sampleInt64Value(samples[idx].Value)
		if !ok {
			continue
		}

		switch samples[idx].Name {
		case sampleGoroutines:
			obs.ObserveInt64(rm.goroutines, val)
		case sampleHeapBytes:
			obs.ObserveInt64(rm.heapBytes, val)
		case sampleGCCycles:
			obs.ObserveInt64(rm.gcCycles, val)
		}
	}

	return nil
}

func sampleInt64Value(val runtimemetrics.Value) (int64, bool) {
	switch val.Kind() {
	case runtimemetrics.KindUint64:
		u := val.Uint64()
		if u > uint64(math.MaxInt64) {
			return math.MaxInt64, true
		}

		return int64(u), true
	case runtimemetrics.KindFloat64:
		return int64(val.Float64()), true
	case runtimemetrics.KindBad, runtimemetrics.KindFloat64Histogram:
		return 0, false
	default:
		return 0, false
	}
}
