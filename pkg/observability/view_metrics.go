package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricEdits          = "collview.view.edits.total"
	metricRecomputes     = "collview.view.recomputes.total"
	metricRecomputeDur   = "collview.view.recompute.duration.seconds"
	metricRecomputeItems = "collview.view.recompute.items"
	metricYields         = "collview.view.yields.total"
	metricSuperseded     = "collview.view.superseded.total"
	metricContractErrors = "collview.view.contract_errors.total"

	attrAction = "action"
	attrResult = "result"
	attrReason = "reason"

	resultApplied = "applied"
	resultSkipped = "skipped"
	modeAsync     = "async"
	modeSync      = "sync"
)

// recomputeBuckets are histogram bounds in seconds, from sub-millisecond
// small views up to multi-second full sorts.
var recomputeBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// ViewMetrics records view engine measurements. It satisfies
// view.MetricsRecorder.
type ViewMetrics struct {
	edits          metric.Int64Counter
	recomputes     metric.Int64Counter
	recomputeDur   metric.Float64Histogram
	recomputeItems metric.Float64Histogram
	yields         metric.Int64Counter
	superseded     metric.Int64Counter
	contractErrors metric.Int64Counter
}

// NewViewMetrics creates the view instruments on mt.
func NewViewMetrics(mt metric.Meter) (*ViewMetrics, error) {
	b := newMetricBuilder(mt)

	vm := &ViewMetrics{
		edits:          b.counter(metricEdits, "Source edits translated by views", "{edit}"),
		recomputes:     b.counter(metricRecomputes, "Full view recomputes", "{recompute}"),
		recomputeDur:   b.histogram(metricRecomputeDur, "Full recompute duration", "s", recomputeBuckets...),
		recomputeItems: b.histogram(metricRecomputeItems, "Source items read by a full recompute", "{item}"),
		yields:         b.counter(metricYields, "Drains that yielded back to the consumer loop", "{yield}"),
		superseded:     b.counter(metricSuperseded, "Queued entries dropped by a recompute", "{entry}"),
		contractErrors: b.counter(metricContractErrors, "Source notifications rejected by validation", "{error}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return vm, nil
}

// RecordEdit counts one translated edit. applied reports whether the view
// changed.
func (vm *ViewMetrics) RecordEdit(ctx context.Context, action string, applied bool) {
	result := resultSkipped
	if applied {
		result = resultApplied
	}

	vm.edits.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAction, action),
		attribute.String(attrResult, result),
	))
}

// RecordRecompute records one full recompute.
func (vm *ViewMetrics) RecordRecompute(ctx context.Context, async bool, items int, duration time.Duration) {
	mode := modeSync
	if async {
		mode = modeAsync
	}

	attrs := metric.WithAttributes(attribute.String(attrMode, mode))

	vm.recomputes.Add(ctx, 1, attrs)
	vm.recomputeDur.Record(ctx, duration.Seconds(), attrs)
	vm.recomputeItems.Record(ctx, float64(items), attrs)
}

// RecordYield counts one yielded drain.
func (vm *ViewMetrics) RecordYield(ctx context.Context) {
	vm.yields.Add(ctx, 1)
}

// RecordSuperseded counts entries discarded by a recompute.
func (vm *ViewMetrics) RecordSuperseded(ctx context.Context, entries int) {
	if entries <= 0 {
		return
	}

	vm.superseded.Add(ctx, int64(entries))
}

// RecordContractError counts one rejected notification.
func (vm *ViewMetrics) RecordContractError(ctx context.Context, reason string) {
	vm.contractErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}
