package view

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/collview/pkg/alg/mergesort"
)

// Defaults.
const (
	// DefaultYieldThreshold is how long one drain slice may run before it
	// hands the consumer context back.
	DefaultYieldThreshold = 8 * time.Millisecond

	// DefaultAsyncThreshold is the source length from which full recomputes
	// run in the background.
	DefaultAsyncThreshold = 20_000
)

// MetricsRecorder receives engine measurements. observability.ViewMetrics
// implements it.
type MetricsRecorder interface {
	RecordEdit(ctx context.Context, action string, applied bool)
	RecordRecompute(ctx context.Context, async bool, items int, duration time.Duration)
	RecordYield(ctx context.Context)
	RecordSuperseded(ctx context.Context, entries int)
	RecordContractError(ctx context.Context, reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordEdit(context.Context, string, bool) {}
func (noopRecorder) RecordRecompute(context.Context, bool, int, time.Duration) {}
func (noopRecorder) RecordYield(context.Context) {}
func (noopRecorder) RecordSuperseded(context.Context, int) {}
func (noopRecorder) RecordContractError(context.Context, string) {}

type settings struct {
	yieldThreshold    time.Duration
	asyncThreshold    int
	crossContext      bool
	crossContextReads bool
	thresholds        mergesort.Thresholds
	logger            *slog.Logger
	metrics           MetricsRecorder
	tracer            trace.Tracer
	onError           func(error)
}

func defaultSettings() settings {
	return settings{
		yieldThreshold: DefaultYieldThreshold,
		asyncThreshold: DefaultAsyncThreshold,
		thresholds:     mergesort.DefaultThresholds(),
		logger:         slog.New(slog.DiscardHandler),
		metrics:        noopRecorder{},
		tracer:         nooptrace.NewTracerProvider().Tracer(""),
	}
}

// Option configures a View.
type Option[T comparable] func(*View[T])

// WithFilter sets the initial predicate.
func WithFilter[T comparable](filter func(T) bool) Option[T] {
	return func(v *View[T]) {
		v.initial.filter = filter
	}
}

// WithComparator sets the initial comparator.
func WithComparator[T comparable](compare func(a, b T) int) Option[T] {
	return func(v *View[T]) {
		v.initial.compare = compare
	}
}

// WithParallelSort selects the parallel merge sort for full recomputes.
func WithParallelSort[T comparable](enabled bool) Option[T] {
	return func(v *View[T]) {
		v.initial.parallel = enabled
	}
}

// WithSortThresholds overrides the parallel merge sort thresholds.
func WithSortThresholds[T comparable](th mergesort.Thresholds) Option[T] {
	return func(v *View[T]) {
		v.cfg.thresholds = th
	}
}

// WithYieldThreshold sets how long one drain slice may run.
func WithYieldThreshold[T comparable](d time.Duration) Option[T] {
	return func(v *View[T]) {
		v.cfg.yieldThreshold = d
	}
}

// WithAsyncThreshold sets the source length from which recomputes run in
// the background. Zero or negative keeps every recompute synchronous.
func WithAsyncThreshold[T comparable](n int) Option[T] {
	return func(v *View[T]) {
		v.cfg.asyncThreshold = n
	}
}

// WithCrossContext allows the source to be mutated from goroutines other
// than the consumer context.
func WithCrossContext[T comparable](enabled bool) Option[T] {
	return func(v *View[T]) {
		v.cfg.crossContext = enabled
	}
}

// WithCrossContextReads allows Count, At, Items and the cursor getters to be
// called from any goroutine.
func WithCrossContextReads[T comparable](enabled bool) Option[T] {
	return func(v *View[T]) {
		v.cfg.crossContextReads = enabled
	}
}

// WithLogger sets the structured logger.
func WithLogger[T comparable](logger *slog.Logger) Option[T] {
	return func(v *View[T]) {
		v.cfg.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics[T comparable](m MetricsRecorder) Option[T] {
	return func(v *View[T]) {
		v.cfg.metrics = m
	}
}

// WithTracer sets the tracer used for recompute spans.
func WithTracer[T comparable](tracer trace.Tracer) Option[T] {
	return func(v *View[T]) {
		v.cfg.tracer = tracer
	}
}

// WithErrorHandler receives faults raised while draining the change log on
// a scheduled pass, where no caller is waiting for them.
func WithErrorHandler[T comparable](fn func(error)) Option[T] {
	return func(v *View[T]) {
		v.cfg.onError = fn
	}
}
