package view

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/collview/pkg/alg/mergesort"
	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/source"
)

const spanRecompute = "collview.view.recompute"

// sliceSnapshot adapts a private copy to snapshot.
type sliceSnapshot[T any] []T

func (s sliceSnapshot[T]) Len() int   { return len(s) }
func (s sliceSnapshot[T]) At(i int) T { return s[i] }

// materializer filters and sorts a snapshot into a new view array. It only
// touches its inputs and pooled buffers, so build is safe on any goroutine.
type materializer[T any] struct {
	pool       bufferPool[T]
	thresholds mergesort.Thresholds
}

func (m *materializer[T]) build(snap snapshot[T], shape *shapeInfo[T]) ([]T, error) {
	n := snap.Len()
	out := m.pool.get(n)

	for i := range n {
		item := snap.At(i)
		if shape.accepts(item) {
			out = append(out, item)
		}
	}

	if shape.compare == nil || len(out) < 2 {
		return out, nil
	}

	if !shape.parallel {
		slices.SortFunc(out, shape.compare)

		return out, nil
	}

	sorted := m.pool.get(len(out))[:len(out)]

	err := mergesort.SortInto(sorted, out, 0, len(out), shape.compare, m.thresholds)
	m.pool.put(out)

	if err != nil {
		m.pool.put(sorted)

		return nil, fmt.Errorf("sort view: %w", err)
	}

	return sorted, nil
}

// copyOf takes a private copy of snap for background use.
func (m *materializer[T]) copyOf(snap snapshot[T]) []T {
	n := snap.Len()
	out := m.pool.get(n)

	for i := range n {
		out = append(out, snap.At(i))
	}

	return out
}

// materialize rebuilds the view from snap with the shaping captured now.
// When async is set the filter and sort run on a separate goroutine and the
// call returns true; the result is adopted on the consumer context, after
// which resume is invoked. stable reports whether snap stays unchanged until
// then; unstable snapshots are copied first.
func (v *View[T]) materialize(ctx context.Context, snap snapshot[T], async, stable bool, resume eventloop.Task) bool {
	shape := v.pending.Load()

	v.setRefreshing(ctx, true)

	if !async {
		start := time.Now()

		spanCtx, span := v.cfg.tracer.Start(ctx, spanRecompute, trace.WithAttributes(
			attribute.Int("source.len", snap.Len()),
			attribute.Bool("async", false),
		))

		items, err := v.mat.build(snap, shape)

		span.End()

		if err != nil {
			v.sched.report(spanCtx, err)
			v.setRefreshing(ctx, false)

			return false
		}

		v.adopt(ctx, items, shape)
		v.finishRecompute(ctx, false, len(items), time.Since(start))

		return false
	}

	input := snap

	var scratch []T

	if !stable {
		scratch = v.mat.copyOf(snap)
		input = sliceSnapshot[T](scratch)
	}

	gen := v.generation.Load()
	start := time.Now()
	bgCtx := context.WithoutCancel(ctx)

	go func() {
		spanCtx, span := v.cfg.tracer.Start(bgCtx, spanRecompute, trace.WithAttributes(
			attribute.Int("source.len", input.Len()),
			attribute.Bool("async", true),
		))

		items, err := v.mat.build(input, shape)

		span.End()

		if scratch != nil {
			v.mat.pool.put(scratch)
		}

		v.dispatcher.Post(func(loopCtx context.Context) {
			if v.generation.Load() != gen {
				v.mat.pool.put(items)
				v.cfg.logger.DebugContext(loopCtx, "view: discarded stale background recompute")

				return
			}

			if err != nil {
				v.sched.report(spanCtx, err)
				v.setRefreshing(loopCtx, false)
				resume(loopCtx)

				return
			}

			v.adopt(loopCtx, items, shape)
			v.finishRecompute(loopCtx, true, len(items), time.Since(start))
			resume(loopCtx)
		})
	}()

	return true
}

// adopt publishes items as the materialized view, fires one reset and
// restores the cursor.
func (v *View[T]) adopt(ctx context.Context, items []T, shape *shapeInfo[T]) {
	before := v.cursor.state(len(v.items))

	v.lockView()

	prev := v.items
	v.items = items
	v.applied = shape
	v.cursor.restore(items, len(prev))

	v.unlockView()

	v.mat.pool.put(prev)

	v.emitView(ctx, Event[T]{Action: source.ActionReset, Index: -1, OldIndex: -1})
	v.emitProperties(ctx, before)
}

func (v *View[T]) finishRecompute(ctx context.Context, async bool, n int, d time.Duration) {
	v.cfg.metrics.RecordRecompute(ctx, async, n, d)
	v.cfg.logger.DebugContext(ctx, "view: recompute finished",
		"items", n, "async", async, "duration", d)
	v.setRefreshing(ctx, false)
}
