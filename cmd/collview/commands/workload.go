package commands

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/collview/pkg/alg/stats"
	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/source"
	"github.com/Sumatoshi-tech/collview/pkg/view"
)

// workload describes one bench run.
type workload struct {
	size    int
	edits   int
	writers int
	seed    uint64
	filter  bool
	sort    bool
}

type phase struct {
	name string
	ops  int
	took time.Duration
}

type benchReport struct {
	phases    []phase
	heapDelta uint64
	viewLen   int
	matches   bool

	edits      int64
	applied    int64
	recomputes int64
	yields     int64
	superseded int64

	recomputeLatency stats.Summary
}

// tally counts engine measurements for the report and forwards them.
type tally struct {
	next view.MetricsRecorder

	edits, applied, recomputes, yields, superseded atomic.Int64

	mu        sync.Mutex
	durations []time.Duration
}

func (t *tally) RecordEdit(ctx context.Context, action string, applied bool) {
	t.edits.Add(1)

	if applied {
		t.applied.Add(1)
	}

	t.next.RecordEdit(ctx, action, applied)
}

func (t *tally) RecordRecompute(ctx context.Context, async bool, items int, d time.Duration) {
	t.recomputes.Add(1)

	t.mu.Lock()
	t.durations = append(t.durations, d)
	t.mu.Unlock()

	t.next.RecordRecompute(ctx, async, items, d)
}

func (t *tally) RecordYield(ctx context.Context) {
	t.yields.Add(1)
	t.next.RecordYield(ctx)
}

func (t *tally) RecordSuperseded(ctx context.Context, entries int) {
	t.superseded.Add(int64(entries))
	t.next.RecordSuperseded(ctx, entries)
}

func (t *tally) RecordContractError(ctx context.Context, reason string) {
	t.next.RecordContractError(ctx, reason)
}

func isEven(n int) bool { return n%2 == 0 }

func runWorkload(
	ctx context.Context, w workload, metrics view.MetricsRecorder, logger *slog.Logger, base []view.Option[int],
) (*benchReport, error) {
	rng := rand.New(rand.NewPCG(w.seed, 0))
	valueRange := max(w.size*4, 16)

	items := make([]int, w.size)
	for i := range items {
		items[i] = rng.IntN(valueRange)
	}

	loop := eventloop.New(eventloop.WithLogger(logger))

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() { done <- loop.Run(loopCtx) }()

	defer func() {
		loop.Close()
		cancel()
		<-done
	}()

	var filter func(int) bool
	if w.filter {
		filter = isEven
	}

	var compare func(a, b int) int
	if w.sort {
		compare = cmp.Compare[int]
	}

	counts := &tally{next: metrics}

	opts := slices.Clone(base)
	opts = append(opts,
		view.WithLogger[int](logger),
		view.WithMetrics[int](counts),
		view.WithFilter(filter),
		view.WithComparator(compare),
	)

	if w.writers > 0 {
		opts = append(opts, view.WithCrossContext[int](true))
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	list := source.NewList(items...)
	report := &benchReport{}

	start := time.Now()

	v, err := view.New(list, loop, opts...)
	if err != nil {
		return nil, err
	}

	report.phases = append(report.phases, phase{name: "build", ops: w.size, took: time.Since(start)})

	start = time.Now()

	if err := applyEdits(ctx, loop, list, w, valueRange); err != nil {
		return nil, err
	}

	if err := v.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("wait for edits: %w", err)
	}

	report.phases = append(report.phases, phase{name: "edits", ops: w.edits, took: time.Since(start)})

	start = time.Now()

	if err := invoke(ctx, loop, v.Refresh); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if err := v.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("wait for refresh: %w", err)
	}

	report.phases = append(report.phases, phase{name: "refresh", ops: list.Size(), took: time.Since(start)})

	var got, snapshot []int

	err = invoke(ctx, loop, func(lctx context.Context) error {
		got = v.Items()
		snapshot = list.Snapshot()

		return v.Detach(lctx)
	})
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	report.heapDelta = after.TotalAlloc - before.TotalAlloc
	report.viewLen = len(got)
	report.matches = slices.Equal(got, expected(snapshot, filter, compare))
	report.edits = counts.edits.Load()
	report.applied = counts.applied.Load()
	report.recomputes = counts.recomputes.Load()
	report.yields = counts.yields.Load()
	report.superseded = counts.superseded.Load()

	counts.mu.Lock()
	report.recomputeLatency = stats.Summarize(counts.durations)
	counts.mu.Unlock()

	return report, nil
}

// applyEdits runs the random edits on the loop, or from w.writers goroutines
// when the view is cross-context.
func applyEdits(ctx context.Context, loop *eventloop.Loop, list *source.List[int], w workload, valueRange int) error {
	if w.writers == 0 {
		rng := rand.New(rand.NewPCG(w.seed, 1))

		return invoke(ctx, loop, func(lctx context.Context) error {
			for range w.edits {
				if err := randomEdit(lctx, list, rng, valueRange); err != nil {
					return err
				}
			}

			return nil
		})
	}

	group, gctx := errgroup.WithContext(ctx)

	for i := range w.writers {
		n := w.edits / w.writers
		if i < w.edits%w.writers {
			n++
		}

		rng := rand.New(rand.NewPCG(w.seed, uint64(i)+1))

		group.Go(func() error {
			for range n {
				err := randomEdit(gctx, list, rng, valueRange)
				if err != nil && !errors.Is(err, source.ErrIndexOutOfRange) {
					return err
				}
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("writers: %w", err)
	}

	return nil
}

// randomEdit applies one single-item edit. Under concurrent writers the
// chosen index may be stale; the list then returns ErrIndexOutOfRange.
func randomEdit(ctx context.Context, list *source.List[int], rng *rand.Rand, valueRange int) error {
	n := list.Size()
	op := rng.IntN(4)

	switch {
	case n == 0 || op == 0:
		return list.Insert(ctx, rng.IntN(n+1), rng.IntN(valueRange))
	case op == 1:
		return list.RemoveAt(ctx, rng.IntN(n))
	case op == 2:
		return list.Set(ctx, rng.IntN(n), rng.IntN(valueRange))
	default:
		return list.Move(ctx, rng.IntN(n), rng.IntN(n))
	}
}

func invoke(ctx context.Context, loop *eventloop.Loop, fn func(context.Context) error) error {
	var fnErr error

	if err := loop.Invoke(ctx, func(lctx context.Context) { fnErr = fn(lctx) }); err != nil {
		return err
	}

	return fnErr
}

func expected(items []int, filter func(int) bool, compare func(a, b int) int) []int {
	out := make([]int, 0, len(items))

	for _, item := range items {
		if filter == nil || filter(item) {
			out = append(out, item)
		}
	}

	if compare != nil {
		slices.SortFunc(out, compare)
	}

	return out
}
