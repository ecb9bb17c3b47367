package scenario

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/shaping"
	"github.com/Sumatoshi-tech/collview/pkg/source"
	"github.com/Sumatoshi-tech/collview/pkg/view"
)

// Options configures a run. Zero values are usable.
type Options struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics view.MetricsRecorder

	// ViewOptions are applied before the scenario's own settings.
	ViewOptions []view.Option[Record]
}

// Result is the outcome of a run.
type Result struct {
	RunID string
	Name  string

	// Items is the view as maintained incrementally; Reference is a full
	// recompute over the final source.
	Items     []Record
	Reference []Record

	Sorted  bool
	Events  int64
	Resets  int64
	Elapsed time.Duration

	// Diff is empty when the run passed.
	Diff   string
	Passed bool
}

type runner struct {
	sc       *Scenario
	loop     *eventloop.Loop
	list     *source.List[Record]
	view     *view.View[Record]
	provider *shaping.Provider[Record]
	cross    bool

	filter  func(Record) bool
	compare func(a, b Record) int
}

// Run replays sc and compares the outcome with a full recompute. An error
// means the scenario could not be executed; a mismatch is reported through
// Result.Passed.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Result, error) {
	runID := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger = logger.With("run_id", runID, "scenario", sc.Name)

	tag := language.Und
	if sc.Locale != "" {
		parsed, err := language.Parse(sc.Locale)
		if err != nil {
			return nil, fmt.Errorf("scenario locale: %w", err)
		}

		tag = parsed
	}

	r := &runner{
		sc:       sc,
		list:     source.NewList(sc.Items...),
		provider: shaping.NewProvider(Keys(), shaping.WithLocale(tag), shaping.WithLogger(logger)),
	}

	var err error

	if r.filter, err = sc.Filter.Predicate(); err != nil {
		return nil, err
	}

	if r.compare, err = r.comparator(sc.Sort); err != nil {
		return nil, err
	}

	r.loop = eventloop.New(eventloop.WithLogger(logger))

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() { done <- r.loop.Run(loopCtx) }()

	defer func() {
		r.loop.Close()
		cancel()
		<-done
	}()

	vopts := slices.Clone(opts.ViewOptions)
	vopts = append(vopts,
		view.WithLogger[Record](logger),
		view.WithFilter(r.filter),
		view.WithComparator(r.compare),
		view.WithParallelSort[Record](sc.Parallel),
	)

	if opts.Tracer != nil {
		vopts = append(vopts, view.WithTracer[Record](opts.Tracer))
	}

	if opts.Metrics != nil {
		vopts = append(vopts, view.WithMetrics[Record](opts.Metrics))
	}

	if sc.CrossContext != nil {
		vopts = append(vopts, view.WithCrossContext[Record](*sc.CrossContext))
	}

	if sc.AsyncThreshold != nil {
		vopts = append(vopts, view.WithAsyncThreshold[Record](*sc.AsyncThreshold))
	}

	r.view, err = view.New(r.list, r.loop, vopts...)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}

	r.cross = r.view.CrossContext()

	var events, resets atomic.Int64

	r.view.Subscribe(view.ListenerFuncs[Record]{
		OnViewChanged: func(_ context.Context, ev view.Event[Record]) {
			events.Add(1)

			if ev.Action == source.ActionReset {
				resets.Add(1)
			}
		},
	})

	start := time.Now()

	logger.DebugContext(ctx, "scenario: start", "steps", len(sc.Steps), "items", len(sc.Items), "cross_context", r.cross)

	for i, step := range sc.Steps {
		if err := r.apply(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	if err := r.view.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("wait for view: %w", err)
	}

	res := &Result{RunID: runID, Name: sc.Name, Elapsed: time.Since(start)}

	var snapshot []Record

	err = r.onLoop(ctx, func(lctx context.Context) error {
		res.Items = r.view.Items()
		snapshot = r.list.Snapshot()

		return r.view.Detach(lctx)
	})
	if err != nil {
		return nil, fmt.Errorf("collect result: %w", err)
	}

	res.Events = events.Load()
	res.Resets = resets.Load()
	res.Reference = recompute(snapshot, r.filter, r.compare)

	r.check(res)

	logger.InfoContext(ctx, "scenario: finished",
		"passed", res.Passed, "items", len(res.Items), "events", res.Events, "elapsed", res.Elapsed)

	return res, nil
}

func (r *runner) comparator(descs []shaping.SortDescription) (func(a, b Record) int, error) {
	if len(descs) == 0 {
		return nil, nil
	}

	compare, err := r.provider.Comparator(descs)
	if err != nil {
		return nil, fmt.Errorf("scenario sort: %w", err)
	}

	return compare, nil
}

func (r *runner) apply(ctx context.Context, step Step) error {
	switch step.Op {
	case OpInsert:
		return r.edit(ctx, func(c context.Context) error { return r.list.Insert(c, step.Index, step.Item) })
	case OpAppend:
		return r.edit(ctx, func(c context.Context) error { return r.list.Append(c, step.Items...) })
	case OpRemove:
		return r.edit(ctx, func(c context.Context) error { return r.list.RemoveAt(c, step.Index) })
	case OpSet:
		return r.edit(ctx, func(c context.Context) error { return r.list.Set(c, step.Index, step.Item) })
	case OpMove:
		return r.edit(ctx, func(c context.Context) error { return r.list.Move(c, step.From, step.To) })
	case OpReset:
		return r.edit(ctx, func(c context.Context) error { return r.list.ReplaceAll(c, step.Items) })
	case OpClear:
		return r.edit(ctx, r.list.Clear)
	case OpFilter:
		filter, err := step.Filter.Predicate()
		if err != nil {
			return err
		}

		r.filter = filter

		return r.onLoop(ctx, func(c context.Context) error { return r.view.SetFilter(c, filter) })
	case OpSort:
		compare, err := r.comparator(step.Sort)
		if err != nil {
			return err
		}

		r.compare = compare

		return r.onLoop(ctx, func(c context.Context) error {
			return r.view.SetSortDescriptions(c, r.provider, step.Sort)
		})
	case OpRefresh:
		return r.onLoop(ctx, r.view.Refresh)
	case OpWait:
		return r.view.WaitIdle(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, step.Op)
	}
}

// edit mutates the source from the runner goroutine in cross-context mode
// and on the loop otherwise.
func (r *runner) edit(ctx context.Context, fn func(context.Context) error) error {
	if r.cross {
		return fn(ctx)
	}

	return r.onLoop(ctx, fn)
}

func (r *runner) onLoop(ctx context.Context, fn func(context.Context) error) error {
	var fnErr error

	err := r.loop.Invoke(ctx, func(lctx context.Context) {
		fnErr = fn(lctx)
	})
	if err != nil {
		return err
	}

	return fnErr
}

func (r *runner) check(res *Result) {
	res.Sorted = r.compare == nil || slices.IsSortedFunc(res.Items, r.compare)

	got := render(canonical(res.Items, r.compare))
	want := render(canonical(res.Reference, r.compare))

	if !slices.Equal(got, want) {
		res.Diff = lineDiff(want, got)
	}

	if len(r.sc.Expect) > 0 {
		names := make([]string, 0, len(res.Items))
		for _, item := range canonical(res.Items, r.compare) {
			names = append(names, item.Name)
		}

		if !slices.Equal(names, r.sc.Expect) {
			res.Diff += lineDiff(r.sc.Expect, names)
		}
	}

	res.Passed = res.Sorted && res.Diff == ""
}

func recompute(items []Record, filter func(Record) bool, compare func(a, b Record) int) []Record {
	out := make([]Record, 0, len(items))

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

// canonical orders records that compare equal by their rendering, so two
// unstable sorts of the same input become comparable.
func canonical(items []Record, compare func(a, b Record) int) []Record {
	out := slices.Clone(items)
	if compare == nil {
		return out
	}

	slices.SortStableFunc(out, func(a, b Record) int {
		if c := compare(a, b); c != 0 {
			return c
		}

		return cmp.Compare(a.String(), b.String())
	})

	return out
}

func render(items []Record) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.String()
	}

	return out
}
