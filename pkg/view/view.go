// Package view maintains a filtered, sorted projection of a mutable source
// list. Source edits are translated into view edits incrementally; changes to
// the filter or comparator trigger a full recompute, which runs in the
// background for large sources. All notifications are delivered on a single
// consumer context supplied by an eventloop.Dispatcher.
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/shaping"
	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// ComparatorProvider builds comparators from declarative sort descriptions.
// shaping.Provider implements it.
type ComparatorProvider[T any] interface {
	Comparator(descs []shaping.SortDescription) (func(a, b T) int, error)
}

type listenerEntry[T any] struct {
	id uint64
	l  Listener[T]
}

// View is a live filtered and sorted projection of a source.
//
// Unless WithCrossContextReads is set, every method must be called on the
// consumer context.
type View[T comparable] struct {
	src        source.Source[T]
	dispatcher eventloop.Dispatcher
	cfg        settings
	sched      *scheduler[T]
	mat        materializer[T]

	initial shapeInfo[T]
	pending atomic.Pointer[shapeInfo[T]]
	applied *shapeInfo[T]

	readMu sync.RWMutex
	items  []T
	cursor cursor[T]

	deferDepth    atomic.Int32
	refreshNeeded atomic.Bool
	refreshing    atomic.Bool
	generation    atomic.Uint64
	unsubscribe   func()

	listenersMu sync.Mutex
	listeners   []listenerEntry[T]
	nextID      uint64
}

// New attaches a view to src. The initial contents are materialized
// synchronously while the source lock is held, so no edit falls between the
// snapshot and the subscription.
func New[T comparable](src source.Source[T], dispatcher eventloop.Dispatcher, opts ...Option[T]) (*View[T], error) {
	v := &View[T]{
		src:        src,
		dispatcher: dispatcher,
		cfg:        defaultSettings(),
	}

	for _, opt := range opts {
		opt(v)
	}

	if err := v.cfg.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("new view: %w", err)
	}

	shape := v.initial
	v.pending.Store(&shape)
	v.mat.thresholds = v.cfg.thresholds
	v.sched = newScheduler[T](src, dispatcher, v, &v.cfg)

	lock := src.Locker()
	lock.Lock()
	defer lock.Unlock()

	var snap snapshot[T] = src
	if v.cfg.crossContext {
		snap = v.sched.synchronize()
	}

	items, err := v.mat.build(snap, &shape)
	if err != nil {
		return nil, fmt.Errorf("new view: %w", err)
	}

	v.items = items
	v.applied = &shape

	if len(items) > 0 {
		v.cursor.set(items, 0)
	} else {
		v.cursor.set(items, -1)
	}

	v.unsubscribe = src.Subscribe(v.onSourceEdit)

	return v, nil
}

func (v *View[T]) onSourceEdit(ctx context.Context, e source.Edit[T]) error {
	if err := v.sched.checkContext(ctx); err != nil {
		return fmt.Errorf("%w: %s", err, e)
	}

	if e.Action == source.ActionReset {
		return v.sched.post(ctx, logEntry[T]{kind: entryRecompute}, true)
	}

	if err := validateEdit(e, v.src.Len()); err != nil {
		v.cfg.metrics.RecordContractError(ctx, contractReason(err))
		v.cfg.logger.WarnContext(ctx, "view: rejected source edit", "edit", e.String(), "error", err)

		return err
	}

	return v.sched.post(ctx, logEntry[T]{kind: entryEdit, edit: e}, true)
}

func contractReason(err error) string {
	switch {
	case errors.Is(err, ErrMultiItemEdit):
		return "multi_item"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_range"
	default:
		return "unknown_action"
	}
}

// applyEdit implements engine.
func (v *View[T]) applyEdit(ctx context.Context, e source.Edit[T], snap snapshot[T]) error {
	ed := editor[T]{items: v.items, shape: v.applied, snap: snap}

	changes, err := ed.translate(e)
	if err != nil {
		return err
	}

	v.cfg.metrics.RecordEdit(ctx, e.Action.String(), len(changes) > 0)

	for _, ch := range changes {
		v.commit(ctx, ch)
	}

	return nil
}

// commit applies one view edit, notifies listeners and settles the cursor.
func (v *View[T]) commit(ctx context.Context, ch change[T]) {
	before := v.cursor.state(len(v.items))

	v.lockView()
	v.items = applyChange(v.items, ch)
	v.cursor.shift(v.items, ch)
	v.unlockView()

	oldIndex := ch.oldIndex
	if ch.action != source.ActionMove {
		oldIndex = -1
	}

	v.emitView(ctx, Event[T]{
		Action:   ch.action,
		Item:     ch.item,
		OldItem:  ch.oldItem,
		Index:    ch.index,
		OldIndex: oldIndex,
	})

	if v.cursor.invalidated {
		v.lockView()
		v.cursor.resolve(v.items)
		v.unlockView()
	}

	v.emitProperties(ctx, before)
}

// currentItem implements engine.
func (v *View[T]) currentItem() (T, bool) {
	st := v.cursor.state(len(v.items))

	return st.item, st.hasItem
}

// Count returns the number of items in the view.
func (v *View[T]) Count() int {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return len(v.items)
}

// IsEmpty reports whether the view has no items.
func (v *View[T]) IsEmpty() bool {
	return v.Count() == 0
}

// At returns the item at view index i. It panics when i is out of range.
func (v *View[T]) At(i int) T {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return v.items[i]
}

// Items returns a copy of the view contents.
func (v *View[T]) Items() []T {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return append(make([]T, 0, len(v.items)), v.items...)
}

// IndexOf returns the view index of item, or -1.
func (v *View[T]) IndexOf(item T) int {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return slices.Index(v.items, item)
}

// Contains reports whether item is in the view.
func (v *View[T]) Contains(item T) bool {
	return v.IndexOf(item) >= 0
}

// IsRefreshing reports whether a full recompute is in progress.
func (v *View[T]) IsRefreshing() bool {
	return v.refreshing.Load()
}

// CrossContext reports whether source edits may arrive from any goroutine.
func (v *View[T]) CrossContext() bool {
	return v.cfg.crossContext
}

// CurrentItem returns the item under the cursor and whether there is one.
func (v *View[T]) CurrentItem() (T, bool) {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return v.currentItem()
}

// CurrentPosition returns the cursor position: -1 before the first item,
// Count() after the last.
func (v *View[T]) CurrentPosition() int {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return v.cursor.pos
}

// IsCurrentBeforeFirst reports whether the cursor sits before the first item.
func (v *View[T]) IsCurrentBeforeFirst() bool {
	return v.CurrentPosition() < 0
}

// IsCurrentAfterLast reports whether the cursor sits after the last item.
func (v *View[T]) IsCurrentAfterLast() bool {
	v.checkRead()
	v.rlockView()
	defer v.runlockView()

	return v.cursor.pos >= len(v.items)
}

// MoveCurrentTo moves the cursor to item. When the item is not in the view
// the cursor moves before the first item and false is returned.
func (v *View[T]) MoveCurrentTo(ctx context.Context, item T) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	return v.moveCursor(ctx, slices.Index(v.items, item))
}

// MoveCurrentToPosition moves the cursor to pos, which may be -1 or Count().
func (v *View[T]) MoveCurrentToPosition(ctx context.Context, pos int) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	if pos < -1 || pos > len(v.items) {
		return false, fmt.Errorf("%w: %d of %d", ErrPositionRange, pos, len(v.items))
	}

	return v.moveCursor(ctx, pos)
}

// MoveCurrentToFirst moves the cursor to the first item.
func (v *View[T]) MoveCurrentToFirst(ctx context.Context) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	return v.moveCursor(ctx, 0)
}

// MoveCurrentToLast moves the cursor to the last item.
func (v *View[T]) MoveCurrentToLast(ctx context.Context) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	return v.moveCursor(ctx, len(v.items)-1)
}

// MoveCurrentToNext advances the cursor, stopping after the last item.
func (v *View[T]) MoveCurrentToNext(ctx context.Context) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	return v.moveCursor(ctx, min(v.cursor.pos+1, len(v.items)))
}

// MoveCurrentToPrevious steps the cursor back, stopping before the first item.
func (v *View[T]) MoveCurrentToPrevious(ctx context.Context) (bool, error) {
	if err := v.checkCursorMove(ctx); err != nil {
		return false, err
	}

	return v.moveCursor(ctx, max(v.cursor.pos-1, -1))
}

func (v *View[T]) moveCursor(ctx context.Context, pos int) (bool, error) {
	if pos >= len(v.items) && len(v.items) == 0 {
		pos = -1
	}

	before := v.cursor.state(len(v.items))

	v.lockView()
	v.cursor.set(v.items, pos)
	v.unlockView()

	v.emitProperties(ctx, before)

	return pos >= 0 && pos < len(v.items), nil
}

func (v *View[T]) checkCursorMove(ctx context.Context) error {
	if v.deferDepth.Load() > 0 {
		return ErrDeferredRefresh
	}

	if !v.dispatcher.OnContext(ctx) {
		return ErrWrongContext
	}

	return nil
}

// SetFilter replaces the predicate and schedules a recompute.
func (v *View[T]) SetFilter(ctx context.Context, filter func(T) bool) error {
	return v.reshape(ctx, func(s *shapeInfo[T]) { s.filter = filter })
}

// SetComparator replaces the comparator and schedules a recompute. A nil
// comparator keeps source order.
func (v *View[T]) SetComparator(ctx context.Context, compare func(a, b T) int) error {
	return v.reshape(ctx, func(s *shapeInfo[T]) { s.compare = compare })
}

// SetParallelSort selects between the parallel merge sort and the standard
// sort for full recomputes.
func (v *View[T]) SetParallelSort(ctx context.Context, enabled bool) error {
	return v.reshape(ctx, func(s *shapeInfo[T]) { s.parallel = enabled })
}

// SetSortDescriptions installs the comparator built by p from descs. An
// empty list clears the comparator.
func (v *View[T]) SetSortDescriptions(ctx context.Context, p ComparatorProvider[T], descs []shaping.SortDescription) error {
	if len(descs) == 0 {
		return v.SetComparator(ctx, nil)
	}

	compare, err := p.Comparator(descs)
	if err != nil {
		return fmt.Errorf("set sort descriptions: %w", err)
	}

	return v.SetComparator(ctx, compare)
}

// reshape swaps in a modified copy of the shaping. Recomputes already in
// flight keep the shaping they captured.
func (v *View[T]) reshape(ctx context.Context, mutate func(*shapeInfo[T])) error {
	for {
		cur := v.pending.Load()
		next := *cur
		mutate(&next)

		if v.pending.CompareAndSwap(cur, &next) {
			break
		}
	}

	if v.deferDepth.Load() > 0 {
		v.refreshNeeded.Store(true)

		return nil
	}

	return v.Refresh(ctx)
}

// Refresh schedules a full recompute. Called on the consumer context with no
// pending work, the recompute starts immediately.
func (v *View[T]) Refresh(ctx context.Context) error {
	if v.deferDepth.Load() > 0 {
		return ErrDeferredRefresh
	}

	return v.sched.post(ctx, logEntry[T]{kind: entryRecompute}, false)
}

// DeferRefresh suspends recomputes until the returned release function is
// called. Shaping changes made meanwhile are folded into a single recompute
// on release. Deferrals nest; release is idempotent.
func (v *View[T]) DeferRefresh() (release func(ctx context.Context) error) {
	v.deferDepth.Add(1)

	var once sync.Once

	return func(ctx context.Context) error {
		var err error

		once.Do(func() {
			if v.deferDepth.Add(-1) == 0 && v.refreshNeeded.Swap(false) {
				err = v.Refresh(ctx)
			}
		})

		return err
	}
}

// Subscribe registers l for notifications.
func (v *View[T]) Subscribe(l Listener[T]) (unsubscribe func()) {
	v.listenersMu.Lock()
	defer v.listenersMu.Unlock()

	v.nextID++
	id := v.nextID
	v.listeners = append(v.listeners, listenerEntry[T]{id: id, l: l})

	return func() {
		v.listenersMu.Lock()
		defer v.listenersMu.Unlock()

		v.listeners = slices.DeleteFunc(v.listeners, func(e listenerEntry[T]) bool { return e.id == id })
	}
}

// WaitIdle blocks until all queued changes have been applied.
func (v *View[T]) WaitIdle(ctx context.Context) error {
	return v.sched.waitIdle(ctx)
}

// Detach unsubscribes from the source, drops pending work and empties the
// view. Background recomputes still running are discarded on completion.
func (v *View[T]) Detach(ctx context.Context) error {
	if !v.dispatcher.OnContext(ctx) {
		return ErrWrongContext
	}

	v.unsubscribe()
	dropped := v.sched.detach()
	v.generation.Add(1)

	v.lockView()
	prev := v.items
	v.items = nil
	v.cursor.set(nil, -1)
	v.unlockView()

	v.mat.pool.put(prev)
	v.refreshing.Store(false)

	v.cfg.logger.DebugContext(ctx, "view: detached", "dropped_entries", dropped)

	return nil
}

func (v *View[T]) setRefreshing(ctx context.Context, on bool) {
	if v.refreshing.Swap(on) == on {
		return
	}

	phase := RefreshFinished
	if on {
		phase = RefreshStarting
	}

	for _, l := range v.snapshotListeners() {
		l.RefreshChanged(ctx, phase)
		l.PropertyChanged(ctx, PropIsRefreshing)
	}
}

func (v *View[T]) emitView(ctx context.Context, ev Event[T]) {
	for _, l := range v.snapshotListeners() {
		l.ViewChanged(ctx, ev)
	}
}

// emitProperties reports every property that differs from before.
func (v *View[T]) emitProperties(ctx context.Context, before cursorState[T]) {
	after := v.cursor.state(len(v.items))

	var props []Property

	if before.count != after.count {
		props = append(props, PropCount)
	}

	if (before.count == 0) != (after.count == 0) {
		props = append(props, PropIsEmpty)
	}

	if before.hasItem != after.hasItem || before.item != after.item {
		props = append(props, PropCurrentItem)
	}

	if before.pos != after.pos {
		props = append(props, PropCurrentPosition)
	}

	if (before.pos < 0) != (after.pos < 0) {
		props = append(props, PropIsCurrentBeforeFirst)
	}

	if (before.pos >= before.count) != (after.pos >= after.count) {
		props = append(props, PropIsCurrentAfterLast)
	}

	if len(props) == 0 {
		return
	}

	for _, l := range v.snapshotListeners() {
		for _, p := range props {
			l.PropertyChanged(ctx, p)
		}
	}
}

func (v *View[T]) snapshotListeners() []Listener[T] {
	v.listenersMu.Lock()
	defer v.listenersMu.Unlock()

	out := make([]Listener[T], len(v.listeners))
	for i, e := range v.listeners {
		out[i] = e.l
	}

	return out
}

// checkRead panics when the view is read while refresh is deferred; its
// contents may not reflect pending shaping changes.
func (v *View[T]) checkRead() {
	if v.deferDepth.Load() > 0 {
		panic(ErrDeferredRefresh)
	}
}

func (v *View[T]) lockView() {
	if v.cfg.crossContextReads {
		v.readMu.Lock()
	}
}

func (v *View[T]) unlockView() {
	if v.cfg.crossContextReads {
		v.readMu.Unlock()
	}
}

func (v *View[T]) rlockView() {
	if v.cfg.crossContextReads {
		v.readMu.RLock()
	}
}

func (v *View[T]) runlockView() {
	if v.cfg.crossContextReads {
		v.readMu.RUnlock()
	}
}
