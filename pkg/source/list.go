package source

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrIndexOutOfRange is returned for list operations with an invalid index.
var ErrIndexOutOfRange = errors.New("source: index out of range")

type subscription[T any] struct {
	id uint64
	fn Handler[T]
}

// List is a slice-backed Source. Mutations may be called from any goroutine.
//
// Each mutation holds the write lock (Locker) while it changes the slice and
// notifies subscribers, so a subscriber observes the list exactly as of its
// edit. The slice itself is guarded by a separate data lock that is released
// before subscribers run; subscribers and listeners further down may call
// Size or Snapshot, but must not mutate the list.
type List[T any] struct {
	writeMu sync.Mutex

	dataMu sync.RWMutex
	items  []T

	subsMu sync.Mutex
	subs   []subscription[T]
	nextID uint64
}

// NewList creates a list holding a copy of items.
func NewList[T any](items ...T) *List[T] {
	return &List[T]{items: slices.Clone(items)}
}

// Len returns the number of items. Callers must hold Locker or be running
// inside a notification.
func (l *List[T]) Len() int { return len(l.items) }

// Size is Len for callers not holding Locker.
func (l *List[T]) Size() int {
	l.dataMu.RLock()
	defer l.dataMu.RUnlock()

	return len(l.items)
}

// At returns the item at i. Same locking rules as Len.
func (l *List[T]) At(i int) T { return l.items[i] }

// Locker returns the write lock. Holding it keeps the contents fixed.
func (l *List[T]) Locker() sync.Locker { return &l.writeMu }

// Snapshot returns a copy of the current contents.
func (l *List[T]) Snapshot() []T {
	l.dataMu.RLock()
	defer l.dataMu.RUnlock()

	return slices.Clone(l.items)
}

// Subscribe registers h and returns a function that removes it.
func (l *List[T]) Subscribe(h Handler[T]) func() {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription[T]{id: id, fn: h})

	return func() {
		l.subsMu.Lock()
		defer l.subsMu.Unlock()

		l.subs = slices.DeleteFunc(l.subs, func(s subscription[T]) bool { return s.id == id })
	}
}

// Insert inserts item at index.
func (l *List[T]) Insert(ctx context.Context, index int, item T) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if index < 0 || index > len(l.items) {
		return fmt.Errorf("%w: insert at %d, len %d", ErrIndexOutOfRange, index, len(l.items))
	}

	l.update(func(items []T) []T { return slices.Insert(items, index, item) })

	return l.notifyLocked(ctx, AddEdit(index, item))
}

// Append adds items at the end, one notification per item.
func (l *List[T]) Append(ctx context.Context, items ...T) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var errs []error

	for _, item := range items {
		l.update(func(cur []T) []T { return append(cur, item) })

		err := l.notifyLocked(ctx, AddEdit(len(l.items)-1, item))
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RemoveAt removes the item at index.
func (l *List[T]) RemoveAt(ctx context.Context, index int) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("%w: remove at %d, len %d", ErrIndexOutOfRange, index, len(l.items))
	}

	item := l.items[index]
	l.update(func(items []T) []T { return slices.Delete(items, index, index+1) })

	return l.notifyLocked(ctx, RemoveEdit(index, item))
}

// Set replaces the item at index.
func (l *List[T]) Set(ctx context.Context, index int, item T) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("%w: set at %d, len %d", ErrIndexOutOfRange, index, len(l.items))
	}

	old := l.items[index]
	l.update(func(items []T) []T {
		items[index] = item

		return items
	})

	return l.notifyLocked(ctx, ReplaceEdit(index, old, item))
}

// Move moves the item at from so that it ends up at to.
func (l *List[T]) Move(ctx context.Context, from, to int) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	n := len(l.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d->%d, len %d", ErrIndexOutOfRange, from, to, n)
	}

	item := l.items[from]
	l.update(func(items []T) []T {
		items = slices.Delete(items, from, from+1)

		return slices.Insert(items, to, item)
	})

	return l.notifyLocked(ctx, MoveEdit(from, to, item))
}

// ReplaceAll swaps the whole content and emits a single reset.
func (l *List[T]) ReplaceAll(ctx context.Context, items []T) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	next := slices.Clone(items)
	l.update(func([]T) []T { return next })

	return l.notifyLocked(ctx, ResetEdit[T]())
}

// Clear removes every item and emits a single reset.
func (l *List[T]) Clear(ctx context.Context) error {
	return l.ReplaceAll(ctx, nil)
}

// update swaps the slice under the data lock. The write lock must be held.
func (l *List[T]) update(fn func(items []T) []T) {
	l.dataMu.Lock()
	defer l.dataMu.Unlock()

	l.items = fn(l.items)
}

// notifyLocked runs subscribers with only the write lock held.
func (l *List[T]) notifyLocked(ctx context.Context, edit Edit[T]) error {
	l.subsMu.Lock()
	subs := slices.Clone(l.subs)
	l.subsMu.Unlock()

	var errs []error

	for _, s := range subs {
		err := s.fn(ctx, edit)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
