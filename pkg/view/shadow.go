package view

import (
	"slices"

	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// snapshot is read access to a list state.
type snapshot[T any] interface {
	Len() int
	At(i int) T
}

// shadowCopy mirrors the source as of the last log entry it was advanced to.
// It is guarded by scheduler.mu.
type shadowCopy[T any] struct {
	items []T
	valid bool
}

func (s *shadowCopy[T]) Len() int   { return len(s.items) }
func (s *shadowCopy[T]) At(i int) T { return s.items[i] }

// copyFrom overwrites the mirror with the contents of src. Capacity only
// grows. The caller must hold the source lock.
func (s *shadowCopy[T]) copyFrom(src snapshot[T]) {
	n := src.Len()
	old := len(s.items)

	s.items = slices.Grow(s.items[:0], n)[:n]
	for i := range n {
		s.items[i] = src.At(i)
	}

	if old > n {
		clear(s.items[n:old])
	}

	s.valid = true
}

// apply advances the mirror by one single-item edit.
func (s *shadowCopy[T]) apply(e source.Edit[T]) {
	switch e.Action {
	case source.ActionAdd:
		s.items = slices.Insert(s.items, e.Index, e.Item)
	case source.ActionRemove:
		s.items = slices.Delete(s.items, e.Index, e.Index+1)
	case source.ActionReplace:
		s.items[e.Index] = e.Item
	case source.ActionMove:
		s.items = slices.Delete(s.items, e.OldIndex, e.OldIndex+1)
		s.items = slices.Insert(s.items, e.Index, e.Item)
	case source.ActionReset:
		// Resets are turned into recompute tokens before they get here.
	}
}

// invalidate drops the mirror contents but keeps the buffer.
func (s *shadowCopy[T]) invalidate() {
	clear(s.items)
	s.items = s.items[:0]
	s.valid = false
}

// release drops the buffer.
func (s *shadowCopy[T]) release() {
	s.items = nil
	s.valid = false
}
