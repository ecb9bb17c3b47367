package view

import (
	"slices"

	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// cursor is the current-item pointer. pos ranges over [-1, count]: -1 is
// before the first item and count is after the last one.
type cursor[T comparable] struct {
	pos         int
	item        T
	invalidated bool
}

// cursorState is the externally visible cursor/count state, used to diff
// property notifications.
type cursorState[T comparable] struct {
	count   int
	pos     int
	item    T
	hasItem bool
}

func (c *cursor[T]) set(items []T, pos int) {
	c.pos = pos
	c.invalidated = false

	var zero T

	c.item = zero
	if pos >= 0 && pos < len(items) {
		c.item = items[pos]
	}
}

// shift adjusts the cursor for one view edit. items is the array after the
// edit has been applied.
func (c *cursor[T]) shift(items []T, ch change[T]) {
	switch ch.action {
	case source.ActionAdd:
		if ch.index <= c.pos {
			c.pos++
		}
	case source.ActionRemove:
		switch {
		case ch.index < c.pos:
			c.pos--
		case ch.index == c.pos:
			c.invalidated = true
		}
	case source.ActionReplace:
		if ch.index == c.pos {
			c.item = ch.item
		}
	case source.ActionMove:
		switch {
		case ch.oldIndex == c.pos:
			c.pos = ch.index
		case ch.oldIndex < c.pos && ch.index >= c.pos:
			c.pos--
		case ch.oldIndex > c.pos && ch.index <= c.pos:
			c.pos++
		}
	case source.ActionReset:
	}

	if !c.invalidated && c.pos >= 0 && c.pos < len(items) {
		c.item = items[c.pos]
	}
}

// resolve settles an invalidated cursor once the removal has been announced:
// it lands on min(old position, count-1), or before-first if the view is empty.
func (c *cursor[T]) resolve(items []T) bool {
	if !c.invalidated {
		return false
	}

	c.set(items, min(c.pos, len(items)-1))

	return true
}

// restore re-targets the cursor after the array was replaced wholesale. It
// follows the previous item when it is still present, keeps before-first and
// after-last, and otherwise clamps like a removal.
func (c *cursor[T]) restore(items []T, prevCount int) {
	switch {
	case c.pos < 0:
		c.set(items, -1)
	case c.pos >= prevCount:
		c.set(items, len(items))
	default:
		if idx := slices.Index(items, c.item); idx >= 0 {
			c.set(items, idx)

			return
		}

		c.set(items, min(c.pos, len(items)-1))
	}
}

func (c *cursor[T]) state(count int) cursorState[T] {
	return cursorState[T]{
		count:   count,
		pos:     c.pos,
		item:    c.item,
		hasItem: c.pos >= 0 && c.pos < count,
	}
}
