// Package source defines the contract between a mutable ordered list and the
// views derived from it, plus a reference observable list implementation.
package source

import (
	"context"
	"fmt"
	"sync"
)

// Action identifies the kind of change carried by an Edit.
type Action int

// Edit actions.
const (
	// ActionAdd inserts one item at Index.
	ActionAdd Action = iota
	// ActionRemove removes one item from Index.
	ActionRemove
	// ActionReplace replaces OldItem at Index with Item.
	ActionReplace
	// ActionMove moves Item from OldIndex to Index.
	ActionMove
	// ActionReset signals that the list changed wholesale.
	ActionReset
)

var actionNames = [...]string{
	ActionAdd:     "add",
	ActionRemove:  "remove",
	ActionReplace: "replace",
	ActionMove:    "move",
	ActionReset:   "reset",
}

// String returns the lower-case action name.
func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}

	return actionNames[a]
}

// Edit is a single change notification. Every action except ActionReset
// describes exactly one affected item; Count carries the number of items the
// emitter claims were affected so consumers can reject batched edits.
//
// Indices are expressed against the list state after the change, except for
// ActionRemove where Index is the position the item occupied before removal
// and ActionMove where OldIndex is the position before the move.
type Edit[T any] struct {
	Action   Action
	Item     T
	OldItem  T
	Index    int
	OldIndex int
	Count    int
}

// AddEdit builds an ActionAdd edit.
func AddEdit[T any](index int, item T) Edit[T] {
	return Edit[T]{Action: ActionAdd, Item: item, Index: index, OldIndex: -1, Count: 1}
}

// RemoveEdit builds an ActionRemove edit.
func RemoveEdit[T any](index int, item T) Edit[T] {
	return Edit[T]{Action: ActionRemove, Item: item, Index: index, OldIndex: -1, Count: 1}
}

// ReplaceEdit builds an ActionReplace edit.
func ReplaceEdit[T any](index int, oldItem, newItem T) Edit[T] {
	return Edit[T]{Action: ActionReplace, Item: newItem, OldItem: oldItem, Index: index, OldIndex: -1, Count: 1}
}

// MoveEdit builds an ActionMove edit.
func MoveEdit[T any](oldIndex, newIndex int, item T) Edit[T] {
	return Edit[T]{Action: ActionMove, Item: item, Index: newIndex, OldIndex: oldIndex, Count: 1}
}

// ResetEdit builds an ActionReset edit.
func ResetEdit[T any]() Edit[T] {
	return Edit[T]{Action: ActionReset, Index: -1, OldIndex: -1}
}

// String formats the edit for logs.
func (e Edit[T]) String() string {
	switch e.Action {
	case ActionMove:
		return fmt.Sprintf("%s[%d->%d]", e.Action, e.OldIndex, e.Index)
	case ActionReset:
		return e.Action.String()
	default:
		return fmt.Sprintf("%s[%d]", e.Action, e.Index)
	}
}

// Handler receives edits. It runs synchronously inside the mutation, while
// the source's write lock (Locker) is held. It may read the source but must
// not mutate it. A returned
// error is propagated to the caller that performed the mutation.
type Handler[T any] func(ctx context.Context, edit Edit[T]) error

// Source is a mutable ordered list that reports its changes.
//
// Len and At do not lock; callers on other goroutines must hold Locker()
// while reading.
type Source[T any] interface {
	Len() int
	At(i int) T
	Subscribe(h Handler[T]) (unsubscribe func())
	Locker() sync.Locker
}
