package view

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// shapeInfo is an immutable {filter, comparator, parallel} snapshot. The view
// swaps whole values; a recompute captures one and keeps it for its lifetime.
type shapeInfo[T any] struct {
	filter   func(T) bool
	compare  func(a, b T) int
	parallel bool
}

func (s *shapeInfo[T]) accepts(item T) bool {
	return s.filter == nil || s.filter(item)
}

// change is one view-level edit produced by translating a source edit.
type change[T any] struct {
	action   source.Action
	index    int
	oldIndex int
	item     T
	oldItem  T
}

// validateEdit checks the single-item contract against the source length
// as of the edit.
func validateEdit[T any](e source.Edit[T], n int) error {
	if e.Action == source.ActionReset {
		return nil
	}

	if e.Count != 1 {
		return &ContractError{Edit: e.String(), Reason: fmt.Errorf("%w: count %d", ErrMultiItemEdit, e.Count)}
	}

	var ok bool

	switch e.Action {
	case source.ActionAdd, source.ActionReplace:
		ok = e.Index >= 0 && e.Index < n
	case source.ActionRemove:
		ok = e.Index >= 0 && e.Index <= n
	case source.ActionMove:
		ok = e.Index >= 0 && e.Index < n && e.OldIndex >= 0 && e.OldIndex < n
	default:
		return &ContractError{Edit: e.String(), Reason: ErrUnknownAction}
	}

	if !ok {
		return &ContractError{Edit: e.String(), Reason: fmt.Errorf("%w: source length %d", ErrIndexOutOfRange, n)}
	}

	return nil
}

// editor translates single-item source edits into view edits against the
// materialized array. snap is the source state as of the edit.
type editor[T comparable] struct {
	items []T
	shape *shapeInfo[T]
	snap  snapshot[T]
}

// translate returns the view edits for e; nil means the view is unaffected.
// A replacement that changes position yields a removal followed by an add.
func (ed *editor[T]) translate(e source.Edit[T]) ([]change[T], error) {
	switch e.Action {
	case source.ActionAdd:
		return ed.translateAdd(e), nil
	case source.ActionRemove:
		return ed.translateRemove(e), nil
	case source.ActionReplace:
		return ed.translateReplace(e), nil
	case source.ActionMove:
		return ed.translateMove(e), nil
	case source.ActionReset:
		return nil, nil
	default:
		return nil, &ContractError{Edit: e.String(), Reason: ErrUnknownAction}
	}
}

func (ed *editor[T]) translateAdd(e source.Edit[T]) []change[T] {
	if !ed.shape.accepts(e.Item) {
		return nil
	}

	return []change[T]{{action: source.ActionAdd, index: ed.slot(e.Item, e.Index), oldIndex: -1, item: e.Item}}
}

func (ed *editor[T]) translateRemove(e source.Edit[T]) []change[T] {
	idx := ed.locate(e.Item, e.Index)
	if idx < 0 {
		return nil
	}

	return []change[T]{{action: source.ActionRemove, index: idx, oldIndex: -1, item: e.Item}}
}

func (ed *editor[T]) translateReplace(e source.Edit[T]) []change[T] {
	oldIdx := ed.locate(e.OldItem, e.Index)
	newIn := ed.shape.accepts(e.Item)

	switch {
	case oldIdx < 0 && !newIn:
		return nil
	case oldIdx < 0:
		return []change[T]{{action: source.ActionAdd, index: ed.slot(e.Item, e.Index), oldIndex: -1, item: e.Item}}
	case !newIn:
		return []change[T]{{action: source.ActionRemove, index: oldIdx, oldIndex: -1, item: e.OldItem}}
	}

	newIdx := oldIdx
	if ed.shape.compare != nil {
		newIdx = ed.slotExcluding(e.Item, oldIdx)
	}

	if newIdx == oldIdx {
		return []change[T]{{
			action: source.ActionReplace, index: oldIdx, oldIndex: oldIdx, item: e.Item, oldItem: e.OldItem,
		}}
	}

	return []change[T]{
		{action: source.ActionRemove, index: oldIdx, oldIndex: -1, item: e.OldItem},
		{action: source.ActionAdd, index: newIdx, oldIndex: -1, item: e.Item},
	}
}

func (ed *editor[T]) translateMove(e source.Edit[T]) []change[T] {
	nowIn := ed.shape.accepts(e.Item)

	var oldIdx, newIdx int

	if ed.shape.compare == nil {
		// snap is the state after the move. Before it, the item sat at
		// OldIndex; when it moved towards the front, the prefix before
		// OldIndex also held the item's new slot.
		if e.OldIndex <= e.Index {
			oldIdx = ed.rank(e.OldIndex)
		} else {
			oldIdx = ed.rank(e.OldIndex + 1)
			if nowIn {
				oldIdx--
			}
		}

		if oldIdx >= len(ed.items) || ed.items[oldIdx] != e.Item {
			oldIdx = -1
		}

		newIdx = ed.rank(e.Index)
	} else {
		oldIdx = ed.locateSorted(e.Item)
		newIdx = oldIdx

		if oldIdx < 0 {
			newIdx = ed.lowerBound(e.Item)
		}
	}

	switch {
	case oldIdx < 0 && !nowIn:
		return nil
	case oldIdx < 0:
		return []change[T]{{action: source.ActionAdd, index: newIdx, oldIndex: -1, item: e.Item}}
	case !nowIn:
		return []change[T]{{action: source.ActionRemove, index: oldIdx, oldIndex: -1, item: e.Item}}
	case oldIdx == newIdx:
		return []change[T]{{
			action: source.ActionReplace, index: oldIdx, oldIndex: oldIdx, item: e.Item, oldItem: e.Item,
		}}
	default:
		return []change[T]{{action: source.ActionMove, index: newIdx, oldIndex: oldIdx, item: e.Item}}
	}
}

// rank counts the accepted source items in [0, end).
func (ed *editor[T]) rank(end int) int {
	end = min(end, ed.snap.Len())
	if ed.shape.filter == nil {
		return end
	}

	n := 0

	for i := range end {
		if ed.shape.filter(ed.snap.At(i)) {
			n++
		}
	}

	return n
}

// slot returns the view index for an item entering at source index srcIdx.
func (ed *editor[T]) slot(item T, srcIdx int) int {
	if ed.shape.compare == nil {
		return ed.rank(srcIdx)
	}

	return ed.lowerBound(item)
}

func (ed *editor[T]) lowerBound(item T) int {
	idx, _ := slices.BinarySearchFunc(ed.items, item, ed.shape.compare)

	return idx
}

// slotExcluding is lowerBound computed as if items[skip] were absent.
func (ed *editor[T]) slotExcluding(item T, skip int) int {
	idx := ed.lowerBound(item)
	if skip < idx {
		idx--
	}

	return idx
}

// locate finds the view index of an item that sat at source index srcIdx,
// or -1 when the item is not in the view.
func (ed *editor[T]) locate(item T, srcIdx int) int {
	if ed.shape.compare != nil {
		return ed.locateSorted(item)
	}

	if !ed.shape.accepts(item) {
		return -1
	}

	if r := ed.rank(srcIdx); r < len(ed.items) && ed.items[r] == item {
		return r
	}

	return slices.Index(ed.items, item)
}

func (ed *editor[T]) locateSorted(item T) int {
	for i := ed.lowerBound(item); i < len(ed.items); i++ {
		if ed.items[i] == item {
			return i
		}

		if ed.shape.compare(ed.items[i], item) != 0 {
			break
		}
	}

	// The item's sort key may have changed in place; fall back to a scan.
	return slices.Index(ed.items, item)
}

// applyChange mutates items for ch and returns the new slice.
func applyChange[T any](items []T, ch change[T]) []T {
	switch ch.action {
	case source.ActionAdd:
		return slices.Insert(items, ch.index, ch.item)
	case source.ActionRemove:
		return slices.Delete(items, ch.index, ch.index+1)
	case source.ActionReplace:
		items[ch.index] = ch.item
	case source.ActionMove:
		items = slices.Delete(items, ch.oldIndex, ch.oldIndex+1)

		return slices.Insert(items, ch.index, ch.item)
	case source.ActionReset:
	}

	return items
}
