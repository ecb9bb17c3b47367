package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/collview/pkg/source"
)

func TestChangeLog_RecomputeSupersedes(t *testing.T) {
	t.Parallel()

	var log changeLog[string]

	assert.Zero(t, log.push(logEntry[string]{kind: entryEdit, edit: source.AddEdit(0, "X")}))
	assert.Zero(t, log.push(logEntry[string]{kind: entryEdit, edit: source.RemoveEdit(1, "Y")}))
	assert.Equal(t, 2, log.push(logEntry[string]{kind: entryRecompute}))
	assert.Zero(t, log.push(logEntry[string]{kind: entryEdit, edit: source.AddEdit(0, "Z")}))

	require.Equal(t, 2, log.len())

	first, ok := log.pop()
	require.True(t, ok)
	assert.Equal(t, entryRecompute, first.kind)

	second, ok := log.pop()
	require.True(t, ok)
	assert.Equal(t, "Z", second.edit.Item)

	_, ok = log.pop()
	assert.False(t, ok)
	assert.Zero(t, log.len())
}

func TestChangeLog_Clear(t *testing.T) {
	t.Parallel()

	var log changeLog[int]

	log.push(logEntry[int]{kind: entryEdit})
	log.push(logEntry[int]{kind: entryEdit})
	log.pop()

	assert.Equal(t, 1, log.clear())
	assert.Zero(t, log.len())
}

func TestShadowCopy_CopyAndApply(t *testing.T) {
	t.Parallel()

	var shadow shadowCopy[int]

	shadow.copyFrom(sliceSnapshot[int]{1, 2, 3, 4})
	require.True(t, shadow.valid)

	shadow.apply(source.AddEdit(1, 9))
	assert.Equal(t, []int{1, 9, 2, 3, 4}, shadow.items)

	shadow.apply(source.RemoveEdit(0, 1))
	assert.Equal(t, []int{9, 2, 3, 4}, shadow.items)

	shadow.apply(source.ReplaceEdit(2, 3, 7))
	assert.Equal(t, []int{9, 2, 7, 4}, shadow.items)

	shadow.apply(source.MoveEdit(0, 3, 9))
	assert.Equal(t, []int{2, 7, 4, 9}, shadow.items)

	capacity := cap(shadow.items)

	shadow.copyFrom(sliceSnapshot[int]{5})
	assert.Equal(t, []int{5}, shadow.items)
	assert.Equal(t, capacity, cap(shadow.items))

	shadow.invalidate()
	assert.False(t, shadow.valid)
	assert.Zero(t, shadow.Len())
}

func TestBufferPool_GetSizes(t *testing.T) {
	t.Parallel()

	var pool bufferPool[int]

	buf := pool.get(8)
	assert.Empty(t, buf)
	assert.GreaterOrEqual(t, cap(buf), 8)

	pool.put(append(buf, 1, 2, 3))

	again := pool.get(4)
	assert.Empty(t, again)
	assert.GreaterOrEqual(t, cap(again), 4)
}

func TestValidateEdit(t *testing.T) {
	t.Parallel()

	const sourceLen = 3

	tests := []struct {
		name string
		edit source.Edit[int]
		want error
	}{
		{"add inside", source.AddEdit(2, 1), nil},
		{"add past end", source.AddEdit(3, 1), ErrIndexOutOfRange},
		{"remove at end", source.RemoveEdit(3, 1), nil},
		{"remove negative", source.RemoveEdit(-1, 1), ErrIndexOutOfRange},
		{"replace past end", source.ReplaceEdit(3, 1, 2), ErrIndexOutOfRange},
		{"move inside", source.MoveEdit(0, 2, 1), nil},
		{"move from outside", source.MoveEdit(5, 2, 1), ErrIndexOutOfRange},
		{"multi item", source.Edit[int]{Action: source.ActionAdd, Index: 0, Count: 2}, ErrMultiItemEdit},
		{"unknown", source.Edit[int]{Action: source.Action(42), Count: 1}, ErrUnknownAction},
		{"reset", source.ResetEdit[int](), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateEdit(tt.edit, sourceLen)
			if tt.want == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.want)

			var contractErr *ContractError
			require.ErrorAs(t, err, &contractErr)
			assert.Equal(t, tt.edit.String(), contractErr.Edit)
		})
	}
}

func TestEditor_MoveWithoutComparator(t *testing.T) {
	t.Parallel()

	odd := &shapeInfo[int]{filter: func(n int) bool { return n%2 == 1 }}

	// Source before: [1 2 3 4 5], view [1 3 5]. Move 5 to the front.
	after := sliceSnapshot[int]{5, 1, 2, 3, 4}
	ed := editor[int]{items: []int{1, 3, 5}, shape: odd, snap: after}

	changes, err := ed.translate(source.MoveEdit(4, 0, 5))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, source.ActionMove, changes[0].action)
	assert.Equal(t, 2, changes[0].oldIndex)
	assert.Equal(t, 0, changes[0].index)

	// Moving an excluded item does not touch the view.
	after = sliceSnapshot[int]{1, 3, 2, 4, 5}
	ed = editor[int]{items: []int{1, 3, 5}, shape: odd, snap: after}

	changes, err = ed.translate(source.MoveEdit(1, 2, 2))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestEditor_MoveAcrossExcludedIsReplace(t *testing.T) {
	t.Parallel()

	odd := &shapeInfo[int]{filter: func(n int) bool { return n%2 == 1 }}

	// Source before: [1 2 3], view [1 3]. Moving 1 past 2 keeps view order.
	after := sliceSnapshot[int]{2, 1, 3}
	ed := editor[int]{items: []int{1, 3}, shape: odd, snap: after}

	changes, err := ed.translate(source.MoveEdit(0, 1, 1))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, source.ActionReplace, changes[0].action)
	assert.Equal(t, 0, changes[0].index)
}

func TestEditor_ReplaceRepositions(t *testing.T) {
	t.Parallel()

	sorted := &shapeInfo[int]{compare: func(a, b int) int { return a - b }}
	ed := editor[int]{items: []int{1, 3, 5, 8}, shape: sorted, snap: sliceSnapshot[int]{5, 9, 8, 1}}

	changes, err := ed.translate(source.ReplaceEdit(1, 3, 9))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, change[int]{action: source.ActionRemove, index: 1, oldIndex: -1, item: 3}, changes[0])
	assert.Equal(t, change[int]{action: source.ActionAdd, index: 3, oldIndex: -1, item: 9}, changes[1])

	items := ed.items
	for _, ch := range changes {
		items = applyChange(items, ch)
	}

	assert.Equal(t, []int{1, 5, 8, 9}, items)
}

func TestEditor_ReplaceInPlace(t *testing.T) {
	t.Parallel()

	sorted := &shapeInfo[int]{compare: func(a, b int) int { return a - b }}
	ed := editor[int]{items: []int{1, 3, 5, 8}, shape: sorted, snap: sliceSnapshot[int]{5, 4, 8, 1}}

	changes, err := ed.translate(source.ReplaceEdit(1, 3, 4))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, source.ActionReplace, changes[0].action)
	assert.Equal(t, 1, changes[0].index)
	assert.Equal(t, 3, changes[0].oldItem)
}

func TestCursor_Shift(t *testing.T) {
	t.Parallel()

	var c cursor[string]

	items := []string{"A", "B", "C", "D"}
	c.set(items, 2)

	items = []string{"X", "A", "B", "C", "D"}
	c.shift(items, change[string]{action: source.ActionAdd, index: 0, item: "X"})
	assert.Equal(t, 3, c.pos)
	assert.Equal(t, "C", c.item)

	items = []string{"X", "C", "A", "B", "D"}
	c.shift(items, change[string]{action: source.ActionMove, oldIndex: 3, index: 1, item: "C"})
	assert.Equal(t, 1, c.pos)

	items = []string{"X", "A", "B", "C", "D"}
	c.shift(items, change[string]{action: source.ActionMove, oldIndex: 1, index: 3, item: "C"})
	assert.Equal(t, 3, c.pos)
	assert.Equal(t, "C", c.item)

	items = []string{"A", "B", "C", "D", "X"}
	c.shift(items, change[string]{action: source.ActionMove, oldIndex: 0, index: 4, item: "X"})
	assert.Equal(t, 2, c.pos)
	assert.Equal(t, "C", c.item)

	items = []string{"A", "B", "D", "X"}
	c.shift(items, change[string]{action: source.ActionRemove, index: 2, item: "C"})
	assert.True(t, c.invalidated)
	assert.True(t, c.resolve(items))
	assert.Equal(t, 2, c.pos)
	assert.Equal(t, "D", c.item)
}

func TestCursor_Restore(t *testing.T) {
	t.Parallel()

	var c cursor[int]

	c.set([]int{1, 2, 3}, 1)
	c.restore([]int{3, 2, 1}, 3)
	assert.Equal(t, 1, c.pos)

	c.set([]int{1, 2, 3}, 0)
	c.restore([]int{3, 2}, 3)
	assert.Equal(t, 0, c.pos)
	assert.Equal(t, 3, c.item)

	c.set([]int{1, 2, 3}, 3)
	c.restore([]int{4, 5}, 3)
	assert.Equal(t, 2, c.pos)

	c.set([]int{1, 2, 3}, -1)
	c.restore([]int{4, 5}, 3)
	assert.Equal(t, -1, c.pos)

	c.set([]int{1, 2, 3}, 2)
	c.restore(nil, 3)
	assert.Equal(t, -1, c.pos)
}
