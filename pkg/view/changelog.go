package view

import (
	"github.com/Sumatoshi-tech/collview/pkg/source"
)

type entryKind int

const (
	entryEdit entryKind = iota
	entryRecompute
)

// logEntry is one pending unit of work: a source edit or a recompute token.
type logEntry[T any] struct {
	kind entryKind
	edit source.Edit[T]

	// mirrored is set when the shadow copy was synchronized while this edit
	// was posted, so it already reflects the edit.
	mirrored bool
}

// changeLog is a FIFO of pending entries. A recompute token discards every
// entry queued before it.
type changeLog[T any] struct {
	entries []logEntry[T]
	head    int
}

// push appends e and returns how many older entries it superseded.
func (l *changeLog[T]) push(e logEntry[T]) int {
	superseded := 0

	if e.kind == entryRecompute {
		superseded = l.clear()
	}

	l.entries = append(l.entries, e)

	return superseded
}

func (l *changeLog[T]) pop() (logEntry[T], bool) {
	if l.head >= len(l.entries) {
		return logEntry[T]{}, false
	}

	e := l.entries[l.head]
	l.entries[l.head] = logEntry[T]{}
	l.head++

	if l.head == len(l.entries) {
		l.entries = l.entries[:0]
		l.head = 0
	}

	return e, true
}

func (l *changeLog[T]) len() int {
	return len(l.entries) - l.head
}

// clear drops every pending entry and returns how many there were.
func (l *changeLog[T]) clear() int {
	n := l.len()

	clear(l.entries)
	l.entries = l.entries[:0]
	l.head = 0

	return n
}
