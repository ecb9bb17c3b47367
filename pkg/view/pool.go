package view

import "sync"

// bufferPool recycles item slices between recomputes.
type bufferPool[T any] struct {
	pool sync.Pool
}

// get returns an empty slice with capacity for at least n items.
func (p *bufferPool[T]) get(n int) []T {
	if v, ok := p.pool.Get().(*[]T); ok && cap(*v) >= n {
		return (*v)[:0]
	}

	return make([]T, 0, n)
}

// put returns buf to the pool. Items are cleared so the pool does not pin them.
func (p *bufferPool[T]) put(buf []T) {
	if cap(buf) == 0 {
		return
	}

	clear(buf[:cap(buf)])
	buf = buf[:0]
	p.pool.Put(&buf)
}
