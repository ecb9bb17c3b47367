// Package eventloop provides a single-goroutine cooperative execution
// context. Work posted from any goroutine runs in FIFO order on the goroutine
// that called Run; tasks identify that context through the ctx they receive.
package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sentinel errors.
var (
	ErrAlreadyRunning = errors.New("eventloop: already running")
	ErrClosed         = errors.New("eventloop: closed")
)

// Task is a unit of work executed on the loop. ctx identifies the loop
// context and is cancelled when the loop stops.
type Task func(ctx context.Context)

// Dispatcher is the consumer-context contract: Post schedules work on the
// context, OnContext reports whether ctx belongs to it.
type Dispatcher interface {
	Post(task Task)
	OnContext(ctx context.Context) bool
}

type loopKey struct{}

// Loop is the reference Dispatcher.
type Loop struct {
	mu      sync.Mutex
	queue   []Task
	pending int
	idle    chan struct{}
	closed  bool
	running bool

	wake   chan struct{}
	stop   chan struct{}
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for dropped tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a stopped loop.
func New(opts ...Option) *Loop {
	idle := make(chan struct{})
	close(idle)

	l := &Loop{
		idle:   idle,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run executes posted tasks on the calling goroutine until ctx is cancelled
// or Close is called. It returns nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()

	if l.running {
		l.mu.Unlock()

		return ErrAlreadyRunning
	}

	if l.closed {
		l.mu.Unlock()

		return ErrClosed
	}

	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	loopCtx, cancel := context.WithCancel(context.WithValue(ctx, loopKey{}, l))
	defer cancel()

	for {
		task, ok := l.next()
		if !ok {
			select {
			case <-l.wake:
				continue
			case <-l.stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		task(loopCtx)
		l.done()
	}
}

// Post schedules task. Tasks posted after Close are dropped.
func (l *Loop) Post(task Task) {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("eventloop: task dropped after close")

		return
	}

	l.queue = append(l.queue, task)

	l.pending++
	if l.pending == 1 {
		l.idle = make(chan struct{})
	}

	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// OnContext reports whether ctx was handed out by this loop.
func (l *Loop) OnContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	owner, _ := ctx.Value(loopKey{}).(*Loop)

	return owner == l
}

// Invoke runs fn on the loop and waits for it to return. When ctx already
// belongs to the loop, fn runs inline.
func (l *Loop) Invoke(ctx context.Context, fn Task) error {
	if l.OnContext(ctx) {
		fn(ctx)

		return nil
	}

	done := make(chan struct{})

	l.Post(func(loopCtx context.Context) {
		defer close(done)

		fn(loopCtx)
	})

	select {
	case <-done:
		return nil
	case <-l.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until no task is queued or running. Work posted later by
// other goroutines is not waited for.
func (l *Loop) WaitIdle(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Queued tasks are discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.closed = true
	l.queue = nil

	if l.pending > 0 {
		l.pending = 0
		close(l.idle)
	}

	close(l.stop)
}

func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 || l.closed {
		return nil, false
	}

	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]

	return task, true
}

func (l *Loop) done() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == 0 {
		return
	}

	l.pending--
	if l.pending == 0 {
		close(l.idle)
	}
}
