package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/collview/pkg/eventloop"
	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// engine is what the scheduler drives. View implements it.
type engine[T comparable] interface {
	// materialize rebuilds the view from snap. It returns true when the work
	// continues in the background; resume is then invoked on the consumer
	// context once the result has been adopted.
	materialize(ctx context.Context, snap snapshot[T], async, stable bool, resume eventloop.Task) bool

	// applyEdit incrementally applies one validated source edit. snap is the
	// source state as of the edit.
	applyEdit(ctx context.Context, e source.Edit[T], snap snapshot[T]) error

	currentItem() (T, bool)
}

// scheduler owns the change log and drains it on the consumer context in
// bounded slices.
type scheduler[T comparable] struct {
	src        source.Source[T]
	dispatcher eventloop.Dispatcher
	eng        engine[T]
	cfg        *settings

	mu       sync.Mutex
	log      changeLog[T]
	shadow   shadowCopy[T]
	draining bool
	detached bool
	settled  chan struct{}
}

func newScheduler[T comparable](src source.Source[T], d eventloop.Dispatcher, eng engine[T], cfg *settings) *scheduler[T] {
	settled := make(chan struct{})
	close(settled)

	return &scheduler[T]{
		src:        src,
		dispatcher: d,
		eng:        eng,
		cfg:        cfg,
		settled:    settled,
	}
}

// checkContext rejects source edits raised off the consumer context unless
// cross-context mode is on.
func (s *scheduler[T]) checkContext(ctx context.Context) error {
	if s.cfg.crossContext || s.dispatcher.OnContext(ctx) {
		return nil
	}

	return ErrWrongContext
}

// post appends e to the log and starts a drain when none is active.
// fromSource marks entries raised inside a source notification, which run
// with the source lock held.
func (s *scheduler[T]) post(ctx context.Context, e logEntry[T], fromSource bool) error {
	if e.kind == entryEdit {
		if err := s.checkContext(ctx); err != nil {
			return fmt.Errorf("%w: %s", err, e.edit)
		}
	}

	s.mu.Lock()

	if s.detached {
		s.mu.Unlock()

		if fromSource {
			return nil
		}

		return ErrDetached
	}

	// Once edits queue up, the live source runs ahead of the log. Pin the
	// state as of this edit so it can be replayed faithfully.
	if e.kind == entryEdit && !s.shadow.valid && (s.cfg.crossContext || s.draining || s.log.len() > 0) {
		s.shadow.copyFrom(s.src)
		e.mirrored = true
	}

	superseded := s.log.push(e)

	start := !s.draining
	if start {
		s.draining = true
		s.settled = make(chan struct{})
	}

	s.mu.Unlock()

	if superseded > 0 {
		s.cfg.metrics.RecordSuperseded(ctx, superseded)
	}

	if !start {
		return nil
	}

	// Draining inline from a notification would take the source lock again
	// in cross-context mode.
	if s.dispatcher.OnContext(ctx) && !(fromSource && s.cfg.crossContext) {
		return s.drain(ctx)
	}

	s.dispatcher.Post(s.resume)

	return nil
}

// resume continues draining on a scheduled pass.
func (s *scheduler[T]) resume(ctx context.Context) {
	if err := s.drain(ctx); err != nil {
		s.report(ctx, err)
	}
}

// drain processes log entries until the log is empty, a background
// recompute takes over, or the slice exceeds the yield threshold.
func (s *scheduler[T]) drain(ctx context.Context) error {
	start := time.Now()

	var errs []error

	for processed := 0; ; processed++ {
		s.mu.Lock()

		if s.detached {
			s.mu.Unlock()

			return errors.Join(errs...)
		}

		if s.log.len() == 0 {
			s.finishLocked()
			s.mu.Unlock()

			return errors.Join(errs...)
		}

		if processed > 0 && s.cfg.yieldThreshold > 0 && time.Since(start) > s.cfg.yieldThreshold {
			s.mu.Unlock()
			s.cfg.metrics.RecordYield(ctx)
			s.dispatcher.Post(s.resume)

			return errors.Join(errs...)
		}

		e, _ := s.log.pop()

		var snap snapshot[T] = s.src

		if e.kind == entryEdit && s.shadow.valid {
			if !e.mirrored {
				s.shadow.apply(e.edit)
			}

			snap = &s.shadow
		}

		s.mu.Unlock()

		switch e.kind {
		case entryEdit:
			if err := s.eng.applyEdit(ctx, e.edit, snap); err != nil {
				errs = append(errs, err)
			}
		case entryRecompute:
			if s.recompute(ctx) {
				return errors.Join(errs...)
			}
		}
	}
}

// recompute runs one full rebuild. Entries still queued behind the token are
// dropped because the snapshot it reads already reflects them.
func (s *scheduler[T]) recompute(ctx context.Context) bool {
	if s.cfg.crossContext {
		lock := s.src.Locker()
		lock.Lock()
		s.mu.Lock()

		s.shadow.copyFrom(s.src)
		dropped := s.log.clear()

		s.mu.Unlock()
		lock.Unlock()

		s.recordDropped(ctx, dropped)

		// The slice header stays valid for a background build even if the
		// view is detached meanwhile.
		snap := sliceSnapshot[T](s.shadow.items)

		return s.eng.materialize(ctx, snap, s.asyncFor(snap.Len()), true, s.resume)
	}

	s.mu.Lock()
	dropped := s.log.clear()
	s.shadow.invalidate()
	s.mu.Unlock()

	s.recordDropped(ctx, dropped)

	return s.eng.materialize(ctx, s.src, s.asyncFor(s.src.Len()), false, s.resume)
}

func (s *scheduler[T]) asyncFor(n int) bool {
	return s.cfg.asyncThreshold > 0 && n >= s.cfg.asyncThreshold
}

func (s *scheduler[T]) recordDropped(ctx context.Context, n int) {
	if n > 0 {
		s.cfg.metrics.RecordSuperseded(ctx, n)
	}
}

// finishLocked ends a drain. s.mu must be held.
func (s *scheduler[T]) finishLocked() {
	s.draining = false

	if !s.cfg.crossContext {
		s.shadow.invalidate()
	}

	close(s.settled)
}

// synchronize copies the source into the shadow. Used at attach time in
// cross-context mode; the caller holds the source lock.
func (s *scheduler[T]) synchronize() *shadowCopy[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shadow.copyFrom(s.src)

	return &s.shadow
}

// detach stops processing and drops pending entries. It reports how many
// entries were dropped.
func (s *scheduler[T]) detach() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return 0
	}

	s.detached = true
	dropped := s.log.clear()
	s.shadow.release()

	if s.draining {
		s.draining = false
		close(s.settled)
	}

	return dropped
}

// waitIdle blocks until the current drain, if any, has finished.
func (s *scheduler[T]) waitIdle(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// report surfaces an error raised where no caller is waiting for it.
func (s *scheduler[T]) report(ctx context.Context, err error) {
	s.cfg.logger.ErrorContext(ctx, "view: change processing failed", "error", err)

	if s.cfg.onError != nil {
		s.cfg.onError(err)
	}
}
