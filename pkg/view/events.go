package view

import (
	"context"

	"github.com/Sumatoshi-tech/collview/pkg/source"
)

// Event is a change to the view, expressed in the view's own index space.
// Index is the position after the change; OldIndex is set for moves.
type Event[T any] struct {
	Action   source.Action
	Item     T
	OldItem  T
	Index    int
	OldIndex int
}

// Property names a scalar piece of view state.
type Property string

// Properties reported through Listener.PropertyChanged.
const (
	PropCount                Property = "Count"
	PropIsEmpty              Property = "IsEmpty"
	PropCurrentItem          Property = "CurrentItem"
	PropCurrentPosition      Property = "CurrentPosition"
	PropIsCurrentBeforeFirst Property = "IsCurrentBeforeFirst"
	PropIsCurrentAfterLast   Property = "IsCurrentAfterLast"
	PropIsRefreshing         Property = "IsRefreshing"
)

// RefreshPhase marks the boundaries of a full recompute.
type RefreshPhase int

// Refresh phases.
const (
	RefreshStarting RefreshPhase = iota
	RefreshFinished
)

func (p RefreshPhase) String() string {
	if p == RefreshStarting {
		return "starting"
	}

	return "finished"
}

// Listener receives view notifications on the consumer context, in order.
type Listener[T any] interface {
	ViewChanged(ctx context.Context, ev Event[T])
	PropertyChanged(ctx context.Context, prop Property)
	RefreshChanged(ctx context.Context, phase RefreshPhase)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs[T any] struct {
	OnViewChanged     func(ctx context.Context, ev Event[T])
	OnPropertyChanged func(ctx context.Context, prop Property)
	OnRefreshChanged  func(ctx context.Context, phase RefreshPhase)
}

// ViewChanged implements Listener.
func (f ListenerFuncs[T]) ViewChanged(ctx context.Context, ev Event[T]) {
	if f.OnViewChanged != nil {
		f.OnViewChanged(ctx, ev)
	}
}

// PropertyChanged implements Listener.
func (f ListenerFuncs[T]) PropertyChanged(ctx context.Context, prop Property) {
	if f.OnPropertyChanged != nil {
		f.OnPropertyChanged(ctx, prop)
	}
}

// RefreshChanged implements Listener.
func (f ListenerFuncs[T]) RefreshChanged(ctx context.Context, phase RefreshPhase) {
	if f.OnRefreshChanged != nil {
		f.OnRefreshChanged(ctx, phase)
	}
}
