package view

import (
	"errors"
	"fmt"
)

// Usage faults.
var (
	ErrDeferredRefresh = errors.New("view: operation not allowed while refresh is deferred")
	ErrWrongContext    = errors.New("view: called off the consumer context")
	ErrDetached        = errors.New("view: detached from source")
	ErrPositionRange   = errors.New("view: current position out of range")
)

// Contract violations reported by the source adapter.
var (
	ErrMultiItemEdit   = errors.New("view: edit affects more than one item")
	ErrIndexOutOfRange = errors.New("view: edit index out of range")
	ErrUnknownAction   = errors.New("view: unknown edit action")
)

// ContractError reports an edit rejected because it breaks the source
// contract. The edit is discarded; the view is left untouched.
type ContractError struct {
	Edit   string
	Reason error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("view: rejected edit %s: %v", e.Edit, e.Reason)
}

func (e *ContractError) Unwrap() error {
	return e.Reason
}
