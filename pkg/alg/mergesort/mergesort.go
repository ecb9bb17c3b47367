// Package mergesort provides a fork-join parallel merge sort over generic
// slices with a caller-supplied comparator.
//
// The sort is NOT stable: equal elements may be reordered. Callers that need
// a deterministic order for equal keys must break ties in the comparator.
package mergesort

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Default thresholds, tuned for pointer-sized items.
const (
	// DefaultInsertionThreshold is the run length below which insertion sort is used.
	DefaultInsertionThreshold = 16

	// DefaultSequentialThreshold is the run length below which the run is
	// sorted on the calling goroutine with slices.SortFunc.
	DefaultSequentialThreshold = 4096

	// DefaultMergeThreshold is the combined length below which two runs are
	// merged sequentially.
	DefaultMergeThreshold = 8192
)

// Sentinel errors.
var (
	ErrInvalidThresholds = errors.New("mergesort: thresholds must be non-negative")
	ErrInvalidRange      = errors.New("mergesort: range out of bounds")
	ErrShortDestination  = errors.New("mergesort: destination shorter than range")
	ErrComparatorPanic   = errors.New("mergesort: comparator panicked")
)

// Thresholds controls where the recursion bottoms out. Zero values force the
// fully recursive parallel path; very large values force base-case-only
// execution. Both produce the same ordering.
type Thresholds struct {
	// Insertion is the length below which insertion sort is used.
	Insertion int `mapstructure:"insertion" yaml:"insertion"`

	// Sequential is the length below which a general-purpose sequential sort is used.
	Sequential int `mapstructure:"sequential" yaml:"sequential"`

	// Merge is the combined run length below which merging is sequential.
	Merge int `mapstructure:"merge" yaml:"merge"`
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Insertion:  DefaultInsertionThreshold,
		Sequential: DefaultSequentialThreshold,
		Merge:      DefaultMergeThreshold,
	}
}

// Validate reports whether the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.Insertion < 0 || t.Sequential < 0 || t.Merge < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidThresholds, t)
	}

	return nil
}

// SortInto sorts src[start:start+length] with cmp and writes the result into
// dst[:length]. The source range is used as scratch space and its order is
// unspecified afterwards. The call returns once sorting is complete. A panic
// in cmp, on any worker, is returned as ErrComparatorPanic and leaves dst
// unspecified.
func SortInto[T any](dst, src []T, start, length int, cmp func(a, b T) int, th Thresholds) error {
	err := th.Validate()
	if err != nil {
		return err
	}

	if start < 0 || length < 0 || start > len(src)-length {
		return fmt.Errorf("%w: start=%d length=%d len=%d", ErrInvalidRange, start, length, len(src))
	}

	if len(dst) < length {
		return fmt.Errorf("%w: need %d, have %d", ErrShortDestination, length, len(dst))
	}

	if length == 0 {
		return nil
	}

	s := sorter[T]{cmp: cmp, th: th}

	return guard(func() error { return s.sort(src[start:start+length], dst[:length], true) })
}

// Sort sorts items in place. It allocates one scratch buffer of len(items).
// Comparator panics are reported as for SortInto.
func Sort[T any](items []T, cmp func(a, b T) int, th Thresholds) error {
	err := th.Validate()
	if err != nil {
		return err
	}

	if len(items) < 2 {
		return nil
	}

	s := sorter[T]{cmp: cmp, th: th}

	return guard(func() error { return s.sort(items, make([]T, len(items)), false) })
}

// guard runs fn and turns a panic into ErrComparatorPanic.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrComparatorPanic, r)
		}
	}()

	return fn()
}

type sorter[T any] struct {
	cmp func(a, b T) int
	th  Thresholds
}

// sort orders the contents of a. The result lands in b when intoB is set,
// otherwise in a; the other slice is scratch. a and b have equal length.
// Children write into the buffer their parent does not, so the whole sort
// needs exactly one scratch buffer.
func (s *sorter[T]) sort(a, b []T, intoB bool) error {
	n := len(a)

	switch {
	case n == 0:
		return nil
	case n == 1:
		if intoB {
			b[0] = a[0]
		}

		return nil
	case n < s.th.Insertion:
		insertionSort(a, s.cmp)

		if intoB {
			copy(b, a)
		}

		return nil
	case n < s.th.Sequential:
		slices.SortFunc(a, s.cmp)

		if intoB {
			copy(b, a)
		}

		return nil
	}

	mid := int(uint(n) >> 1)

	var group errgroup.Group

	group.Go(func() error {
		return guard(func() error { return s.sort(a[:mid], b[:mid], !intoB) })
	})

	err := s.sort(a[mid:], b[mid:], !intoB)
	if err = errors.Join(err, group.Wait()); err != nil {
		return err
	}

	if intoB {
		return s.merge(a[:mid], a[mid:], b)
	}

	return s.merge(b[:mid], b[mid:], a)
}

// merge merges the sorted runs x and y into dst, splitting the work in two
// when the runs are long enough.
func (s *sorter[T]) merge(x, y, dst []T) error {
	if len(x)+len(y) < s.th.Merge {
		mergeSequential(x, y, dst, s.cmp)

		return nil
	}

	if len(x) < len(y) {
		x, y = y, x
	}

	if len(x) == 0 {
		return nil
	}

	m := int(uint(len(x)) >> 1)
	pivot := x[m]

	// Lower bound keeps every y[:k] strictly below the pivot.
	k, _ := slices.BinarySearchFunc(y, pivot, s.cmp)
	dst[m+k] = pivot

	var group errgroup.Group

	group.Go(func() error {
		return guard(func() error { return s.merge(x[:m], y[:k], dst[:m+k]) })
	})

	err := s.merge(x[m+1:], y[k:], dst[m+k+1:])

	return errors.Join(err, group.Wait())
}

func mergeSequential[T any](x, y, dst []T, cmp func(a, b T) int) {
	i, j, k := 0, 0, 0

	for i < len(x) && j < len(y) {
		if cmp(y[j], x[i]) < 0 {
			dst[k] = y[j]
			j++
		} else {
			dst[k] = x[i]
			i++
		}

		k++
	}

	k += copy(dst[k:], x[i:])
	copy(dst[k:], y[j:])
}

func insertionSort[T any](a []T, cmp func(a, b T) int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && cmp(a[j], a[j-1]) < 0; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}
