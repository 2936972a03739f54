//go:build rescell_sync

package res

import "github.com/kolkov/rescell/internal/cell/synccell"

// Strategy names the compiled cell strategy.
const Strategy = "cross-goroutine"

// Blocking reports whether conflicting borrows wait instead of panicking.
const Blocking = true

// Cell is a handle to a shared value.
type Cell[T any] = synccell.Cell[T]

// Ref is a read guard.
type Ref[T any] = synccell.Ref[T]

// RefMut is a write guard.
type RefMut[T any] = synccell.RefMut[T]

// New wraps v in a new cell with one handle.
func New[T any](v T) *Cell[T] {
	return synccell.New(v)
}

// NewWithDrop is New with a teardown hook that replaces any Drop method.
func NewWithDrop[T any](v T, drop func(*T)) *Cell[T] {
	return synccell.NewWithDrop(v, drop)
}
