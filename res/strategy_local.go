//go:build !rescell_sync

package res

import "github.com/kolkov/rescell/internal/cell/localcell"

// Strategy names the compiled cell strategy.
const Strategy = "single-owner"

// Blocking reports whether conflicting borrows wait instead of panicking.
const Blocking = false

// Cell is a handle to a shared value.
type Cell[T any] = localcell.Cell[T]

// Ref is a read guard.
type Ref[T any] = localcell.Ref[T]

// RefMut is a write guard.
type RefMut[T any] = localcell.RefMut[T]

// New wraps v in a new cell with one handle.
func New[T any](v T) *Cell[T] {
	return localcell.New(v)
}

// NewWithDrop is New with a teardown hook that replaces any Drop method.
func NewWithDrop[T any](v T, drop func(*T)) *Cell[T] {
	return localcell.NewWithDrop(v, drop)
}
