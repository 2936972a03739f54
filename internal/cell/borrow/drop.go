package borrow

import "sync/atomic"

// Dropper is implemented by values that need teardown when the last
// reference to their cell goes away.
type Dropper interface {
	Drop()
}

// Teardown runs the teardown of a cell value.
//
// drop wins if set; otherwise *T and then T are checked for Dropper.
func Teardown[T any](v *T, drop func(*T)) {
	if drop != nil {
		drop(v)
		return
	}
	if d, ok := any(v).(Dropper); ok {
		d.Drop()
		return
	}
	if d, ok := any(*v).(Dropper); ok {
		d.Drop()
	}
}

// cellIDs allocates allocation IDs. Allocations on different goroutines
// share it, so it is atomic even for single-owner cells.
var cellIDs atomic.Uint64

// NextID returns a fresh allocation ID. IDs start at 1.
func NextID() uint64 {
	return cellIDs.Add(1)
}
