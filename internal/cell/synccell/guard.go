package synccell

import (
	"sync/atomic"

	"github.com/kolkov/rescell/internal/cell/borrow"
)

// Ref is a read guard. It holds a read lock on the allocation and keeps
// it alive until Release.
type Ref[T any] struct {
	a        *alloc[T]
	token    uint64
	released atomic.Bool
}

// RefMut is a write guard. It holds the write lock on the allocation and
// keeps it alive until Release.
type RefMut[T any] struct {
	a        *alloc[T]
	token    uint64
	released atomic.Bool
}

func (a *alloc[T]) newRef() *Ref[T] {
	a.refs.Add(1)
	r := &Ref[T]{a: a}
	if a.tracker != nil {
		r.token = a.tracker.Add(borrow.Capture(borrow.Shared, 0))
	}
	return r
}

func (a *alloc[T]) newRefMut() *RefMut[T] {
	a.refs.Add(1)
	w := &RefMut[T]{a: a}
	if a.tracker != nil {
		w.token = a.tracker.Add(borrow.Capture(borrow.Exclusive, 0))
	}
	return w
}

// Get returns a pointer to the value. The value must only be read through
// it, and the pointer must not be used after Release.
func (r *Ref[T]) Get() *T {
	if r.released.Load() {
		panic(borrow.ErrReleased)
	}
	return &r.a.value
}

// Release gives the read lock back. Calls after the first are no-ops.
func (r *Ref[T]) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.a.tracker.Remove(r.token)
	r.a.lock.release(borrow.Shared)
	r.a.unref()
}

// Get returns a pointer to the value for reading and writing. The pointer
// must not be used after Release.
func (w *RefMut[T]) Get() *T {
	if w.released.Load() {
		panic(borrow.ErrReleased)
	}
	return &w.a.value
}

// Set replaces the value.
func (w *RefMut[T]) Set(v T) {
	*w.Get() = v
}

// Release gives the write lock back. Calls after the first are no-ops.
//
// When Release runs as a deferred call of a panicking goroutine the cell
// is poisoned and the panic continues. runtime.Goexit is not a panic, so a
// goroutine that exits under a deferred Release leaves the cell unpoisoned;
// use Write to cover that path as well.
func (w *RefMut[T]) Release() {
	if w == nil {
		return
	}
	if p := recover(); p != nil {
		w.abandon()
		panic(p)
	}
	w.release()
}

func (w *RefMut[T]) release() {
	if !w.released.CompareAndSwap(false, true) {
		return
	}
	w.a.tracker.Remove(w.token)
	w.a.lock.release(borrow.Exclusive)
	w.a.unref()
}

// abandon releases the guard after an abnormal exit. The poison flag is
// set before the lock is released so the next holder sees it.
func (w *RefMut[T]) abandon() {
	if !w.released.CompareAndSwap(false, true) {
		return
	}
	w.a.poisoned.Store(true)
	w.a.tracker.Remove(w.token)
	w.a.lock.release(borrow.Exclusive)
	w.a.unref()
}
