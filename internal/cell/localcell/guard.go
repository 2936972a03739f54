package localcell

import "github.com/kolkov/rescell/internal/cell/borrow"

// Ref is a read guard.
//
// The guard is live from the Borrow call until Release. Release it with
// defer right after borrowing:
//
//	r := c.Borrow()
//	defer r.Release()
type Ref[T any] struct {
	a        *alloc[T]
	token    uint64
	released bool
}

// RefMut is a write guard. While it is live no other guard of the same
// allocation can exist.
type RefMut[T any] struct {
	a        *alloc[T]
	token    uint64
	released bool
}

func (a *alloc[T]) newRef() *Ref[T] {
	a.refs++
	r := &Ref[T]{a: a}
	if a.tracker != nil {
		r.token = a.tracker.Add(borrow.Capture(borrow.Shared, 0))
	}
	return r
}

func (a *alloc[T]) newRefMut() *RefMut[T] {
	a.refs++
	w := &RefMut[T]{a: a}
	if a.tracker != nil {
		w.token = a.tracker.Add(borrow.Capture(borrow.Exclusive, 0))
	}
	return w
}

// Get returns a pointer to the value. The value must only be read through
// it, and the pointer must not be used after Release.
func (r *Ref[T]) Get() *T {
	if r.released {
		panic(borrow.ErrReleased)
	}
	r.a.enter()
	return &r.a.value
}

// Release ends the borrow. Calls after the first are no-ops.
func (r *Ref[T]) Release() {
	if r == nil || r.released {
		return
	}
	r.a.enter()

	r.released = true
	r.a.tracker.Remove(r.token)
	r.a.flag.ReleaseShared()
	r.a.unref()
}

// Get returns a pointer to the value for reading and writing. The pointer
// must not be used after Release.
func (w *RefMut[T]) Get() *T {
	if w.released {
		panic(borrow.ErrReleased)
	}
	w.a.enter()
	return &w.a.value
}

// Set replaces the value.
func (w *RefMut[T]) Set(v T) {
	*w.Get() = v
}

// Release ends the borrow. Calls after the first are no-ops.
func (w *RefMut[T]) Release() {
	if w == nil || w.released {
		return
	}
	w.a.enter()

	w.released = true
	w.a.tracker.Remove(w.token)
	w.a.flag.ReleaseExclusive()
	w.a.unref()
}
