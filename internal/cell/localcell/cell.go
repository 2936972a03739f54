// Package localcell implements the single-owner cell strategy.
//
// Every handle to an allocation is expected to stay on one goroutine. The
// reference count and borrow flag are plain integers, nothing blocks, and a
// borrow that would break the exclusivity rule panics with a
// *borrow.ConflictError at the conflicting call:
//
//	c := localcell.New([]string{"a"})
//	w := c.BorrowMut()
//	defer w.Release()
//	c.Borrow() // panics: rescell: cell 1 already mutably borrowed
//
// Lifetime:
//   - New creates the allocation with one handle.
//   - Clone adds a handle, Release removes one.
//   - Live guards keep the allocation alive as well.
//   - When the last handle and the last guard are gone the value's
//     teardown runs, exactly once.
package localcell

import (
	"context"
	"fmt"

	"github.com/kolkov/rescell/internal/cell/borrow"
	"github.com/kolkov/rescell/internal/cell/config"
	"github.com/kolkov/rescell/internal/cell/goroutine"
	"github.com/kolkov/rescell/internal/cell/leak"
)

// alloc is the shared allocation behind every handle.
type alloc[T any] struct {
	value T
	flag  borrow.Flag

	// refs counts handles plus live guards; teardown runs when it hits 0.
	refs int
	// handles counts live handles only (Count).
	handles int
	dropped bool
	drop    func(*T)

	id uint64

	// Diagnostics, fixed at creation from config.Current().
	owner   int64 // 0 unless checkOwner
	tracker *borrow.Tracker
	report  bool
}

// Cell is one handle to a shared allocation.
//
// Handles are interchangeable: the one returned by New is not special, and
// the allocation outlives any individual handle.
type Cell[T any] struct {
	a        *alloc[T]
	released bool
}

// New wraps v in a new allocation with one handle and no active borrows.
func New[T any](v T) *Cell[T] {
	return newCell(v, nil)
}

// NewWithDrop is New with an explicit teardown hook. drop runs once, when
// the last reference is gone, instead of any Drop method of T.
func NewWithDrop[T any](v T, drop func(*T)) *Cell[T] {
	return newCell(v, drop)
}

func newCell[T any](v T, drop func(*T)) *Cell[T] {
	cfg := config.Current()

	a := &alloc[T]{
		value:   v,
		refs:    1,
		handles: 1,
		drop:    drop,
		id:      borrow.NextID(),
		report:  cfg.ReportConflicts,
	}
	if cfg.CheckOwner {
		a.owner = goroutine.ID()
	}
	if cfg.TrackBorrows {
		a.tracker = borrow.NewTracker()
	}
	if cfg.LeakReport {
		leak.Track(a.id, 0)
		leak.ReportAtExit(config.Output)
	}

	return &Cell[T]{a: a}
}

// enter checks owner confinement.
func (a *alloc[T]) enter() {
	if a.owner == 0 {
		return
	}
	if gid := goroutine.ID(); gid != a.owner {
		panic(fmt.Errorf("%w: cell %d is owned by goroutine %d, called from goroutine %d",
			borrow.ErrWrongGoroutine, a.id, a.owner, gid))
	}
}

// live returns the allocation of a handle that has not been released.
func (c *Cell[T]) live() *alloc[T] {
	if c == nil || c.released {
		panic(borrow.ErrReleased)
	}
	c.a.enter()
	return c.a
}

// unref drops one reference and runs teardown on the last one.
func (a *alloc[T]) unref() {
	a.refs--
	if a.refs > 0 || a.dropped {
		return
	}

	// Mark first: a panicking teardown must not run twice.
	a.dropped = true
	leak.Untrack(a.id)
	borrow.Teardown(&a.value, a.drop)

	var zero T
	a.value = zero
}

// Clone returns a new handle to the same allocation.
//
// Performance: O(1), no allocation of the value.
func (c *Cell[T]) Clone() *Cell[T] {
	a := c.live()
	a.refs++
	a.handles++
	return &Cell[T]{a: a}
}

// Release drops this handle. If it was the last reference, the value's
// teardown runs before Release returns.
//
// Releasing a handle twice panics with borrow.ErrReleased.
func (c *Cell[T]) Release() {
	a := c.live()
	c.released = true
	a.handles--
	a.unref()
}

// Count returns the number of live handles to the allocation.
func (c *Cell[T]) Count() int {
	return c.live().handles
}

// SameAs reports whether both handles refer to the same allocation.
func (c *Cell[T]) SameAs(other *Cell[T]) bool {
	return c.live() == other.live()
}

// ID returns the allocation ID used in reports.
func (c *Cell[T]) ID() uint64 {
	return c.live().id
}

// State returns a snapshot of the borrow state.
func (c *Cell[T]) State() borrow.State {
	return c.live().flag.State()
}

// IsPoisoned always reports false: single-owner cells are never poisoned.
func (c *Cell[T]) IsPoisoned() bool {
	c.live()
	return false
}

// ClearPoison is a no-op for single-owner cells.
func (c *Cell[T]) ClearPoison() {
	c.live()
}

// TryBorrow returns a read guard, or a *borrow.ConflictError if a write
// guard is live.
func (c *Cell[T]) TryBorrow() (*Ref[T], error) {
	a := c.live()
	if !a.flag.TryShared() {
		return nil, a.conflict(borrow.Shared)
	}
	return a.newRef(), nil
}

// TryBorrowMut returns a write guard, or a *borrow.ConflictError if any
// guard is live.
func (c *Cell[T]) TryBorrowMut() (*RefMut[T], error) {
	a := c.live()
	if !a.flag.TryExclusive() {
		return nil, a.conflict(borrow.Exclusive)
	}
	return a.newRefMut(), nil
}

// Borrow returns a read guard. Any number of read guards may be live.
//
// Panics with a *borrow.ConflictError if a write guard is live.
func (c *Cell[T]) Borrow() *Ref[T] {
	r, err := c.TryBorrow()
	if err != nil {
		c.a.fail(err)
	}
	return r
}

// BorrowMut returns the write guard.
//
// Panics with a *borrow.ConflictError if any guard is live.
func (c *Cell[T]) BorrowMut() *RefMut[T] {
	w, err := c.TryBorrowMut()
	if err != nil {
		c.a.fail(err)
	}
	return w
}

// BorrowContext is TryBorrow after a ctx check. A single-owner cell never
// waits: waiting on a borrow held by the same goroutine would never end.
func (c *Cell[T]) BorrowContext(ctx context.Context) (*Ref[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, &borrow.WaitError{Cell: c.live().id, Requested: borrow.Shared, Err: err}
	}
	return c.TryBorrow()
}

// BorrowMutContext is TryBorrowMut after a ctx check.
func (c *Cell[T]) BorrowMutContext(ctx context.Context) (*RefMut[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, &borrow.WaitError{Cell: c.live().id, Requested: borrow.Exclusive, Err: err}
	}
	return c.TryBorrowMut()
}

// Read calls fn with the value under a read guard. The guard is released
// however fn returns.
func (c *Cell[T]) Read(fn func(v *T)) {
	r := c.Borrow()
	defer r.Release()
	fn(r.Get())
}

// Write calls fn with the value under a write guard. The guard is released
// however fn returns.
func (c *Cell[T]) Write(fn func(v *T)) {
	w := c.BorrowMut()
	defer w.Release()
	fn(w.Get())
}

// Replace stores v and returns the previous value.
//
// Panics with a *borrow.ConflictError if any guard is live.
func (c *Cell[T]) Replace(v T) T {
	w := c.BorrowMut()
	defer w.Release()

	old := w.a.value
	w.a.value = v
	return old
}

// Unwrap consumes the handle and returns the value if this handle is the
// only reference left. Teardown does not run: the caller now owns the value.
//
// Returns false, leaving the handle usable, if other handles or guards are
// live.
func (c *Cell[T]) Unwrap() (T, bool) {
	a := c.live()
	if a.refs != 1 {
		var zero T
		return zero, false
	}

	c.released = true
	a.refs = 0
	a.handles = 0
	a.dropped = true
	leak.Untrack(a.id)

	v := a.value
	var zero T
	a.value = zero
	return v, true
}

// conflict builds the error for a rejected borrow of kind req.
func (a *alloc[T]) conflict(req borrow.Kind) *borrow.ConflictError {
	held, _ := a.flag.Held()
	err := &borrow.ConflictError{
		Cell:      a.id,
		Requested: req,
		Held:      held,
		Readers:   a.flag.State().Readers,
	}
	if a.tracker != nil {
		err.Current = borrow.Capture(req, 1)
		err.Previous, _ = a.tracker.Conflicting(req)
	}
	return err
}

// fail reports err if configured to and panics with it.
func (a *alloc[T]) fail(err error) {
	if a.report {
		borrow.Print(config.Output(), err)
	}
	panic(err)
}
