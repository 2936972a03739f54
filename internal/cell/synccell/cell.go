// Package synccell implements the cross-goroutine cell strategy.
//
// Handles may be cloned onto and released from any goroutine. The
// reference count is atomic and borrows go through a FIFO reader/writer
// lock: a borrow that conflicts with a live guard waits until that guard is
// released instead of failing.
//
// Poisoning:
//
// A write guard released while its goroutine is panicking, or a Write
// callback that does not return normally, marks the cell poisoned. Every
// later borrow fails with borrow.ErrPoisoned until ClearPoison is called.
// The value may have been left half-updated; the caller decides whether it
// is still usable. Panics are only seen by a write guard whose Release is
// itself the deferred call:
//
//	w := c.BorrowMut()
//	defer w.Release()
//
// Deadlocks between cells, or a goroutine borrowing mutably a cell it
// already borrows, are not detected; use BorrowMutContext to bound the
// wait.
package synccell

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kolkov/rescell/internal/cell/borrow"
	"github.com/kolkov/rescell/internal/cell/config"
	"github.com/kolkov/rescell/internal/cell/leak"
)

// alloc is the shared allocation behind every handle.
type alloc[T any] struct {
	value T
	lock  *rwLock

	// refs counts handles plus live guards; teardown runs when it hits 0.
	refs     atomic.Int64
	handles  atomic.Int64
	dropped  atomic.Bool
	poisoned atomic.Bool
	drop     func(*T)

	id uint64

	tracker *borrow.Tracker
	report  bool
}

// Cell is one handle to a shared allocation.
//
// A single handle must not be used by several goroutines at once; Clone a
// handle for each goroutine instead.
type Cell[T any] struct {
	a        *alloc[T]
	released atomic.Bool
}

// New wraps v in a new allocation with one handle and no active borrows.
func New[T any](v T) *Cell[T] {
	return newCell(v, nil)
}

// NewWithDrop is New with an explicit teardown hook. drop runs once, on the
// goroutine that releases the last reference.
func NewWithDrop[T any](v T, drop func(*T)) *Cell[T] {
	return newCell(v, drop)
}

func newCell[T any](v T, drop func(*T)) *Cell[T] {
	cfg := config.Current()

	a := &alloc[T]{
		value:  v,
		lock:   newRWLock(),
		drop:   drop,
		id:     borrow.NextID(),
		report: cfg.ReportConflicts,
	}
	a.refs.Store(1)
	a.handles.Store(1)

	if cfg.TrackBorrows {
		a.tracker = borrow.NewTracker()
	}
	if cfg.LeakReport {
		leak.Track(a.id, 0)
		leak.ReportAtExit(config.Output)
	}

	return &Cell[T]{a: a}
}

func (c *Cell[T]) live() *alloc[T] {
	if c == nil || c.released.Load() {
		panic(borrow.ErrReleased)
	}
	return c.a
}

// unref drops one reference and runs teardown on the last one.
func (a *alloc[T]) unref() {
	n := a.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("synccell: negative reference count")
	}
	if !a.dropped.CompareAndSwap(false, true) {
		return
	}

	leak.Untrack(a.id)
	borrow.Teardown(&a.value, a.drop)

	var zero T
	a.value = zero
}

// Clone returns a new handle to the same allocation.
func (c *Cell[T]) Clone() *Cell[T] {
	a := c.live()
	a.refs.Add(1)
	a.handles.Add(1)
	return &Cell[T]{a: a}
}

// Release drops this handle. If it was the last reference, the value's
// teardown runs before Release returns.
//
// Releasing a handle twice panics with borrow.ErrReleased.
func (c *Cell[T]) Release() {
	if c == nil || !c.released.CompareAndSwap(false, true) {
		panic(borrow.ErrReleased)
	}
	c.a.handles.Add(-1)
	c.a.unref()
}

// Count returns the number of live handles. Other goroutines may change it
// at any time.
func (c *Cell[T]) Count() int {
	return int(c.live().handles.Load())
}

// SameAs reports whether both handles refer to the same allocation.
func (c *Cell[T]) SameAs(other *Cell[T]) bool {
	return c.live() == other.live()
}

// ID returns the allocation ID used in reports.
func (c *Cell[T]) ID() uint64 {
	return c.live().id
}

// State returns a snapshot of the lock state, including queued borrows.
func (c *Cell[T]) State() borrow.State {
	return c.live().lock.state()
}

// IsPoisoned reports whether a write guard holder panicked.
func (c *Cell[T]) IsPoisoned() bool {
	return c.live().poisoned.Load()
}

// ClearPoison marks the cell usable again.
func (c *Cell[T]) ClearPoison() {
	c.live().poisoned.Store(false)
}

// TryBorrow returns a read guard without waiting. It fails with an error
// wrapping borrow.ErrWouldBlock if the lock is held by a writer or has
// queued borrows, or borrow.ErrPoisoned.
func (c *Cell[T]) TryBorrow() (*Ref[T], error) {
	a := c.live()
	if !a.lock.tryAcquire(borrow.Shared) {
		return nil, a.wouldBlock()
	}
	if err := a.checkPoison(borrow.Shared); err != nil {
		return nil, err
	}
	return a.newRef(), nil
}

// TryBorrowMut returns a write guard without waiting.
func (c *Cell[T]) TryBorrowMut() (*RefMut[T], error) {
	a := c.live()
	if !a.lock.tryAcquire(borrow.Exclusive) {
		return nil, a.wouldBlock()
	}
	if err := a.checkPoison(borrow.Exclusive); err != nil {
		return nil, err
	}
	return a.newRefMut(), nil
}

// BorrowContext returns a read guard, waiting while a writer holds the lock
// or is queued ahead. If ctx is done first it returns a *borrow.WaitError.
func (c *Cell[T]) BorrowContext(ctx context.Context) (*Ref[T], error) {
	a := c.live()
	if err := a.acquire(ctx, borrow.Shared); err != nil {
		return nil, err
	}
	return a.newRef(), nil
}

// BorrowMutContext returns the write guard, waiting until every other guard
// is released. If ctx is done first it returns a *borrow.WaitError.
func (c *Cell[T]) BorrowMutContext(ctx context.Context) (*RefMut[T], error) {
	a := c.live()
	if err := a.acquire(ctx, borrow.Exclusive); err != nil {
		return nil, err
	}
	return a.newRefMut(), nil
}

// Borrow returns a read guard, waiting as long as needed.
//
// Panics with an error wrapping borrow.ErrPoisoned on a poisoned cell.
func (c *Cell[T]) Borrow() *Ref[T] {
	r, err := c.BorrowContext(context.Background())
	if err != nil {
		c.a.fail(err)
	}
	return r
}

// BorrowMut returns the write guard, waiting as long as needed.
//
// Panics with an error wrapping borrow.ErrPoisoned on a poisoned cell.
func (c *Cell[T]) BorrowMut() *RefMut[T] {
	w, err := c.BorrowMutContext(context.Background())
	if err != nil {
		c.a.fail(err)
	}
	return w
}

// Read calls fn with the value under a read guard.
func (c *Cell[T]) Read(fn func(v *T)) {
	r := c.Borrow()
	defer r.Release()
	fn(r.Get())
}

// Write calls fn with the value under a write guard. If fn panics or
// exits its goroutine the cell is poisoned.
func (c *Cell[T]) Write(fn func(v *T)) {
	w := c.BorrowMut()

	completed := false
	defer func() {
		if completed {
			w.release()
		} else {
			w.abandon()
		}
	}()

	fn(w.Get())
	completed = true
}

// Replace stores v and returns the previous value.
func (c *Cell[T]) Replace(v T) T {
	w := c.BorrowMut()
	defer w.release()

	old := w.a.value
	w.a.value = v
	return old
}

// Unwrap consumes the handle and returns the value if this handle is the
// only reference left. Teardown does not run.
//
// Returns false, leaving the handle usable, if other handles or guards are
// live.
func (c *Cell[T]) Unwrap() (T, bool) {
	a := c.live()
	if !a.refs.CompareAndSwap(1, 0) {
		var zero T
		return zero, false
	}

	c.released.Store(true)
	a.handles.Store(0)
	a.dropped.Store(true)
	leak.Untrack(a.id)

	v := a.value
	var zero T
	a.value = zero
	return v, true
}

// acquire waits for the lock and checks for poisoning.
func (a *alloc[T]) acquire(ctx context.Context, kind borrow.Kind) error {
	if err := a.lock.acquire(ctx, kind); err != nil {
		werr := &borrow.WaitError{Cell: a.id, Requested: kind, Err: err}
		werr.Holder, _ = a.tracker.Conflicting(kind)
		return werr
	}
	return a.checkPoison(kind)
}

// checkPoison gives the lock back if the cell is poisoned.
func (a *alloc[T]) checkPoison(kind borrow.Kind) error {
	if !a.poisoned.Load() {
		return nil
	}
	a.lock.release(kind)
	return fmt.Errorf("rescell: cell %d: %w", a.id, borrow.ErrPoisoned)
}

func (a *alloc[T]) wouldBlock() error {
	return fmt.Errorf("rescell: cell %d: %w", a.id, borrow.ErrWouldBlock)
}

// fail reports err if configured to and panics with it.
func (a *alloc[T]) fail(err error) {
	if a.report {
		borrow.Print(config.Output(), err)
	}
	panic(err)
}
