// Package res provides shareable resource cells: reference-counted handles
// to one value with borrow checking.
//
// Any number of handles may refer to the same value. The value lives as
// long as any handle (or any guard taken from one) does, and its teardown
// runs exactly once when the last of them is released.
//
// Access goes through guards. Any number of read guards may be live at the
// same time, or exactly one write guard, never both:
//
//	c := res.New(map[string]int{})
//	defer c.Release()
//
//	w := c.BorrowMut()
//	w.Get()["hits"]++
//	w.Release()
//
//	c.Read(func(m *map[string]int) {
//		fmt.Println((*m)["hits"])
//	})
//
// # Strategies
//
// The rule is enforced by one of two strategies, chosen for the whole
// program at build time:
//
//	go build ./...                    // single-owner (default)
//	go build -tags rescell_sync ./... // cross-goroutine
//
// Single-owner cells are meant to stay on one goroutine. Counts are plain
// integers and a conflicting borrow panics at once with a *ConflictError
// (errors.Is(err, ErrBorrowConflict)).
//
// Cross-goroutine cells use an atomic count and a FIFO reader/writer lock.
// A conflicting borrow waits. A writer waiting behind readers holds back
// readers that arrive after it, so writers are not starved. When a write
// guard holder panics the cell is poisoned and later borrows fail with
// ErrLockPoisoned until ClearPoison is called.
//
// Both strategies have the same method set; [Strategy] names the one that
// was compiled in.
//
// # Releasing
//
// Go has no destructors. Handles and guards are released explicitly,
// normally with defer right after they are obtained. Releasing a handle
// twice panics with ErrReleased; releasing a guard twice is a no-op. The
// Read and Write helpers release their guard on every exit path.
//
// # Teardown
//
// The hook passed to NewWithDrop runs when the last reference is gone.
// Without a hook, a Drop method on *T or T ([Dropper]) is called instead.
// Unwrap hands the value back to the caller without running teardown.
//
// # Diagnostics
//
// Diagnostics are off by default and configured with [Configure] or a JSON
// file named by the RESCELL_CONFIG environment variable:
//
//	{
//	  "trackBorrows": true,
//	  "checkOwner": true,
//	  "leakReport": true,
//	  "reportConflicts": true
//	}
//
// trackBorrows records the goroutine and stack of every live guard, so a
// conflict report names the guard in the way:
//
//	==================
//	WARNING: BORROW CONFLICT
//	Exclusive borrow of cell 3 by goroutine 1:
//	  main.update()
//	      /src/app/main.go:21
//
//	Previous Shared borrow of cell 3 by goroutine 1 (1 readers active):
//	  main.render()
//	      /src/app/main.go:14
//	==================
//
// checkOwner pins single-owner cells to their creating goroutine,
// leakReport lists cells never released at exit and reportConflicts
// prints the report above before the conflict panic.
package res
