package borrow

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("rescell: borrow conflict")

	// ErrPoisoned is returned when a previous write guard holder panicked
	// or exited while holding the guard.
	ErrPoisoned = errors.New("rescell: lock poisoned by a panic while mutably borrowed")

	// ErrWouldBlock is returned by non-blocking borrows on a contended cell.
	ErrWouldBlock = errors.New("rescell: borrow would block")

	// ErrReleased is the panic value for use of a released handle or guard.
	ErrReleased = errors.New("rescell: use of released handle")

	// ErrWrongGoroutine is the panic value for a single-owner cell touched
	// from a goroutine other than its owner.
	ErrWrongGoroutine = errors.New("rescell: single-owner cell used from another goroutine")
)

// ConflictError describes a borrow that would break the exclusivity rule.
//
// Current and Previous are only populated for cells created with borrow
// tracking enabled.
type ConflictError struct {
	// Cell is the allocation ID.
	Cell uint64

	// Requested is the kind of the rejected borrow.
	Requested Kind

	// Held is the kind of the borrow that was already active.
	Held Kind

	// Readers is the number of live read guards at the time of the request.
	Readers int

	// Current is the rejected request.
	Current Site

	// Previous is a live guard the request conflicted with.
	Previous Site
}

// Error returns the short conflict message.
func (e *ConflictError) Error() string {
	what := "already borrowed"
	if e.Held == Exclusive {
		what = "already mutably borrowed"
	}
	return fmt.Sprintf("rescell: cell %d %s", e.Cell, what)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Format writes the full conflict report:
//
//	==================
//	WARNING: BORROW CONFLICT
//	Exclusive borrow of cell 3 by goroutine 7:
//	  main.update()
//	      /path/to/file.go:10
//
//	Previous Shared borrow of cell 3 by goroutine 7 (2 readers active):
//	  main.render()
//	      /path/to/file.go:25
//	==================
//
//nolint:errcheck // Error handling omitted for stderr output formatting
func (e *ConflictError) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: BORROW CONFLICT\n")

	fmt.Fprintf(w, "%s of cell %d%s:\n", e.Requested, e.Cell, e.Current.by())
	fmt.Fprint(w, e.Current.stack())
	fmt.Fprintf(w, "\n")

	active := ""
	if e.Held == Shared {
		active = fmt.Sprintf(" (%d readers active)", e.Readers)
	}
	fmt.Fprintf(w, "Previous %s of cell %d%s%s:\n", e.Held, e.Cell, e.Previous.by(), active)
	fmt.Fprint(w, e.Previous.stack())

	fmt.Fprintf(w, "==================\n")
}

// Report returns the full conflict report as a string.
func (e *ConflictError) Report() string {
	var buf strings.Builder
	e.Format(&buf)
	return buf.String()
}

// WaitError describes a blocking borrow that gave up before it was granted.
type WaitError struct {
	// Cell is the allocation ID.
	Cell uint64

	// Requested is the kind of the abandoned borrow.
	Requested Kind

	// Holder is a live guard that kept the request waiting, if tracked.
	Holder Site

	// Err is the context error.
	Err error
}

// Error returns the short wait failure message.
func (e *WaitError) Error() string {
	return fmt.Sprintf("rescell: %s of cell %d abandoned: %v", strings.ToLower(e.Requested.String()), e.Cell, e.Err)
}

// Unwrap returns the context error.
func (e *WaitError) Unwrap() error {
	return e.Err
}

// Format writes the full wait report including the holder's stack.
//
//nolint:errcheck // Error handling omitted for stderr output formatting
func (e *WaitError) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: BORROW WAIT ABANDONED (%v)\n", e.Err)
	fmt.Fprintf(w, "Waiting on %s held%s:\n", e.Holder.Kind, e.Holder.by())
	fmt.Fprint(w, e.Holder.stack())
	fmt.Fprintf(w, "==================\n")
}
