package res

import (
	"context"
	"io"

	"github.com/kolkov/rescell/internal/cell/borrow"
	"github.com/kolkov/rescell/internal/cell/config"
	"github.com/kolkov/rescell/internal/cell/leak"
)

// Handle is the method set shared by both strategies.
type Handle[T any] interface {
	Clone() *Cell[T]
	Release()
	Count() int
	SameAs(other *Cell[T]) bool
	ID() uint64
	State() BorrowState

	Borrow() *Ref[T]
	BorrowMut() *RefMut[T]
	TryBorrow() (*Ref[T], error)
	TryBorrowMut() (*RefMut[T], error)
	BorrowContext(ctx context.Context) (*Ref[T], error)
	BorrowMutContext(ctx context.Context) (*RefMut[T], error)

	Read(fn func(v *T))
	Write(fn func(v *T))
	Replace(v T) T
	Unwrap() (T, bool)

	IsPoisoned() bool
	ClearPoison()
}

// Reader is a read guard.
type Reader[T any] interface {
	Get() *T
	Release()
}

// Writer is a write guard.
type Writer[T any] interface {
	Reader[T]
	Set(v T)
}

var (
	_ Handle[struct{}] = (*Cell[struct{}])(nil)
	_ Reader[struct{}] = (*Ref[struct{}])(nil)
	_ Writer[struct{}] = (*RefMut[struct{}])(nil)
)

// BorrowState is a snapshot of a cell's borrows.
type BorrowState = borrow.State

// BorrowKind is the kind of access a borrow grants.
type BorrowKind = borrow.Kind

// Borrow kinds.
const (
	Shared    = borrow.Shared
	Exclusive = borrow.Exclusive
)

// Dropper is implemented by values that need teardown.
type Dropper = borrow.Dropper

// ConflictError is the panic value of a single-owner borrow conflict.
type ConflictError = borrow.ConflictError

// WaitError is returned when a context-bounded wait gives up.
type WaitError = borrow.WaitError

// Site records where a borrow was taken.
type Site = borrow.Site

var (
	// ErrBorrowConflict is matched by every *ConflictError.
	ErrBorrowConflict = borrow.ErrConflict

	// ErrLockPoisoned is returned by cross-goroutine cells after a write
	// guard holder panicked.
	ErrLockPoisoned = borrow.ErrPoisoned

	// ErrWouldBlock is returned by Try borrows of a contended
	// cross-goroutine cell.
	ErrWouldBlock = borrow.ErrWouldBlock

	// ErrReleased is the panic value for use of a released handle or guard.
	ErrReleased = borrow.ErrReleased

	// ErrWrongGoroutine is the panic value for an owner check failure.
	ErrWrongGoroutine = borrow.ErrWrongGoroutine
)

// Config is the set of diagnostics options.
type Config = config.Config

// Configure replaces the diagnostics options for cells created afterwards.
func Configure(c Config) {
	config.Set(c)
}

// CurrentConfig returns the active diagnostics options.
func CurrentConfig() Config {
	return config.Current()
}

// LoadConfig reads diagnostics options from a JSON file.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// SetOutput redirects diagnostics reports. A nil writer restores os.Stderr.
func SetOutput(w io.Writer) {
	config.SetOutput(w)
}

// Leaks returns the number of cells created with leakReport that were not
// released yet.
func Leaks() int {
	return leak.Live()
}

// ReportLeaks writes the unreleased cells to w and returns their number.
func ReportLeaks(w io.Writer) int {
	return leak.Report(w)
}
