package borrow

import (
	"fmt"
	"io"
	"sync"
)

// reporter prints reports without interleaving and without repeating the
// same conflict over and over when a caller recovers from it in a loop.
var reporter struct {
	mu       sync.Mutex
	reported sync.Map // dedup key -> struct{}
	count    int
}

// formatter is implemented by *ConflictError and *WaitError.
type formatter interface {
	Format(w io.Writer)
}

// Print writes the report for err to w once per distinct conflict.
//
// The deduplication key is "{kind}:{cell}:{stack}:{stack}": the same two
// borrow sites colliding on the same cell are reported once.
//
// Returns true if the report was written.
func Print(w io.Writer, err error) bool {
	f, ok := err.(formatter)
	if !ok {
		return false
	}

	if _, seen := reporter.reported.LoadOrStore(dedupKey(err), struct{}{}); seen {
		return false
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()

	reporter.count++
	f.Format(w)
	return true
}

// Reported returns the number of reports written by Print.
func Reported() int {
	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	return reporter.count
}

// ResetReports clears deduplication state (for testing).
func ResetReports() {
	reporter.reported.Range(func(k, _ any) bool {
		reporter.reported.Delete(k)
		return true
	})

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	reporter.count = 0
}

func dedupKey(err error) string {
	switch e := err.(type) {
	case *ConflictError:
		return fmt.Sprintf("conflict:%d:%d:%x:%x", e.Requested, e.Cell, e.Current.Stack, e.Previous.Stack)
	case *WaitError:
		return fmt.Sprintf("wait:%d:%d:%x", e.Requested, e.Cell, e.Holder.Stack)
	default:
		return err.Error()
	}
}
