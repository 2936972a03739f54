// Package leak keeps a registry of live cell allocations.
//
// Go's garbage collector frees an allocation whose handles were dropped
// without Release, but the value's teardown then never runs. With the
// leakReport option every allocation is registered here with its creation
// stack, and the allocations still registered when the process exits are
// reported:
//
//	==================
//	WARNING: 1 CELL(S) NOT RELEASED
//	Cell 4 created at:
//	  main.loadScene()
//	      /path/to/scene.go:31
//	==================
package leak

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dc0d/onexit"

	"github.com/kolkov/rescell/internal/cell/stackdepot"
)

var (
	// live maps allocation ID to the stackdepot hash of its creation site.
	live  sync.Map
	count atomic.Int64

	exitOnce sync.Once
)

// Track registers a live allocation. skip is the number of frames above
// Track's caller to leave out of the creation stack.
func Track(id uint64, skip int) {
	if _, loaded := live.LoadOrStore(id, stackdepot.CaptureStack(skip+1)); !loaded {
		count.Add(1)
	}
}

// Untrack removes an allocation. Unknown IDs are ignored, so callers do not
// need to remember whether the allocation was tracked.
func Untrack(id uint64) {
	if _, loaded := live.LoadAndDelete(id); loaded {
		count.Add(-1)
	}
}

// Live returns the number of tracked allocations.
func Live() int {
	return int(count.Load())
}

// Report writes the tracked allocations to w in ID order and returns how
// many were reported. Nothing is written when no allocation is live.
//
//nolint:errcheck // Error handling omitted for stderr output formatting
func Report(w io.Writer) int {
	type entry struct {
		id    uint64
		stack uint64
	}

	var entries []entry
	live.Range(func(k, v any) bool {
		entries = append(entries, entry{id: k.(uint64), stack: v.(uint64)})
		return true
	})
	if len(entries) == 0 {
		return 0
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.id, b.id)
	})

	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: %d CELL(S) NOT RELEASED\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "Cell %d created at:\n", e.id)
		fmt.Fprint(w, stackdepot.GetStack(e.stack).FormatStack())
	}
	fmt.Fprintf(w, "==================\n")

	return len(entries)
}

// ReportAtExit arranges for Report to run when the process exits through
// onexit.ForceExit or a signal. Repeated calls register the hook once; out
// is resolved when the hook runs.
func ReportAtExit(out func() io.Writer) {
	exitOnce.Do(func() {
		onexit.Register(exitHook(out))
	})
}

// exitHook returns the hook ReportAtExit registers.
func exitHook(out func() io.Writer) func() {
	return func() { Report(out()) }
}

// Reset forgets every tracked allocation (for testing).
func Reset() {
	live.Range(func(k, _ any) bool {
		live.Delete(k)
		return true
	})
	count.Store(0)
}
