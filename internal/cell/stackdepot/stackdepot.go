// Package stackdepot stores deduplicated stack traces of borrow sites.
//
// When borrow tracking is enabled every live guard remembers where it was
// taken. Storing a full trace per guard would be wasteful for hot loops that
// borrow from the same line millions of times, so traces are interned here
// and guards keep only a 64-bit hash.
//
// Design (ThreadSanitizer v2 approach):
//   - Fixed-size stack traces (MaxFrames program counters)
//   - Hash-based deduplication (FNV-1a hash)
//   - Global sync.Map storage (thread-safe)
//
// Usage:
//
//	hash := stackdepot.CaptureStack(0)
//
//	// Later, when a conflict is reported:
//	fmt.Print(stackdepot.GetStack(hash).FormatStack())
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

const (
	// MaxFrames is the maximum number of stack frames to capture.
	// Borrow sites are usually a few frames above the cell internals, so a
	// little more room than the race detector's 8 frames is kept.
	MaxFrames = 16

	// modulePrefix identifies frames that belong to the cell implementation.
	modulePrefix = "github.com/kolkov/rescell/"
)

// StackTrace represents a captured stack trace with fixed size.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// stackDepot is the global deduplication store for stack traces.
//
// Key: uint64 hash (FNV-1a of program counters)
// Value: *StackTrace
var stackDepot sync.Map

// CaptureStack captures the current stack trace and returns its hash.
//
// skip is the number of additional frames to skip above CaptureStack's
// caller. Frames that belong to the cell implementation itself are filtered
// at format time, so callers do not need to count them exactly.
//
// Returns 0 if no stack was available.
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
func CaptureStack(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// Skip runtime.Callers and CaptureStack.
	n := runtime.Callers(2+skip, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])

	if _, exists := stackDepot.Load(hash); exists {
		return hash
	}

	stackDepot.LoadOrStore(hash, &StackTrace{PC: pcs})
	return hash
}

// GetStack retrieves a stack trace by hash.
//
// Returns nil for the zero hash or an unknown hash.
func GetStack(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}

	val, ok := stackDepot.Load(hash)
	if !ok {
		return nil
	}

	return val.(*StackTrace)
}

// hashStack computes FNV-1a hash of program counters.
func hashStack(pcs []uintptr) uint64 {
	h := fnv.New64a()

	var b [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(b[:], uint64(pc))
		_, _ = h.Write(b[:]) // Write never returns error for hash.Hash.
	}

	return h.Sum64()
}

// FormatStack formats a stack trace for conflict reports.
//
// The output format matches Go's race detector:
//
//	main.worker()
//	    /path/to/file.go:45
//	main.main()
//	    /path/to/file.go:30
//
// Runtime frames and cell implementation frames are left out so the first
// line is the caller's own borrow site.
func (st *StackTrace) FormatStack() string {
	if st == nil {
		return "  <unknown>\n"
	}

	frames := runtime.CallersFrames(trimZero(st.PC[:]))

	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}

		if !skipFrame(frame.Function) {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}

		if !more {
			break
		}
	}

	result := buf.String()
	if result == "" {
		return "  <runtime internal>\n"
	}

	return result
}

// Frames returns the number of captured non-zero program counters.
func (st *StackTrace) Frames() int {
	if st == nil {
		return 0
	}
	return len(trimZero(st.PC[:]))
}

func trimZero(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		if pc == 0 {
			return pcs[:i]
		}
	}
	return pcs
}

// skipFrame reports whether a frame is noise for a borrow report.
//
// Test, benchmark and example functions of this module are kept: they are
// the borrow sites when the module tests itself.
func skipFrame(function string) bool {
	if strings.HasPrefix(function, "runtime.") || strings.HasPrefix(function, "testing.") {
		return true
	}
	if !strings.HasPrefix(function, modulePrefix) {
		return false
	}

	// "github.com/kolkov/rescell/internal/cell/localcell.TestFoo.func1"
	// -> "TestFoo.func1"
	name := function[strings.LastIndex(function, "/")+1:]
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}
	for _, p := range []string{"Test", "Benchmark", "Example"} {
		if strings.HasPrefix(name, p) {
			return false
		}
	}

	// examples/ and cmd/ are callers, not implementation.
	rest := strings.TrimPrefix(function, modulePrefix)
	return strings.HasPrefix(rest, "internal/") || strings.HasPrefix(rest, "res.")
}

// Reset clears the stack depot (for testing).
//
// Thread Safety: NOT safe for concurrent calls.
func Reset() {
	stackDepot = sync.Map{}
}

// Stats returns the number of unique stacks stored and their approximate
// memory usage in bytes.
//
// Performance: O(N), do not call on a hot path.
func Stats() (uniqueStacks int, totalMemory int64) {
	stackDepot.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})

	// PCs plus roughly 32 bytes of sync.Map entry overhead.
	const bytesPerStack = MaxFrames*8 + 32
	totalMemory = int64(uniqueStacks) * bytesPerStack

	return uniqueStacks, totalMemory
}
