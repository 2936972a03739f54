package borrow

import (
	"fmt"
	"sync"

	"github.com/kolkov/rescell/internal/cell/goroutine"
	"github.com/kolkov/rescell/internal/cell/stackdepot"
)

// Site records where and by whom a borrow was requested.
type Site struct {
	// Kind is the kind of the borrow.
	Kind Kind

	// Goroutine is the ID of the requesting goroutine, 0 if untracked.
	Goroutine int64

	// Stack is the stackdepot hash of the borrow site, 0 if untracked.
	Stack uint64
}

// Tracked reports whether the site carries diagnostics.
func (s Site) Tracked() bool {
	return s.Goroutine != 0 || s.Stack != 0
}

func (s Site) by() string {
	if s.Goroutine == 0 {
		return ""
	}
	return fmt.Sprintf(" by goroutine %d", s.Goroutine)
}

func (s Site) stack() string {
	if s.Stack == 0 {
		return "  (borrow tracking disabled: enable trackBorrows for stacks)\n"
	}
	return stackdepot.GetStack(s.Stack).FormatStack()
}

// Capture records the calling goroutine and stack.
//
// skip is the number of frames above Capture's caller to leave out.
func Capture(kind Kind, skip int) Site {
	return Site{
		Kind:      kind,
		Goroutine: goroutine.ID(),
		Stack:     stackdepot.CaptureStack(skip + 1),
	}
}

// Tracker records the live borrows of one allocation.
//
// A nil *Tracker is valid and records nothing; cells created without
// borrow tracking carry a nil tracker so the hot path costs one nil check.
//
// Thread Safety: All methods are safe for concurrent calls.
type Tracker struct {
	mu    sync.Mutex
	next  uint64
	sites map[uint64]Site
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sites: make(map[uint64]Site)}
}

// Add registers a live borrow and returns its token.
//
// Returns 0 on a nil tracker.
func (t *Tracker) Add(site Site) uint64 {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.sites[t.next] = site
	return t.next
}

// Remove unregisters the borrow identified by token.
func (t *Tracker) Remove(token uint64) {
	if t == nil || token == 0 {
		return
	}

	t.mu.Lock()
	delete(t.sites, token)
	t.mu.Unlock()
}

// Conflicting returns a live borrow that conflicts with a request of the
// given kind.
//
// A shared request only conflicts with the writer. An exclusive request
// conflicts with anything; the writer is preferred, otherwise the oldest
// reader is returned.
func (t *Tracker) Conflicting(requested Kind) (Site, bool) {
	if t == nil {
		return Site{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		oldest   uint64
		found    Site
		hasFound bool
	)
	for token, site := range t.sites {
		if site.Kind == Exclusive {
			return site, true
		}
		if requested == Exclusive && (!hasFound || token < oldest) {
			oldest, found, hasFound = token, site, true
		}
	}
	return found, hasFound
}

// Len returns the number of live tracked borrows.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sites)
}
