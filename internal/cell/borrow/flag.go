package borrow

// Flag is a non-atomic borrow counter.
//
// Flag is the whole borrow state of a single-owner cell, so all methods are
// plain integer operations. It must not be shared between goroutines.
type Flag int

const (
	flagFree    Flag = 0
	flagWriting Flag = -1
)

// TryShared registers a reader. It fails if a writer is active.
func (f *Flag) TryShared() bool {
	if *f < flagFree {
		return false
	}
	*f++
	return true
}

// ReleaseShared unregisters a reader.
//
// Panics if no reader is registered: that is a double release inside the
// cell implementation, not a caller error.
func (f *Flag) ReleaseShared() {
	if *f <= flagFree {
		panic("borrow: shared release without active reader")
	}
	*f--
}

// TryExclusive registers the writer. It fails if any borrow is active.
func (f *Flag) TryExclusive() bool {
	if *f != flagFree {
		return false
	}
	*f = flagWriting
	return true
}

// ReleaseExclusive unregisters the writer.
func (f *Flag) ReleaseExclusive() {
	if *f != flagWriting {
		panic("borrow: exclusive release without active writer")
	}
	*f = flagFree
}

// Held returns the kind of the currently active borrow, if any.
func (f Flag) Held() (Kind, bool) {
	switch {
	case f == flagWriting:
		return Exclusive, true
	case f > flagFree:
		return Shared, true
	default:
		return Shared, false
	}
}

// State returns a snapshot of the flag.
func (f Flag) State() State {
	if f == flagWriting {
		return State{Writer: true}
	}
	return State{Readers: int(f)}
}
