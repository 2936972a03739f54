package borrow

// Kind is the kind of access a borrow grants.
type Kind int

const (
	// Shared is a read borrow. Any number may be active together.
	Shared Kind = iota
	// Exclusive is a write borrow. It excludes every other borrow.
	Exclusive
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Shared:
		return "Shared borrow"
	case Exclusive:
		return "Exclusive borrow"
	default:
		return "Unknown borrow"
	}
}

// State is a snapshot of an allocation's borrow state.
type State struct {
	// Readers is the number of live read guards.
	Readers int
	// Writer reports whether a write guard is live.
	Writer bool
	// Waiting is the number of goroutines blocked in a borrow call.
	// Always 0 for the single-owner strategy.
	Waiting int
}

// Free reports whether no guard is live.
func (s State) Free() bool {
	return s.Readers == 0 && !s.Writer
}
