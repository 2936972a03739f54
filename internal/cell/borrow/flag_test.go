package borrow

import "testing"

// TestFlag_SharedReaders tests that many readers can register at once.
func TestFlag_SharedReaders(t *testing.T) {
	var f Flag

	for i := 0; i < 5; i++ {
		if !f.TryShared() {
			t.Fatalf("TryShared() #%d failed on shared flag", i)
		}
	}

	if s := f.State(); s.Readers != 5 || s.Writer {
		t.Errorf("State() = %+v, want 5 readers", s)
	}

	if f.TryExclusive() {
		t.Error("TryExclusive() succeeded while readers are active")
	}

	for i := 0; i < 5; i++ {
		f.ReleaseShared()
	}

	if !f.State().Free() {
		t.Errorf("State() = %+v after releasing all readers, want free", f.State())
	}
}

// TestFlag_Exclusive tests that the writer excludes every other borrow.
func TestFlag_Exclusive(t *testing.T) {
	var f Flag

	if !f.TryExclusive() {
		t.Fatal("TryExclusive() failed on free flag")
	}
	if f.TryExclusive() {
		t.Error("second TryExclusive() succeeded")
	}
	if f.TryShared() {
		t.Error("TryShared() succeeded while writer is active")
	}

	kind, held := f.Held()
	if !held || kind != Exclusive {
		t.Errorf("Held() = (%v, %v), want (Exclusive, true)", kind, held)
	}

	f.ReleaseExclusive()

	if _, held := f.Held(); held {
		t.Error("Held() reports a borrow after release")
	}
	if !f.TryShared() {
		t.Error("TryShared() failed after writer released")
	}
}

// TestFlag_ReleaseWithoutBorrow tests the internal double-release guards.
func TestFlag_ReleaseWithoutBorrow(t *testing.T) {
	tests := []struct {
		name    string
		release func(*Flag)
	}{
		{"shared", (*Flag).ReleaseShared},
		{"exclusive", (*Flag).ReleaseExclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic on release of free flag")
				}
			}()
			var f Flag
			tt.release(&f)
		})
	}
}

// TestFlag_Idempotence tests that non-overlapping borrows always return to free.
func TestFlag_Idempotence(t *testing.T) {
	var f Flag

	for i := 0; i < 1000; i++ {
		if !f.TryShared() {
			t.Fatalf("iteration %d: TryShared() failed", i)
		}
		f.ReleaseShared()

		if !f.State().Free() {
			t.Fatalf("iteration %d: flag not free between borrows: %+v", i, f.State())
		}
	}
}

// TestKind_String tests Kind names.
func TestKind_String(t *testing.T) {
	if Shared.String() != "Shared borrow" || Exclusive.String() != "Exclusive borrow" {
		t.Errorf("unexpected names: %q, %q", Shared, Exclusive)
	}
	if Kind(42).String() != "Unknown borrow" {
		t.Errorf("Kind(42).String() = %q", Kind(42))
	}
}
