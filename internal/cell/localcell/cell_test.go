package localcell

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/kolkov/rescell/internal/cell/borrow"
	"github.com/kolkov/rescell/internal/cell/config"
	"github.com/kolkov/rescell/internal/cell/leak"
)

// withConfig installs cfg for the duration of the test.
func withConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := config.Current()
	config.Set(cfg)
	t.Cleanup(func() { config.Set(prev) })
}

// mustPanic runs fn and returns the recovered panic value.
func mustPanic(t *testing.T, fn func()) (recovered any) {
	t.Helper()
	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
	return nil
}

// dropCounter counts teardowns.
type dropCounter struct {
	drops *int
}

func (d *dropCounter) Drop() { *d.drops++ }

// TestNew_BorrowYieldsValue tests that a fresh cell reads back its value.
func TestNew_BorrowYieldsValue(t *testing.T) {
	for _, v := range []int{0, 1, -7, 1 << 40} {
		c := New(v)

		r := c.Borrow()
		if got := *r.Get(); got != v {
			t.Errorf("Borrow() = %d, want %d", got, v)
		}
		r.Release()

		if s := c.State(); !s.Free() {
			t.Errorf("State() = %+v after release, want free", s)
		}
		c.Release()
	}
}

// TestClone_SharedOwnership tests that the value survives partial release.
func TestClone_SharedOwnership(t *testing.T) {
	drops := 0
	c := New(dropCounter{drops: &drops})

	const n = 10
	clones := make([]*Cell[dropCounter], n)
	for i := range clones {
		clones[i] = c.Clone()
	}

	if c.Count() != n+1 {
		t.Fatalf("Count() = %d, want %d", c.Count(), n+1)
	}

	// Drop the original and all but one clone.
	c.Release()
	for _, cl := range clones[:n-1] {
		cl.Release()
	}

	last := clones[n-1]
	if last.Count() != 1 {
		t.Errorf("Count() = %d, want 1", last.Count())
	}
	if drops != 0 {
		t.Fatalf("teardown ran with a handle still live (drops=%d)", drops)
	}
	last.Read(func(v *dropCounter) {
		if v.drops != &drops {
			t.Error("value not accessible through remaining handle")
		}
	})

	last.Release()
	if drops != 1 {
		t.Errorf("drops = %d after last release, want 1", drops)
	}
}

// TestRelease_TeardownExactlyOnce tests teardown with a drop hook.
func TestRelease_TeardownExactlyOnce(t *testing.T) {
	drops := 0
	c := NewWithDrop("payload", func(s *string) {
		if *s != "payload" {
			t.Errorf("teardown saw %q", *s)
		}
		drops++
	})
	c2 := c.Clone()

	c.Release()
	if drops != 0 {
		t.Fatal("teardown ran early")
	}
	c2.Release()
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}

	// Further use of released handles must not tear down again.
	mustPanic(t, func() { c2.Release() })
	if drops != 1 {
		t.Errorf("drops = %d after double release, want 1", drops)
	}
}

// TestRelease_GuardKeepsAlive tests that a live guard delays teardown.
func TestRelease_GuardKeepsAlive(t *testing.T) {
	drops := 0
	c := New(dropCounter{drops: &drops})

	r := c.Borrow()
	c.Release()

	if drops != 0 {
		t.Fatal("teardown ran while a guard was live")
	}
	if r.Get().drops != &drops {
		t.Error("guard lost the value")
	}

	r.Release()
	if drops != 1 {
		t.Errorf("drops = %d after guard release, want 1", drops)
	}
}

// TestBorrowMut_ConflictsWithEverything tests the write-exclusivity rule.
func TestBorrowMut_ConflictsWithEverything(t *testing.T) {
	c := New(1)
	defer c.Release()

	w := c.BorrowMut()

	for name, fn := range map[string]func(){
		"Borrow":    func() { c.Borrow() },
		"BorrowMut": func() { c.BorrowMut() },
	} {
		v := mustPanic(t, fn)
		err, ok := v.(error)
		if !ok || !errors.Is(err, borrow.ErrConflict) {
			t.Errorf("%s panic = %v, want ErrConflict", name, v)
		}
		var ce *borrow.ConflictError
		if errors.As(err, &ce) && ce.Held != borrow.Exclusive {
			t.Errorf("%s: Held = %v, want Exclusive", name, ce.Held)
		}
	}

	// The failed attempts must not have changed the state.
	if s := c.State(); !s.Writer || s.Readers != 0 {
		t.Errorf("State() = %+v, want writer only", s)
	}

	w.Release()

	r := c.Borrow()
	r.Release()
	w2 := c.BorrowMut()
	w2.Release()
}

// TestBorrow_ManyReaders tests that read guards coexist.
func TestBorrow_ManyReaders(t *testing.T) {
	c := New("shared")
	defer c.Release()

	guards := make([]*Ref[string], 8)
	for i := range guards {
		guards[i] = c.Borrow()
	}

	if s := c.State(); s.Readers != len(guards) || s.Writer {
		t.Errorf("State() = %+v, want %d readers", s, len(guards))
	}
	for _, g := range guards {
		if *g.Get() != "shared" {
			t.Error("reader saw wrong value")
		}
	}

	if _, err := c.TryBorrowMut(); !errors.Is(err, borrow.ErrConflict) {
		t.Errorf("TryBorrowMut() with readers = %v, want ErrConflict", err)
	}

	for _, g := range guards {
		g.Release()
	}
	if !c.State().Free() {
		t.Errorf("State() = %+v after releasing readers", c.State())
	}
}

// TestTryBorrow_ReturnsError tests the non-panicking variants.
func TestTryBorrow_ReturnsError(t *testing.T) {
	c := New(0)
	defer c.Release()

	w, err := c.TryBorrowMut()
	if err != nil {
		t.Fatalf("TryBorrowMut() on free cell: %v", err)
	}

	r, err := c.TryBorrow()
	if r != nil || !errors.Is(err, borrow.ErrConflict) {
		t.Errorf("TryBorrow() = (%v, %v), want conflict", r, err)
	}
	if err.Error() != "rescell: cell "+strconv.FormatUint(c.ID(), 10)+" already mutably borrowed" {
		t.Errorf("Error() = %q", err.Error())
	}

	w.Release()

	r, err = c.TryBorrow()
	if err != nil {
		t.Fatalf("TryBorrow() after release: %v", err)
	}
	_, err = c.TryBorrowMut()
	var ce *borrow.ConflictError
	if !errors.As(err, &ce) || ce.Held != borrow.Shared || ce.Readers != 1 {
		t.Errorf("TryBorrowMut() with reader = %v, want shared conflict with 1 reader", err)
	}
	r.Release()
}

// TestBorrowContext tests that context variants never wait.
func TestBorrowContext(t *testing.T) {
	c := New(0)
	defer c.Release()

	r, err := c.BorrowContext(context.Background())
	if err != nil {
		t.Fatalf("BorrowContext() error: %v", err)
	}
	if _, err := c.BorrowMutContext(context.Background()); !errors.Is(err, borrow.ErrConflict) {
		t.Errorf("BorrowMutContext() with reader = %v, want ErrConflict", err)
	}
	r.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.BorrowContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BorrowContext(cancelled) = %v, want context.Canceled", err)
	}
	if _, err := c.BorrowMutContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BorrowMutContext(cancelled) = %v, want context.Canceled", err)
	}
	if !c.State().Free() {
		t.Error("cancelled borrow left state behind")
	}
}

// TestGuardRelease_OnPanic tests release on abnormal exit from a scope.
func TestGuardRelease_OnPanic(t *testing.T) {
	c := New(0)
	defer c.Release()

	mustPanic(t, func() {
		w := c.BorrowMut()
		defer w.Release()
		panic("boom")
	})

	if !c.State().Free() {
		t.Fatalf("State() = %+v after panic, want free", c.State())
	}

	mustPanic(t, func() {
		c.Write(func(v *int) {
			*v = 5
			panic("boom")
		})
	})

	c.Read(func(v *int) {
		if *v != 5 {
			t.Errorf("value = %d, want 5", *v)
		}
	})
	if c.IsPoisoned() {
		t.Error("single-owner cell reports poisoned")
	}
}

// TestGuardRelease_Idempotent tests that a second Release is a no-op.
func TestGuardRelease_Idempotent(t *testing.T) {
	c := New(0)
	defer c.Release()

	r1 := c.Borrow()
	r2 := c.Borrow()
	r1.Release()
	r1.Release()

	if s := c.State(); s.Readers != 1 {
		t.Errorf("State() = %+v, want 1 reader", s)
	}
	r2.Release()

	w := c.BorrowMut()
	w.Release()
	w.Release()
	if !c.State().Free() {
		t.Error("double write release corrupted state")
	}

	mustPanic(t, func() { w.Get() })
	mustPanic(t, func() { r1.Get() })
}

// TestRepeatedReads_Idempotence tests that non-overlapping borrows leave no trace.
func TestRepeatedReads_Idempotence(t *testing.T) {
	c := New([]int{1, 2, 3})
	defer c.Release()

	for i := 0; i < 1000; i++ {
		r := c.Borrow()
		_ = (*r.Get())[i%3]
		r.Release()

		if !c.State().Free() {
			t.Fatalf("iteration %d: State() = %+v", i, c.State())
		}
	}
}

// TestReplace tests value replacement.
func TestReplace(t *testing.T) {
	c := New("old")
	defer c.Release()

	if got := c.Replace("new"); got != "old" {
		t.Errorf("Replace() = %q, want old", got)
	}
	c.Read(func(v *string) {
		if *v != "new" {
			t.Errorf("value = %q, want new", *v)
		}
	})

	r := c.Borrow()
	mustPanic(t, func() { c.Replace("x") })
	r.Release()
}

// TestRefMut_Set tests writes through the guard are visible to later readers.
func TestRefMut_Set(t *testing.T) {
	c := New(1)
	other := c.Clone()
	defer c.Release()
	defer other.Release()

	w := c.BorrowMut()
	w.Set(2)
	*w.Get() += 40
	w.Release()

	other.Read(func(v *int) {
		if *v != 42 {
			t.Errorf("value through clone = %d, want 42", *v)
		}
	})
}

// TestUnwrap tests consuming the last handle.
func TestUnwrap(t *testing.T) {
	drops := 0
	c := New(dropCounter{drops: &drops})
	c2 := c.Clone()

	if _, ok := c.Unwrap(); ok {
		t.Fatal("Unwrap() succeeded with two handles")
	}
	c2.Release()

	r := c.Borrow()
	if _, ok := c.Unwrap(); ok {
		t.Fatal("Unwrap() succeeded with a live guard")
	}
	r.Release()

	v, ok := c.Unwrap()
	if !ok || v.drops != &drops {
		t.Fatalf("Unwrap() = (%v, %v)", v, ok)
	}
	if drops != 0 {
		t.Error("Unwrap() ran teardown")
	}
	mustPanic(t, func() { c.Borrow() })
}

// TestSameAs tests allocation identity.
func TestSameAs(t *testing.T) {
	a := New(1)
	b := a.Clone()
	other := New(1)
	defer a.Release()
	defer b.Release()
	defer other.Release()

	if !a.SameAs(b) || a.ID() != b.ID() {
		t.Error("clone is not the same allocation")
	}
	if a.SameAs(other) || a.ID() == other.ID() {
		t.Error("distinct cells reported as the same allocation")
	}
}

// TestReleasedHandle tests that released handles are unusable.
func TestReleasedHandle(t *testing.T) {
	c := New(1)
	keep := c.Clone()
	defer keep.Release()
	c.Release()

	for name, fn := range map[string]func(){
		"Borrow":  func() { c.Borrow() },
		"Clone":   func() { c.Clone() },
		"Count":   func() { c.Count() },
		"Release": func() { c.Release() },
	} {
		if v := mustPanic(t, fn); v != borrow.ErrReleased {
			t.Errorf("%s panic = %v, want ErrReleased", name, v)
		}
	}

	var nilCell *Cell[int]
	mustPanic(t, func() { nilCell.Borrow() })
}

// TestCheckOwner tests goroutine confinement.
func TestCheckOwner(t *testing.T) {
	withConfig(t, config.Config{CheckOwner: true})

	c := New(0)
	defer c.Release()

	c.Write(func(v *int) { *v = 1 })

	result := make(chan any)
	go func() {
		defer func() { result <- recover() }()
		c.Borrow()
	}()

	v := <-result
	err, ok := v.(error)
	if !ok || !errors.Is(err, borrow.ErrWrongGoroutine) {
		t.Fatalf("foreign goroutine panic = %v, want ErrWrongGoroutine", v)
	}
	if !c.State().Free() {
		t.Error("rejected foreign borrow changed state")
	}
}

// TestTrackBorrows_Report tests that conflicts name the outstanding borrow.
func TestTrackBorrows_Report(t *testing.T) {
	withConfig(t, config.Config{TrackBorrows: true})

	c := New(0)
	defer c.Release()

	r := c.Borrow() // the outstanding borrow
	_, err := c.TryBorrowMut()
	r.Release()

	var ce *borrow.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("TryBorrowMut() = %v, want ConflictError", err)
	}
	if !ce.Previous.Tracked() || ce.Previous.Kind != borrow.Shared {
		t.Errorf("Previous = %+v, want tracked shared site", ce.Previous)
	}

	report := ce.Report()
	if !strings.Contains(report, "TestTrackBorrows_Report") || !strings.Contains(report, "cell_test.go:") {
		t.Errorf("report does not point at the test:\n%s", report)
	}
	if strings.Contains(report, "localcell.(*alloc") {
		t.Errorf("report leaks implementation frames:\n%s", report)
	}
}

// TestReportConflicts tests the report printed before the panic.
func TestReportConflicts(t *testing.T) {
	withConfig(t, config.Config{ReportConflicts: true, TrackBorrows: true})
	borrow.ResetReports()

	var buf bytes.Buffer
	config.SetOutput(&buf)
	defer config.SetOutput(nil)

	c := New(0)
	defer c.Release()

	w := c.BorrowMut()
	mustPanic(t, func() { c.Borrow() })
	w.Release()

	if !strings.Contains(buf.String(), "WARNING: BORROW CONFLICT") {
		t.Errorf("no report printed:\n%s", buf.String())
	}
}

// TestLeakReport tests that unreleased cells are tracked.
func TestLeakReport(t *testing.T) {
	withConfig(t, config.Config{LeakReport: true})
	leak.Reset()
	defer leak.Reset()

	c := New(1)
	kept := New(2)
	c.Release()

	if leak.Live() != 1 {
		t.Fatalf("leak.Live() = %d, want 1", leak.Live())
	}

	var buf bytes.Buffer
	leak.Report(&buf)
	if !strings.Contains(buf.String(), "Cell "+strconv.FormatUint(kept.ID(), 10)+" created at:") {
		t.Errorf("leak report missing cell %d:\n%s", kept.ID(), buf.String())
	}

	if _, ok := kept.Unwrap(); !ok {
		t.Fatal("Unwrap() failed")
	}
	if leak.Live() != 0 {
		t.Errorf("leak.Live() = %d after Unwrap, want 0", leak.Live())
	}
}

// BenchmarkBorrow benchmarks an uncontended read borrow.
func BenchmarkBorrow(b *testing.B) {
	c := New(42)
	defer c.Release()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r := c.Borrow()
		_ = *r.Get()
		r.Release()
	}
}

// BenchmarkBorrowMut benchmarks an uncontended write borrow.
func BenchmarkBorrowMut(b *testing.B) {
	c := New(0)
	defer c.Release()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w := c.BorrowMut()
		*w.Get()++
		w.Release()
	}
}
