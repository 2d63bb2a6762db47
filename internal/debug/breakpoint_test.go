package debug

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/dshills/stormdbg/internal/debug/location"
)

var (
	fooLine10 = location.Editor{Path: "/p/src/com/example/Foo.java", Line: 10}
	fooTarget = location.Backend{Target: "com.example.Foo", Line: 10}
)

func TestBreakpointAddConfirm(t *testing.T) {
	s, mt, rec := newTestSession(t)
	attach(t, s)
	ctx := context.Background()

	bp, err := s.AddBreakpoint(ctx, fooLine10)
	if err != nil {
		t.Fatalf("AddBreakpoint failed: %v", err)
	}
	if bp.Confirmed || !bp.Enabled || !bp.Resolved {
		t.Errorf("unexpected breakpoint after add: %+v", bp)
	}
	if bp.Target != fooTarget {
		t.Errorf("expected target %v, got %v", fooTarget, bp.Target)
	}
	if mt.count("add com.example.Foo:10") != 1 {
		t.Errorf("expected add sent to backend, got %v", mt.Calls())
	}

	mt.emit(t, BreakpointConfirmed{BackendID: "7", Location: Location{Backend: fooTarget}})
	eventually(t, "confirmation", func() bool {
		got, _ := s.Breakpoint(fooLine10)
		return got.Confirmed
	})

	got, _ := s.Breakpoint(fooLine10)
	if got.BackendID != "7" {
		t.Errorf("expected backend id 7, got %q", got.BackendID)
	}
	eventually(t, "confirmed event", func() bool {
		return rec.eventCount(EventBreakpointConfirmed) == 1
	})
	confirmed := rec.Events()[0].(BreakpointConfirmed)
	if confirmed.Location.Editor != fooLine10 {
		t.Errorf("expected event at %v, got %v", fooLine10, confirmed.Location.Editor)
	}
}

func TestBreakpointDuplicateAdd(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)
	ctx := context.Background()

	for range 3 {
		if _, err := s.AddBreakpoint(ctx, fooLine10); err != nil {
			t.Fatalf("AddBreakpoint failed: %v", err)
		}
	}

	if n := len(s.Breakpoints()); n != 1 {
		t.Errorf("expected 1 breakpoint, got %d", n)
	}
	if n := mt.count("add com.example.Foo:10"); n != 1 {
		t.Errorf("expected 1 backend add, got %d", n)
	}
}

func TestBreakpointInvalidLocation(t *testing.T) {
	s, _, _ := newTestSession(t)

	for _, loc := range []location.Editor{{Path: "", Line: 1}, {Path: "/p/a.java", Line: 0}} {
		if _, err := s.AddBreakpoint(context.Background(), loc); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("AddBreakpoint(%v): expected ErrInvalidLocation, got %v", loc, err)
		}
	}
}

func TestBreakpointDetachedThenAttach(t *testing.T) {
	s, mt, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.AddBreakpoint(ctx, fooLine10); err != nil {
		t.Fatalf("AddBreakpoint failed: %v", err)
	}
	if len(mt.Calls()) != 0 {
		t.Fatalf("expected no transport calls while detached, got %v", mt.Calls())
	}

	attach(t, s)

	want := []string{"attach", "add com.example.Foo:10"}
	if got := mt.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestBreakpointAddFailure(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)
	mt.mu.Lock()
	mt.addErr = errBoom
	mt.mu.Unlock()

	bp, err := s.AddBreakpoint(context.Background(), fooLine10)
	if !errors.Is(err, ErrBreakpointSync) || !errors.Is(err, errBoom) {
		t.Fatalf("expected sync error wrapping cause, got %v", err)
	}
	if !errors.Is(bp.SyncErr, ErrBreakpointSync) {
		t.Errorf("expected SyncErr on breakpoint, got %v", bp.SyncErr)
	}
	if s.State() != StateRunning {
		t.Errorf("sync failure must not change state, got %v", s.State())
	}
	if _, ok := s.Breakpoint(fooLine10); !ok {
		t.Error("breakpoint should stay registered after sync failure")
	}
}

func TestBreakpointRejected(t *testing.T) {
	s, mt, rec := newTestSession(t)
	attach(t, s)

	if _, err := s.AddBreakpoint(context.Background(), fooLine10); err != nil {
		t.Fatalf("AddBreakpoint failed: %v", err)
	}
	mt.emit(t, BreakpointRejected{Location: Location{Backend: fooTarget}, Reason: "no code at line"})

	eventually(t, "rejection", func() bool {
		return rec.eventCount(EventBreakpointRejected) == 1
	})
	bp, _ := s.Breakpoint(fooLine10)
	var syncErr *SyncError
	if !errors.As(bp.SyncErr, &syncErr) || syncErr.Reason != "no code at line" {
		t.Errorf("expected SyncError with reason, got %v", bp.SyncErr)
	}
	if bp.Confirmed {
		t.Error("rejected breakpoint should not be confirmed")
	}
}

func TestBreakpointSynthetic(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)

	mt.emit(t, BreakpointConfirmed{BackendID: "9", Location: Location{Backend: location.Backend{Target: "com.example.Bar", Line: 5}}})

	bar := location.Editor{Path: "/p/src/com/example/Bar.java", Line: 5}
	eventually(t, "synthetic breakpoint", func() bool {
		_, ok := s.Breakpoint(bar)
		return ok
	})
	bp, _ := s.Breakpoint(bar)
	if !bp.Synthetic || !bp.Confirmed || bp.BackendID != "9" {
		t.Errorf("unexpected synthetic breakpoint %+v", bp)
	}

	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if _, ok := s.Breakpoint(bar); ok {
		t.Error("synthetic breakpoint should be dropped on teardown")
	}
}

func TestBreakpointRemoveConfirmed(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)
	ctx := context.Background()

	s.AddBreakpoint(ctx, fooLine10)
	mt.emit(t, BreakpointConfirmed{BackendID: "1", Location: Location{Backend: fooTarget}})
	eventually(t, "confirmation", func() bool {
		bp, _ := s.Breakpoint(fooLine10)
		return bp.Confirmed
	})

	if err := s.RemoveBreakpoint(ctx, fooLine10); err != nil {
		t.Fatalf("RemoveBreakpoint failed: %v", err)
	}
	if mt.count("remove com.example.Foo:10") != 1 {
		t.Errorf("expected backend removal, got %v", mt.Calls())
	}
	if len(s.Breakpoints()) != 0 {
		t.Errorf("expected no breakpoints, got %v", s.Breakpoints())
	}

	if err := s.RemoveBreakpoint(ctx, fooLine10); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestBreakpointRemoveBeforeConfirmation(t *testing.T) {
	s, mt, rec := newTestSession(t)
	attach(t, s)
	ctx := context.Background()

	s.AddBreakpoint(ctx, fooLine10)
	if err := s.RemoveBreakpoint(ctx, fooLine10); err != nil {
		t.Fatalf("RemoveBreakpoint failed: %v", err)
	}
	if mt.count("remove com.example.Foo:10") != 0 {
		t.Fatalf("unconfirmed removal should stay local, got %v", mt.Calls())
	}

	// The late confirmation is withdrawn instead of resurrecting the entry.
	mt.emit(t, BreakpointConfirmed{BackendID: "1", Location: Location{Backend: fooTarget}})
	eventually(t, "withdrawal", func() bool {
		return mt.count("remove com.example.Foo:10") == 1
	})
	if len(s.Breakpoints()) != 0 {
		t.Errorf("expected no breakpoints, got %v", s.Breakpoints())
	}
	if rec.eventCount(EventBreakpointConfirmed) != 0 {
		t.Error("withdrawn confirmation should not reach observers")
	}
}

func TestBreakpointDisableEnable(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)
	ctx := context.Background()

	s.AddBreakpoint(ctx, fooLine10)
	mt.emit(t, BreakpointConfirmed{BackendID: "1", Location: Location{Backend: fooTarget}})
	eventually(t, "confirmation", func() bool {
		bp, _ := s.Breakpoint(fooLine10)
		return bp.Confirmed
	})

	bp, err := s.SetBreakpointEnabled(ctx, fooLine10, false)
	if err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if bp.Enabled || bp.Confirmed {
		t.Errorf("expected disabled unconfirmed breakpoint, got %+v", bp)
	}
	if mt.count("remove com.example.Foo:10") != 1 {
		t.Errorf("expected backend removal on disable, got %v", mt.Calls())
	}

	// Adding at a disabled location re-enables it.
	bp, err = s.AddBreakpoint(ctx, fooLine10)
	if err != nil {
		t.Fatalf("AddBreakpoint failed: %v", err)
	}
	if !bp.Enabled {
		t.Error("expected add to re-enable the breakpoint")
	}
	if mt.count("add com.example.Foo:10") != 2 {
		t.Errorf("expected second backend add, got %v", mt.Calls())
	}

	if _, err := s.SetBreakpointEnabled(ctx, location.Editor{Path: "/p/none.java", Line: 1}, true); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestBreakpointHitCount(t *testing.T) {
	s, mt, _ := newTestSession(t)
	attach(t, s)
	s.AddBreakpoint(context.Background(), fooLine10)

	suspendAt(t, s, mt, 10)
	if err := s.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	suspendAt(t, s, mt, 10)

	bp, _ := s.Breakpoint(fooLine10)
	if bp.HitCount != 2 {
		t.Errorf("expected 2 hits, got %d", bp.HitCount)
	}
}

func TestBreakpointsSorted(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	locs := []location.Editor{
		{Path: "/p/src/com/example/Foo.java", Line: 20},
		{Path: "/p/src/com/example/Bar.java", Line: 7},
		{Path: "/p/src/com/example/Foo.java", Line: 3},
	}
	for _, loc := range locs {
		s.AddBreakpoint(ctx, loc)
	}

	var got []location.Editor
	for _, bp := range s.Breakpoints() {
		got = append(got, bp.Location)
	}
	want := []location.Editor{locs[1], locs[2], locs[0]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// memoryStore is an in-memory BreakpointStore.
type memoryStore struct {
	mu    sync.Mutex
	saved map[string][]SavedBreakpoint
	saves int
}

func (m *memoryStore) Load(kind string) ([]SavedBreakpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[kind], nil
}

func (m *memoryStore) Save(kind string, bps []SavedBreakpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string][]SavedBreakpoint)
	}
	m.saved[kind] = bps
	m.saves++
	return nil
}

func TestBreakpointPersistence(t *testing.T) {
	store := &memoryStore{saved: map[string][]SavedBreakpoint{
		"jdb": {
			{Location: fooLine10, Enabled: true},
			{Location: location.Editor{Path: "/p/src/com/example/Bar.java", Line: 4}, Enabled: false},
			{Location: location.Editor{Path: "", Line: 4}, Enabled: true},
		},
	}}

	s, mt, _ := newTestSession(t, WithStore(store))
	if n := len(s.Breakpoints()); n != 2 {
		t.Fatalf("expected 2 restored breakpoints, got %d", n)
	}

	attach(t, s)
	// Only the enabled breakpoint is submitted.
	want := []string{"attach", "add com.example.Foo:10"}
	if got := mt.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}

	if err := s.RemoveBreakpoint(context.Background(), fooLine10); err != nil {
		t.Fatalf("RemoveBreakpoint failed: %v", err)
	}
	saved, _ := store.Load("jdb")
	if len(saved) != 1 || saved[0].Enabled {
		t.Errorf("expected the disabled breakpoint to remain saved, got %v", saved)
	}
}
