package server

import (
	"errors"
	"testing"
	"time"

	"github.com/chazu/m43/vm"
)

// ---------------------------------------------------------------------------
// SessionStore
// ---------------------------------------------------------------------------

func TestSessionStore_CreateGetDestroy(t *testing.T) {
	store := NewSessionStore()

	a, err := store.Create("a", "", vm.DoubleProgram, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := store.Create("b", "", vm.DoubleProgram, nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate session id %q", a.ID)
	}

	got, ok := store.Get(a.ID)
	if !ok || got != a {
		t.Errorf("Get(%q) = %v, %v", a.ID, got, ok)
	}
	if !store.Destroy(a.ID) {
		t.Error("Destroy reported a missing session")
	}
	if store.Destroy(a.ID) {
		t.Error("Destroy removed a session twice")
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestSessionStore_CreateRejectsMissingStart(t *testing.T) {
	store := NewSessionStore()
	g := vm.MustFixedGrid(2, 1, vm.Print{}, vm.End{})
	if _, err := store.Create("", "", g, nil, nil); !errors.Is(err, vm.FaultMissingStart) {
		t.Errorf("Create = %v, want FaultMissingStart", err)
	}
	if store.Len() != 0 {
		t.Error("failed Create registered a session")
	}
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore()
	stale, _ := store.Create("stale", "", vm.DoubleProgram, nil, nil)
	fresh, _ := store.Create("fresh", "", vm.DoubleProgram, nil, nil)
	stale.lastUsed.Store(time.Now().Add(-time.Hour).UnixNano())

	if n := store.Sweep(time.Minute); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if _, ok := store.Get(stale.ID); ok {
		t.Error("stale session survived the sweep")
	}
	if _, ok := store.Get(fresh.ID); !ok {
		t.Error("fresh session was swept")
	}
}

func TestSession_InputAndOutput(t *testing.T) {
	s := &Session{input: []vm.Value{1, 2}}
	if v, err := s.read(vm.InputPrompt); v != 1 || err != nil {
		t.Errorf("read = %d, %v", v, err)
	}
	if v, err := s.read(vm.InputPrompt); v != 2 || err != nil {
		t.Errorf("read = %d, %v", v, err)
	}
	if _, err := s.read(vm.InputPrompt); !errors.Is(err, errNoInput) {
		t.Errorf("read on empty queue = %v", err)
	}

	s.write("a")
	s.write("b")
	if out := s.drain(); len(out) != 2 {
		t.Errorf("drain = %q", out)
	}
	s.write("c")
	if out := s.drain(); len(out) != 1 || out[0] != "c" {
		t.Errorf("second drain = %q", out)
	}
	if len(s.transcript) != 3 {
		t.Errorf("transcript = %q", s.transcript)
	}
}

// ---------------------------------------------------------------------------
// VMWorker
// ---------------------------------------------------------------------------

func TestVMWorker_Do(t *testing.T) {
	w := NewVMWorker()
	defer w.Stop()

	v, err := w.Do(func() any { return 42 })
	if err != nil || v.(int) != 42 {
		t.Errorf("Do = %v, %v", v, err)
	}
}

func TestVMWorker_RecoversPanic(t *testing.T) {
	w := NewVMWorker()
	defer w.Stop()

	if _, err := w.Do(func() any { panic("boom") }); err == nil || err.Error() != "boom" {
		t.Errorf("Do = %v, want boom", err)
	}
	if v, err := w.Do(func() any { return "alive" }); err != nil || v != "alive" {
		t.Errorf("worker did not survive the panic: %v, %v", v, err)
	}
}

func TestVMWorker_DoAfterStop(t *testing.T) {
	w := NewVMWorker()
	w.Stop()
	w.Stop()

	if _, err := w.Do(func() any { return nil }); !errors.Is(err, errWorkerStopped) {
		t.Errorf("Do after Stop = %v, want errWorkerStopped", err)
	}
}
