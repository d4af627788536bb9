package project

import (
	"context"
	"testing"
	"time"
)

func TestHappyPathTransitions(t *testing.T) {
	path := []Status{
		StatusIntake, StatusGenerating, StatusAwaitingSelection,
		StatusEditing, StatusAwaitingSelection, StatusShopping,
		StatusCompleted, StatusPurged,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestAbandonmentPath(t *testing.T) {
	if !CanTransition(StatusAwaitingSelection, StatusAbandoned) {
		t.Error("awaiting_selection -> abandoned must be legal")
	}
	if !CanTransition(StatusAbandoned, StatusPurged) {
		t.Error("abandoned -> purged must be legal")
	}
}

func TestFailedReachableFromActiveStatesOnly(t *testing.T) {
	for _, s := range []Status{StatusIntake, StatusGenerating, StatusAwaitingSelection, StatusEditing, StatusShopping} {
		if !CanTransition(s, StatusFailed) {
			t.Errorf("%s -> FAILED must be legal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusPurged} {
		if CanTransition(s, StatusFailed) {
			t.Errorf("%s -> FAILED must be illegal", s)
		}
	}
}

func TestTerminalStatesDispatchNothing(t *testing.T) {
	for _, s := range []Status{StatusPurged, StatusFailed} {
		for _, to := range []Status{StatusIntake, StatusGenerating, StatusShopping, StatusPurged} {
			if CanTransition(s, to) {
				t.Errorf("terminal %s -> %s must be illegal", s, to)
			}
		}
	}
}

func TestCancellationBypassesTimers(t *testing.T) {
	// User cancellation may purge from any non-terminal state.
	for _, s := range []Status{StatusIntake, StatusGenerating, StatusEditing, StatusShopping} {
		if !CanTransition(s, StatusPurged) {
			t.Errorf("%s -> PURGED (cancel) must be legal", s)
		}
	}
}

func TestSkippingStagesIsIllegal(t *testing.T) {
	if CanTransition(StatusIntake, StatusShopping) {
		t.Error("INTAKE -> SHOPPING must be illegal")
	}
	if CanTransition(StatusGenerating, StatusCompleted) {
		t.Error("GENERATING -> COMPLETED must be illegal")
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := New(time.Now())

	if err := s.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusIntake {
		t.Errorf("status = %s, want INTAKE", got.Status)
	}

	// Delete twice: absent row is success.
	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, p.ID); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
