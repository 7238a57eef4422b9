package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauses(t *testing.T) {
	pauses := NewPauses("rewards")
	if err := Guard(pauses, "rewards"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "bank"); err != nil {
		t.Fatalf("unexpected error for running module: %v", err)
	}
	if !pauses.Set("rewards", false) {
		t.Fatalf("expected resume to change state")
	}
	if pauses.Set("rewards", false) {
		t.Fatalf("second resume must be a no-op")
	}
	if err := Guard(pauses, "rewards"); err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
	if err := Guard(nil, "rewards"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestPausedListsSorted(t *testing.T) {
	pauses := NewPauses()
	pauses.Set("rewards", true)
	pauses.Set("bank", true)
	got := pauses.Paused()
	if len(got) != 2 || got[0] != "bank" || got[1] != "rewards" {
		t.Fatalf("unexpected paused modules %v", got)
	}
}
