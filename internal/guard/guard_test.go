package guard

import (
	"errors"
	"testing"
	"time"
)

func newTestGuard(maxInFlight int, ramUsedPct float64, cooldown time.Duration) *Guard {
	return New(maxInFlight, 0.90, cooldown, WithRAMReader(func() (float64, error) {
		return ramUsedPct, nil
	}))
}

func TestAdmit_AllowsFirstSubmission(t *testing.T) {
	g := newTestGuard(3, 0.1, time.Minute)
	if err := g.Admit("alice"); err != nil {
		t.Fatalf("expected first submission to be admitted, got: %v", err)
	}
	if got := g.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}
}

func TestAdmit_RejectsWithinCooldown(t *testing.T) {
	g := newTestGuard(3, 0.1, time.Minute)
	if err := g.Admit("alice"); err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	g.Release()

	err := g.Admit("alice")
	if !errors.Is(err, ErrCooldown) {
		t.Errorf("expected ErrCooldown, got: %v", err)
	}
}

func TestAdmit_AllowsAfterCooldownElapses(t *testing.T) {
	g := newTestGuard(3, 0.1, time.Millisecond)
	if err := g.Admit("alice"); err != nil {
		t.Fatalf("first admit failed: %v", err)
	}
	g.Release()

	time.Sleep(5 * time.Millisecond)
	if err := g.Admit("alice"); err != nil {
		t.Errorf("expected second submission after cooldown to be admitted, got: %v", err)
	}
}

func TestAdmit_RejectsAtConcurrencyCap(t *testing.T) {
	g := newTestGuard(2, 0.1, 0)
	if err := g.Admit("a"); err != nil {
		t.Fatalf("admit a: %v", err)
	}
	if err := g.Admit("b"); err != nil {
		t.Fatalf("admit b: %v", err)
	}

	err := g.Admit("c")
	if !errors.Is(err, ErrConcurrencyCap) {
		t.Errorf("expected ErrConcurrencyCap, got: %v", err)
	}
}

func TestAdmit_RejectsOnRAMPressure(t *testing.T) {
	g := newTestGuard(3, 0.95, 0)
	err := g.Admit("alice")
	if !errors.Is(err, ErrRAMPressure) {
		t.Errorf("expected ErrRAMPressure, got: %v", err)
	}
	if got := g.InFlight(); got != 0 {
		t.Errorf("a rejected admit must not reserve a slot, InFlight() = %d", got)
	}
}

func TestRelease_NeverGoesNegative(t *testing.T) {
	g := newTestGuard(3, 0.1, 0)
	g.Release()
	g.Release()
	if got := g.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0 after releasing with nothing admitted", got)
	}
}

func TestAdmit_DifferentUsersDoNotShareCooldown(t *testing.T) {
	g := newTestGuard(3, 0.1, time.Minute)
	if err := g.Admit("alice"); err != nil {
		t.Fatalf("admit alice: %v", err)
	}
	if err := g.Admit("bob"); err != nil {
		t.Errorf("bob's submission should not be blocked by alice's cooldown, got: %v", err)
	}
}
