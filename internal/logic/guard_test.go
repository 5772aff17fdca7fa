package logic

import (
	"math"
	"testing"
)

func TestDecide(t *testing.T) {
	th := NewThreshold(45)
	tests := []struct {
		name     string
		reading  int
		overflow int
		want     Action
	}{
		{"below threshold", 10, 0, ActionIdle},
		{"equal to threshold", 45, 0, ActionIdle},
		{"above threshold", 46, 0, ActionIrrigate},
		{"above threshold under limit", 50, 5, ActionIrrigate},
		{"above threshold at limit", 50, 6, ActionCooldown},
		{"below threshold at limit", 10, 6, ActionIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.reading, th, tt.overflow, DefaultOverflowLimit)
			if got != tt.want {
				t.Errorf("Decide(%d, 45, %d): got %s, want %s", tt.reading, tt.overflow, got, tt.want)
			}
		})
	}
}

func TestDecideUnsetThresholdNeverIrrigates(t *testing.T) {
	if got := Decide(math.MaxInt32, Threshold{}, 0, DefaultOverflowLimit); got != ActionIdle {
		t.Errorf("expected IDLE with unset threshold, got %s", got)
	}
}

func TestGuardScenario(t *testing.T) {
	// threshold=45, readings fed once per iteration, overflow starting at 0
	g := NewGuard(DefaultOverflowLimit)
	th := NewThreshold(45)
	readings := []int{10, 50, 50, 50, 50, 50, 50, 50}
	want := []Action{
		ActionIdle,
		ActionIrrigate, ActionIrrigate, ActionIrrigate,
		ActionIrrigate, ActionIrrigate, ActionIrrigate,
		ActionCooldown,
	}
	wantOverflow := []int{0, 1, 2, 3, 4, 5, 6, 0}

	for i, r := range readings {
		got := g.Evaluate(r, th)
		if got != want[i] {
			t.Errorf("iteration %d: got %s, want %s", i+1, got, want[i])
		}
		if g.Overflow() != wantOverflow[i] {
			t.Errorf("iteration %d: overflow got %d, want %d", i+1, g.Overflow(), wantOverflow[i])
		}
	}
}

func TestGuardActuatesAfterCooldown(t *testing.T) {
	g := NewGuard(6)
	th := NewThreshold(45)

	for i := 0; i < 6; i++ {
		if got := g.Evaluate(99, th); got != ActionIrrigate {
			t.Fatalf("cycle %d: expected IRRIGATE, got %s", i+1, got)
		}
	}
	if got := g.Evaluate(99, th); got != ActionCooldown {
		t.Fatalf("cycle 7: expected COOLDOWN, got %s", got)
	}
	if g.Overflow() != 0 {
		t.Errorf("expected overflow reset after cooldown, got %d", g.Overflow())
	}
	if got := g.Evaluate(99, th); got != ActionIrrigate {
		t.Errorf("cycle 8: expected IRRIGATE, got %s", got)
	}
	if g.Overflow() != 1 {
		t.Errorf("expected overflow 1 after cycle 8, got %d", g.Overflow())
	}
}

func TestGuardIdleResetsOverflow(t *testing.T) {
	g := NewGuard(6)
	th := NewThreshold(45)

	g.Evaluate(50, th)
	g.Evaluate(50, th)
	if g.Overflow() != 2 {
		t.Fatalf("expected overflow 2, got %d", g.Overflow())
	}
	g.Evaluate(45, th)
	if g.Overflow() != 0 {
		t.Errorf("expected overflow reset by satisfied reading, got %d", g.Overflow())
	}
}

func TestNewGuardClampsLimit(t *testing.T) {
	g := NewGuard(0)
	if g.Limit() != 1 {
		t.Errorf("expected limit 1, got %d", g.Limit())
	}
	th := NewThreshold(1)
	if got := g.Evaluate(5, th); got != ActionIrrigate {
		t.Errorf("expected IRRIGATE, got %s", got)
	}
	if got := g.Evaluate(5, th); got != ActionCooldown {
		t.Errorf("expected COOLDOWN, got %s", got)
	}
}
