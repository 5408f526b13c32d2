package backoff

import (
	"testing"
	"time"
)

func fixed(v float64) func() float64 {
	return func() float64 { return v }
}

func TestCalculateDelayWithoutJitter(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		// 0.5 cancels the jitter term
		if d := CalculateDelayWith(tt.attempt, cfg, fixed(0.5)); d != tt.expected {
			t.Errorf("attempt %d: expected %s, got %s", tt.attempt, tt.expected, d)
		}
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	cfg := DefaultConfig()

	low := CalculateDelayWith(1, cfg, fixed(0))
	if low != 750*time.Millisecond {
		t.Errorf("expected lower bound 750ms, got %s", low)
	}

	high := CalculateDelayWith(1, cfg, fixed(0.999999))
	if high < 1249*time.Millisecond || high > 1250*time.Millisecond {
		t.Errorf("expected upper bound close to 1250ms, got %s", high)
	}

	ceiling := time.Duration(float64(cfg.MaxDelay) * (1 + cfg.JitterFactor))
	for attempt := 1; attempt <= 50; attempt++ {
		if d := CalculateDelay(attempt, cfg); d > ceiling {
			t.Fatalf("attempt %d: delay %s exceeds %s", attempt, d, ceiling)
		}
	}
}

func TestCalculateDelayMonotonic(t *testing.T) {
	cfg := DefaultConfig()

	var previous time.Duration
	for attempt := 1; attempt <= 30; attempt++ {
		d := CalculateDelayWith(attempt, cfg, fixed(0.5))
		if d < previous {
			t.Fatalf("attempt %d: delay %s is lower than previous %s", attempt, d, previous)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d: delay %s exceeds max %s", attempt, d, cfg.MaxDelay)
		}
		previous = d
	}
}

func TestCalculateDelayNonPositiveAttempt(t *testing.T) {
	cfg := DefaultConfig()

	if d := CalculateDelayWith(0, cfg, fixed(0.5)); d != 500*time.Millisecond {
		t.Errorf("attempt 0: expected 500ms, got %s", d)
	}
	if d := CalculateDelayWith(-1, cfg, fixed(0.5)); d != 250*time.Millisecond {
		t.Errorf("attempt -1: expected 250ms, got %s", d)
	}
}

func TestShouldReconnect(t *testing.T) {
	cfg := DefaultConfig()

	for n := 0; n < cfg.MaxAttempts; n++ {
		if !ShouldReconnect(n, cfg) {
			t.Errorf("expected reconnect to be allowed after %d attempts", n)
		}
	}
	if ShouldReconnect(cfg.MaxAttempts, cfg) {
		t.Error("expected reconnect to be refused at max attempts")
	}
	if ShouldReconnect(cfg.MaxAttempts+1, cfg) {
		t.Error("expected reconnect to be refused beyond max attempts")
	}

	cfg.MaxAttempts = 0
	if ShouldReconnect(0, cfg) {
		t.Error("expected no reconnect when max attempts is zero")
	}
}
