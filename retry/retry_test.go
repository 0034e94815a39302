package retry

import (
	"testing"
	"time"
)

func TestDelay_ExponentialLadder(t *testing.T) {
	cfg := DefaultConfig

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 16 * time.Second},  // capped
		{10, 16 * time.Second}, // still capped
	}

	for _, tt := range tests {
		if got := cfg.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestDelay_NegativeCount(t *testing.T) {
	cfg := DefaultConfig
	if got := cfg.Delay(-3); got != cfg.BaseDelay {
		t.Errorf("Delay(-3) = %v, want %v", got, cfg.BaseDelay)
	}
}

func TestDelay_NoOverflowOnLargeCounts(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: time.Minute}
	if got := cfg.Delay(200); got != time.Minute {
		t.Errorf("Delay(200) = %v, want %v", got, time.Minute)
	}
}

func TestShouldRetry(t *testing.T) {
	cfg := Config{MaxRetries: 5}

	for n := 0; n < 5; n++ {
		if !cfg.ShouldRetry(n) {
			t.Errorf("ShouldRetry(%d) = false, want true", n)
		}
	}
	if cfg.ShouldRetry(5) {
		t.Error("ShouldRetry(5) = true, want false")
	}
	if cfg.ShouldRetry(6) {
		t.Error("ShouldRetry(6) = true, want false")
	}
}
