package tool

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("first two calls should be allowed")
	}
	if rl.Allow() {
		t.Fatal("third call inside the window should be rejected")
	}

	// advance past the window: budget replenishes
	now = now.Add(61 * time.Second)
	if !rl.Allow() {
		t.Fatal("call after window expiry should be allowed")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow() {
		t.Fatal("first call should pass")
	}
	if rl.Allow() {
		t.Fatal("second call should be rejected")
	}
	rl.Reset()
	if !rl.Allow() {
		t.Fatal("call after Reset should pass")
	}
}
