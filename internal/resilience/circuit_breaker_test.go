package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Minute, 6, 5, 0.5, time.Second, 2)
	if !cb.Allow() {
		t.Fatal("Allow() = false on a fresh breaker, want true")
	}
}

func TestCircuitBreakerOpensOnSustainedFailure(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Minute, 6, 5, 0.5, time.Hour, 2)
	for i := 0; i < 10; i++ {
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatal("Allow() = true after sustained failures, want false (open)")
	}
}

func TestCircuitBreakerStaysClosedBelowMinSamples(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Minute, 6, 100, 0.5, time.Hour, 2)
	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	if !cb.Allow() {
		t.Fatal("Allow() = false before minSamples reached, want true")
	}
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Minute, 6, 1, 0.5, time.Millisecond, 1)
	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.Allow() {
		t.Fatal("Allow() = true immediately after opening, want false")
	}
	time.Sleep(5 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("Allow() = false after cooldown elapsed, want true (half-open probe)")
	}
}
