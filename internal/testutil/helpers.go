package testutil

import (
	"testing"
	"time"
)

const pollInterval = 5 * time.Millisecond

// WaitFor polls condition until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for !condition() {
		select {
		case <-ticker.C:
		case <-deadline:
			t.Fatalf("condition not met within %v", timeout)
		}
	}
}

// WaitForEvent returns the next value received on ch.
func WaitForEvent[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no value received within %v", timeout)
	}
	var zero T
	return zero
}
