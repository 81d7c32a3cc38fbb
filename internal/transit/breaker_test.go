package transit

import (
	"errors"
	"testing"
	"time"
)

// TestFeedBreaker_OpensAfterConsecutiveFailures verifies that a feed is
// blocked once the failure threshold is reached while other feeds stay
// unaffected.
func TestFeedBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newFeedBreaker(3, 2, 30*time.Second)
	fail := errors.New("boom")

	for i := 0; i < 3; i++ {
		if !b.allow("gtfs") {
			t.Fatalf("allow() = false before threshold (failure %d)", i)
		}
		b.record("gtfs", fail)
	}

	if b.allow("gtfs") {
		t.Error("allow() = true after threshold, want blocked")
	}
	if !b.allow("gtfs-ace") {
		t.Error("allow() = false for unrelated feed")
	}
}

// TestFeedBreaker_SuccessResetsFailureCount verifies that intermittent
// failures never open the breaker.
func TestFeedBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newFeedBreaker(3, 2, 30*time.Second)
	fail := errors.New("boom")

	for i := 0; i < 10; i++ {
		b.record("gtfs", fail)
		b.record("gtfs", fail)
		b.record("gtfs", nil)
	}

	if !b.allow("gtfs") {
		t.Error("allow() = false, want open breaker only on consecutive failures")
	}
}

// TestFeedBreaker_HalfOpenProbe verifies the cooldown probe: one request is
// admitted after the cooldown, a probe failure re-opens the breaker, and
// enough probe successes close it.
func TestFeedBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := newFeedBreaker(2, 2, 30*time.Second)
	b.now = func() time.Time { return now }
	fail := errors.New("boom")

	b.record("gtfs", fail)
	b.record("gtfs", fail)
	if b.allow("gtfs") {
		t.Fatal("allow() = true with open breaker inside cooldown")
	}

	now = now.Add(31 * time.Second)
	if !b.allow("gtfs") {
		t.Fatal("allow() = false after cooldown, want probe admitted")
	}
	b.record("gtfs", fail)
	if b.allow("gtfs") {
		t.Fatal("allow() = true after failed probe")
	}

	now = now.Add(31 * time.Second)
	if !b.allow("gtfs") {
		t.Fatal("allow() = false after second cooldown")
	}
	b.record("gtfs", nil)
	b.record("gtfs", nil)
	b.record("gtfs", fail)
	if !b.allow("gtfs") {
		t.Error("allow() = false after breaker closed, single failure should not re-open")
	}
}
