package breaker

import (
	"testing"
	"time"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time { return t }
}

// TestBackoffDoublesAndCaps checks the 1s/2s/4s.../30s-cap sequence.
func TestBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		n    int
		want time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		if got := backoffFor(c.n); got != c.want {
			t.Errorf("backoffFor(%d) = %v, want %v", c.n, got, c.want)
		}
	}
}

// TestAllowGatesUntilBackoffElapses verifies a failed host is blocked until
// its scheduled retry time, then allowed again.
func TestAllowGatesUntilBackoffElapses(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	now := func() time.Time { return clock }
	b := New(now)

	if !b.Allow("host1") {
		t.Fatal("expected host with no recorded failures to be allowed")
	}
	b.RecordFailure("host1")
	if b.Allow("host1") {
		t.Fatal("expected host to be blocked immediately after a failure")
	}

	clock = clock.Add(2 * time.Second)
	if !b.Allow("host1") {
		t.Fatal("expected host to be allowed once backoff has elapsed")
	}
}

// TestRecordSuccessResetsBackoff confirms a success clears failure history.
func TestRecordSuccessResetsBackoff(t *testing.T) {
	now := fixedClock(time.Now())
	b := New(now)
	b.RecordFailure("hostA")
	b.RecordFailure("hostA")
	b.RecordSuccess("hostA")

	if _, ok := b.NextAttempt("hostA"); ok {
		t.Fatal("expected no recorded next-attempt after success reset")
	}
}

// TestSamplerLimitsBurst checks the token bucket denies once exhausted and
// replenishes over time.
func TestSamplerLimitsBurst(t *testing.T) {
	start := time.Now()
	clock := start
	now := func() time.Time { return clock }
	s := NewSampler(2, 1, now) // capacity 2, 1 token/sec

	if !s.Allow() || !s.Allow() {
		t.Fatal("expected first two calls to be allowed (full bucket)")
	}
	if s.Allow() {
		t.Fatal("expected third immediate call to be denied")
	}

	clock = clock.Add(1500 * time.Millisecond)
	if !s.Allow() {
		t.Fatal("expected a call to be allowed after refill")
	}
}
