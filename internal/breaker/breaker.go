// Package breaker implements the reconnect circuit breaker and DSNR-burst
// log sampling described in spec §7: exponential backoff per host, capped
// at 30s, and a token bucket that keeps a flood of non-fatal protocol
// errors from drowning the log.
package breaker

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
	hostCacheSize = 64
)

// hostState tracks one host's consecutive-failure count and next-allowed
// retry time.
type hostState struct {
	failures    int
	nextAttempt time.Time
}

// Breaker gates reconnect attempts per host with exponential backoff.
type Breaker struct {
	mu    sync.Mutex
	hosts *lru.Cache[string, *hostState]
	now   func() time.Time
}

// New creates a Breaker. now is injectable for deterministic tests; callers
// in production pass time.Now.
func New(now func() time.Time) *Breaker {
	cache, _ := lru.New[string, *hostState](hostCacheSize)
	return &Breaker{hosts: cache, now: now}
}

// Allow reports whether a connection attempt to host is permitted right
// now, given any prior recorded failures.
func (b *Breaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.hosts.Get(host)
	if !ok {
		return true
	}
	return !b.now().Before(st.nextAttempt)
}

// RecordFailure increments host's failure count and schedules its next
// allowed attempt at backoff(failures), capped at maxBackoff.
func (b *Breaker) RecordFailure(host string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.hosts.Get(host)
	if !ok {
		st = &hostState{}
		b.hosts.Add(host, st)
	}
	st.failures++
	d := backoffFor(st.failures)
	st.nextAttempt = b.now().Add(d)
	return d
}

// RecordSuccess clears host's failure state, resetting backoff to the base
// delay for any future failure run.
func (b *Breaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hosts.Remove(host)
}

// backoffFor computes 1s, 2s, 4s, 8s, 16s, capped at 30s, per consecutive
// failure count n (n>=1).
func backoffFor(n int) time.Duration {
	d := baseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// NextAttempt returns the recorded next-allowed time for host, for
// diagnostics/UI display of "retrying in Ns".
func (b *Breaker) NextAttempt(host string) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.hosts.Get(host)
	if !ok {
		return time.Time{}, false
	}
	return st.nextAttempt, true
}
