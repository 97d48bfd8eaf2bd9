// Package ratelimit implements a per-key sliding-window counter for
// abuse prevention. Keys are ephemeral connection/action pairs, so the
// table lives in process memory and is evicted by a periodic sweep.
package ratelimit

import (
	"sync"
	"time"
)

// Rule bounds one action kind.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter tracks request timestamps per key.
type Limiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func New() *Limiter {
	return &Limiter{
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow records an attempt and reports whether it fits inside the
// rule's window. Denied attempts are not recorded.
func (l *Limiter) Allow(key string, rule Rule) bool {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true
	}
	now := l.now()
	cutoff := now.Add(-rule.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rule.Limit {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// Forget drops all state for a key, used when a connection goes away.
func (l *Limiter) Forget(keyPrefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.hits {
		if len(k) >= len(keyPrefix) && k[:len(keyPrefix)] == keyPrefix {
			delete(l.hits, k)
		}
	}
}

// Sweep evicts keys whose newest entry is older than maxAge and returns
// the number removed.
func (l *Limiter) Sweep(maxAge time.Duration) int {
	cutoff := l.now().Add(-maxAge)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, times := range l.hits {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.hits, k)
			removed++
		}
	}
	return removed
}
