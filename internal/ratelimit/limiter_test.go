package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	l := New()
	now := start
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinWindow(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1000, 0))
	rule := Rule{Limit: 5, Window: 30 * time.Second}

	for i := 0; i < 5; i++ {
		if !l.Allow("c1:chat", rule) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("c1:chat", rule) {
		t.Fatalf("sixth attempt inside window must be denied")
	}
	// other keys are independent
	if !l.Allow("c2:chat", rule) {
		t.Fatalf("different connection must not be throttled")
	}

	*now = now.Add(31 * time.Second)
	if !l.Allow("c1:chat", rule) {
		t.Fatalf("window expiry must admit again")
	}
}

func TestSweepEvictsStaleKeys(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1000, 0))
	rule := Rule{Limit: 2, Window: time.Minute}
	l.Allow("old:chat", rule)
	*now = now.Add(2 * time.Hour)
	l.Allow("fresh:chat", rule)

	if removed := l.Sweep(time.Hour); removed != 1 {
		t.Fatalf("expected one stale key evicted, got %d", removed)
	}
	if _, ok := l.hits["fresh:chat"]; !ok {
		t.Fatalf("fresh key must survive the sweep")
	}
}

func TestForgetDropsConnectionKeys(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1000, 0))
	rule := Rule{Limit: 1, Window: time.Minute}
	l.Allow("c1:chat", rule)
	l.Allow("c1:move", rule)
	l.Allow("c2:chat", rule)

	l.Forget("c1:")
	if len(l.hits) != 1 {
		t.Fatalf("expected only c2 state to remain, have %d keys", len(l.hits))
	}
}
