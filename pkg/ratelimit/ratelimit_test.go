package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(burst int, window time.Duration) (*Limiter, *time.Time) {
	l := New(burst, window)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowExhaustsBurst(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1", 1) {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	if l.Allow("10.0.0.1", 1) {
		t.Error("request past burst allowed")
	}
	if !l.Allow("10.0.0.2", 1) {
		t.Error("other client should have its own bucket")
	}
}

func TestAllowRefills(t *testing.T) {
	l, clock := newTestLimiter(2, 10*time.Second)
	defer l.Close()

	l.Allow("c", 2)
	if l.Allow("c", 1) {
		t.Fatal("bucket should be empty")
	}
	*clock = clock.Add(5 * time.Second)
	if !l.Allow("c", 1) {
		t.Error("one token should have refilled after half a window")
	}
	if l.Allow("c", 1) {
		t.Error("only one token should have refilled")
	}
}

func TestAllowCost(t *testing.T) {
	l, _ := newTestLimiter(4, time.Minute)
	defer l.Close()

	if !l.Allow("c", 3) {
		t.Fatal("cost within burst rejected")
	}
	if l.Allow("c", 3) {
		t.Error("cost above remaining tokens allowed")
	}
	if !l.Allow("c", 1) {
		t.Error("remaining token should still be usable")
	}
}

func TestEvictIdle(t *testing.T) {
	l, clock := newTestLimiter(1, time.Second)
	defer l.Close()

	l.Allow("old", 1)
	*clock = clock.Add(time.Minute)
	l.Allow("new", 1)
	l.evictIdle()
	if l.Len() != 1 {
		t.Errorf("buckets = %d, want 1", l.Len())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(1, time.Second)
	l.Close()
	l.Close()
}
