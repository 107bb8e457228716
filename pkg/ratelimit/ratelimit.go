// Package ratelimit keeps one token bucket per client so expensive expanded
// searches cannot starve the service.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter hands every client burst tokens, refilled continuously at
// burst/window per second.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*entry
	limit   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func New(burst int, window time.Duration) *Limiter {
	l := &Limiter{
		clients: make(map[string]*entry),
		limit:   rate.Limit(float64(burst) / window.Seconds()),
		burst:   burst,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.evictLoop(5 * time.Minute)
	return l
}

// Allow takes cost tokens from key's bucket and reports whether they were
// available. An expanded search costs more than a plain one.
func (l *Limiter) Allow(key string, cost int) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.clients[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, cost)
}

// RetryAfter is how long one token takes to refill.
func (l *Limiter) RetryAfter() time.Duration {
	return l.window / time.Duration(max(l.burst, 1))
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops the eviction goroutine.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle drops clients idle for two windows; their buckets are full again.
func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.clients {
		if e.seen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
