package firewall

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter strategy names accepted in firewall.limiter.
const (
	LimiterWindow      = "window"
	LimiterTokenBucket = "token_bucket"
)

// Limiter decides whether one more request for key fits. exceeded is true only on
// the call that moved the key from under the limit to over it.
type Limiter interface {
	Allow(key string, now time.Time) (allowed, exceeded bool)
	Sweep(now time.Time) int
	Len() int
}

// windowLimiter resets a key's counter once its window has expired. Bursts of up to
// twice max straddling a boundary are possible.
type windowLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

func newWindowLimiter(window time.Duration, max int) *windowLimiter {
	return &windowLimiter{window: window, max: max, windows: make(map[string]*rateWindow)}
}

func (l *windowLimiter) Allow(key string, now time.Time) (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &rateWindow{count: 1, resetAt: now.Add(l.window)}
		return true, false
	}
	if w.count >= l.max {
		w.count++
		return false, w.count == l.max+1
	}
	w.count++
	return true, false
}

func (l *windowLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
			n++
		}
	}
	return n
}

func (l *windowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// bucketLimiter refills max tokens per window, smoothly.
type bucketLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
	over     bool
}

func newBucketLimiter(window time.Duration, max int) *bucketLimiter {
	return &bucketLimiter{window: window, max: max, buckets: make(map[string]*bucket)}
}

func (l *bucketLimiter) Allow(key string, now time.Time) (bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(l.window/time.Duration(l.max)), l.max)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.lim.AllowN(now, 1)
	exceeded := !allowed && !b.over
	b.over = !allowed
	return allowed, exceeded
}

// Sweep drops buckets idle for a full window; they would be full again anyway.
func (l *bucketLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.window {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *bucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
