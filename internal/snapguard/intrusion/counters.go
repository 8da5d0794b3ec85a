package intrusion

import (
	"sync"
	"time"
)

// Counters tracks activity per (subject, activity) in fixed windows that reset on
// expiry. It satisfies firewall.SuspicionTracker.
type Counters struct {
	window time.Duration

	mu sync.Mutex
	m  map[string]*counter
}

type counter struct {
	count   int
	resetAt time.Time
}

func NewCounters(window time.Duration) *Counters {
	return &Counters{window: window, m: make(map[string]*counter)}
}

// Observe counts one occurrence and returns the count in the current window.
func (c *Counters) Observe(subject, activity string, now time.Time) int {
	k := subject + "|" + activity
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.m[k]
	if !ok || now.After(ctr.resetAt) {
		ctr = &counter{resetAt: now.Add(c.window)}
		c.m[k] = ctr
	}
	ctr.count++
	return ctr.count
}

func (c *Counters) Count(subject, activity string, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.m[subject+"|"+activity]
	if !ok || now.After(ctr.resetAt) {
		return 0
	}
	return ctr.count
}

// Sweep drops expired counters and returns how many were removed.
func (c *Counters) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, ctr := range c.m {
		if now.After(ctr.resetAt) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *Counters) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
