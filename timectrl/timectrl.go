package timectrl

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by the background loops. Depending on the
// interface rather than the time package keeps the loops testable.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SleepUntil blocks until deadline on clock or until ctx is cancelled. It
// returns overran=true without sleeping when deadline is already in the past,
// so a loop that exceeds its interval starts the next iteration immediately
// instead of queueing catch-up iterations.
func SleepUntil(ctx context.Context, clock Clock, deadline time.Time) (overran bool, err error) {
	now := clock.Now()
	if !now.Before(deadline) {
		return true, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-clock.After(deadline.Sub(now)):
		return false, nil
	}
}

// ManualClock is a Clock whose time only moves when Advance or Set is called.
// Pending After channels fire once their deadline is reached.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewManualClock constructs a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a waiter that fires when the clock reaches now+d. A
// non-positive d fires immediately.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires due waiters.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set jumps the clock to t and fires due waiters in deadline order.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	remaining := c.waiters[:0]
	var due []waiter
	for _, w := range c.waiters {
		if !w.deadline.After(t) {
			due = append(due, w)
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining
	c.mu.Unlock()

	for _, w := range due {
		w.ch <- t
	}
}

// Waiters returns the number of pending After registrations.
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
