package core

import (
	"fmt"
	"sync"
)

// ModelLimiter caps the number of model calls a single run may issue. It is
// the guard against unbounded graph cycles burning through a provider budget.
// A zero max disables the cap.
type ModelLimiter struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewModelLimiter returns a limiter allowing up to max calls (0 = unlimited).
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment consumes one call from the budget. Once the budget is exhausted
// every further call fails, so a looping graph terminates with a node failure
// instead of spinning.
func (l *ModelLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("model call budget of %d exhausted", l.max)
	}
	return nil
}

// Count reports how many calls have been issued so far.
func (l *ModelLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Remaining reports the calls left in the budget, or -1 when unlimited.
func (l *ModelLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max == 0 {
		return -1
	}
	return l.max - l.count
}
