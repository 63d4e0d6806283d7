package event

import (
	"sync"
	"time"
)

// Clock hands out strictly monotonic timestamps within a single process.
// If the wall clock has not advanced since the last call, the synthetic
// tiebreak advances by one nanosecond to preserve total order — the
// system is single-writer per event log, so cross-process ordering is not
// attempted here.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// NewClock returns a Clock with no prior timestamp, so its first Now call
// returns the current wall-clock time.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns a timestamp strictly after every timestamp previously
// returned by this Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}
