package chat

import (
	"strconv"
	"sync"
	"time"
)

// IDClock hands out message ids from a monotonically non-decreasing
// millisecond clock. Local ids keep transcript order stable before any
// server acknowledgment; two calls in the same millisecond get distinct,
// strictly increasing values.
type IDClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDClock returns an IDClock backed by the wall clock.
func NewIDClock() *IDClock {
	return &IDClock{now: time.Now}
}

// NewIDClockAt returns an IDClock backed by the given time source. Used in
// tests to make ids deterministic.
func NewIDClockAt(now func() time.Time) *IDClock {
	return &IDClock{now: now}
}

// Next returns the next message id.
func (c *IDClock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return strconv.FormatInt(ms, 10)
}
