package trace

import "time"

// Clock is the time source of a tracer.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the monotonic wall clock.
var SystemClock Clock = systemClock{}

// LineClock measures the time between consecutive line events of a frame.
type LineClock struct {
	clock Clock
	last  time.Time
	armed bool
}

// NewLineClock returns a LineClock reading from clock.
func NewLineClock(clock Clock) LineClock {
	if clock == nil {
		clock = SystemClock
	}

	return LineClock{clock: clock}
}

// Tick returns the time since the previous Tick and restarts the
// measurement. The first Tick only sets the baseline and returns false.
func (c *LineClock) Tick() (time.Duration, bool) {
	now := c.clock.Now()
	if !c.armed {
		c.last = now
		c.armed = true

		return 0, false
	}

	elapsed := now.Sub(c.last)
	if elapsed < 0 {
		elapsed = 0
	}

	c.last = now

	return elapsed, true
}

// Armed reports whether a baseline has been taken.
func (c *LineClock) Armed() bool {
	return c.armed
}
