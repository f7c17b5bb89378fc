package clock

import "time"

// FakeClock is a manually advanced Clock for tests. All times are
// normalized to UTC so bucket keys stay stable across machines.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// SetNow jumps the clock to an absolute time.
func (c *FakeClock) SetNow(t time.Time) {
	c.now = t.UTC()
}
