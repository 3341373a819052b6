package util

import "time"

// Clock reads the current time. Token expiry and certificate validity are measured against it.
type Clock interface {
	Now() time.Time
}

type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now() }

// DummyClock is stopped at T.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time {
	return c.T
}

// Until returns the time left before t according to c. It is negative once t has passed.
func Until(c Clock, t time.Time) time.Duration {
	return t.Sub(c.Now())
}
