package pulseox

import "time"

// An Option configures a collector.
type Option func(c *Collector) Option

// Options applies options and returns the previous value of the last option
// passed.
func (c *Collector) Options(options ...Option) Option {
	var old Option
	for _, opt := range options {
		old = opt(c)
	}
	return old
}

// Clock sets the time source used to stamp rows. By default, it is
// time.Now.
func Clock(now func() time.Time) Option {
	return func(c *Collector) Option {
		old := c.now
		c.now = now
		return Clock(old)
	}
}
