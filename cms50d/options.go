package cms50d

import (
	"io"
	"log"
	"time"
)

// An Option configures a device.
type Option func(d *Device) Option

// Options applies options and returns the previous value of the last option
// passed.
func (d *Device) Options(options ...Option) Option {
	var old Option
	for _, opt := range options {
		old = opt(d)
	}
	return old
}

// ReadTimeout sets how long a single port read waits for data. It only
// takes effect when passed to Open or New. By default, it is 10ms.
func ReadTimeout(t time.Duration) Option {
	return func(d *Device) Option {
		old := d.readTimeout
		d.readTimeout = t
		return ReadTimeout(old)
	}
}

// Resend sets after how many consecutive failed read attempts the handshake
// is sent again. Values below 1 are treated as 1. By default, it is
// ResendAfter.
func Resend(n int) Option {
	return func(d *Device) Option {
		if n < 1 {
			n = 1
		}
		old := d.resendAfter
		d.resendAfter = n
		return Resend(old)
	}
}

// PollBackoff sets the wait between failed read attempts. By default, there
// is none besides the port read timeout.
func PollBackoff(b Backoff) Option {
	return func(d *Device) Option {
		old := d.backoff
		d.backoff = b
		return PollBackoff(old)
	}
}

// Logger sets where recovery events are logged. A nil logger discards them.
func Logger(l *log.Logger) Option {
	return func(d *Device) Option {
		if l == nil {
			l = log.New(io.Discard, "", 0)
		}
		old := d.logger
		d.logger = l
		return Logger(old)
	}
}
