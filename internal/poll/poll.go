// Package poll implements the wait loops used by the sensor drivers while
// waiting on hardware state.
package poll

import (
	"context"
	"time"
)

// Backoff describes how long to wait between two polls. The zero value spins,
// checking only for cancellation between polls.
type Backoff struct {
	// Interval is the wait after the first unsuccessful poll.
	Interval time.Duration
	// Max caps the wait. Zero means Interval is never grown.
	Max time.Duration
	// Factor multiplies the wait after every unsuccessful poll. Values
	// below 1 keep the wait constant.
	Factor float64
}

func (b Backoff) next(cur time.Duration) time.Duration {
	if b.Max <= 0 || b.Factor <= 1 {
		return cur
	}
	n := time.Duration(float64(cur) * b.Factor)
	if n > b.Max || n < cur {
		return b.Max
	}
	return n
}

// Until calls cond until it returns true or an error, or until ctx is done.
func Until(ctx context.Context, b Backoff, cond func() (bool, error)) error {
	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	wait := b.Interval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if wait <= 0 {
			continue
		}
		if t == nil {
			t = time.NewTimer(wait)
		} else {
			t.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		wait = b.next(wait)
	}
}
