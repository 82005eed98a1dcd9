// package clock abstracts time so the request engine can be driven by a fake clock in tests and so the one thing
// that differs between the blocking and non-blocking builds, how a caller waits, is a single swappable value.
package clock

import (
	"context"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Sleeper suspends the caller for d or until ctx is done, whichever comes first.
//
// A non-positive d returns immediately with ctx's error, if any.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// TimerSleeper parks the goroutine on a timer so other goroutines keep running while it waits.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockingSleeper occupies the calling thread for the full duration.
//
// Cancellation is only observed before and after the sleep.
type BlockingSleeper struct{}

func (BlockingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		time.Sleep(d)
	}
	return ctx.Err()
}
