// package ratelimit holds back requests while Spotify has asked the client to wait.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spotkit/internal/clock"
	"github.com/desertthunder/spotkit/internal/shared"
)

// DefaultRetryAfter is used when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = time.Second

// Options configures a [Governor]. Zero values select the defaults.
type Options struct {
	Clock   clock.Clock
	Sleeper clock.Sleeper
	// RequestsPerSecond > 0 additionally paces sends ahead of any 429.
	RequestsPerSecond float64
	Burst             int
	Logger            *log.Logger
}

// Governor tracks the instant before which no request may be sent.
//
// The mutex only guards reading and writing that instant; it is never held while sleeping.
type Governor struct {
	mu       sync.Mutex
	unlockAt time.Time

	clock   clock.Clock
	sleeper clock.Sleeper
	pacer   *rate.Limiter
	logger  *log.Logger
}

func NewGovernor(opts Options) *Governor {
	g := &Governor{clock: opts.Clock, sleeper: opts.Sleeper, logger: opts.Logger}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	if g.sleeper == nil {
		g.sleeper = clock.DefaultSleeper
	}
	if g.logger == nil {
		g.logger = shared.NopLogger()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.pacer = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

// AwaitClear returns once the recorded unlock instant has passed.
//
// It re-checks after every sleep because another caller may have pushed the instant further out meanwhile.
func (g *Governor) AwaitClear(ctx context.Context) error {
	for {
		wait := g.Remaining()
		if wait <= 0 {
			break
		}
		g.logger.Debug("rate limited, waiting", "wait", wait)
		if err := g.sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	if g.pacer != nil {
		return g.pace(ctx)
	}
	return ctx.Err()
}

// pace reserves a slot on the limiter and sleeps through the configured sleeper.
func (g *Governor) pace(ctx context.Context) error {
	r := g.pacer.ReserveN(g.clock.Now(), 1)
	if !r.OK() {
		return ctx.Err()
	}
	if d := r.DelayFrom(g.clock.Now()); d > 0 {
		if err := g.sleeper.Sleep(ctx, d); err != nil {
			r.Cancel()
			return err
		}
	}
	return nil
}

// RecordLimit extends the unlock instant to now+wait. It never moves the instant backwards.
func (g *Governor) RecordLimit(wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	until := g.clock.Now().Add(wait)

	g.mu.Lock()
	if until.After(g.unlockAt) {
		g.unlockAt = until
	}
	g.mu.Unlock()
}

// UnlockAt is the current unlock instant, zero when nothing was ever recorded.
func (g *Governor) UnlockAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlockAt
}

// Remaining is how long a send would have to wait right now.
func (g *Governor) Remaining() time.Duration {
	g.mu.Lock()
	until := g.unlockAt
	g.mu.Unlock()

	if until.IsZero() {
		return 0
	}
	return until.Sub(g.clock.Now())
}

// RetryAfter reads a Retry-After value, either delay-seconds or an HTTP date relative to now. Anything missing,
// negative or unparsable yields fallback.
func RetryAfter(value string, now time.Time, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}

	return fallback
}
