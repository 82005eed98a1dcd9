package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	tu "github.com/desertthunder/spotkit/internal/testing"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newGovernor() (*Governor, *tu.FakeClock, *tu.FakeSleeper) {
	c := tu.NewFakeClock(epoch)
	s := tu.NewFakeSleeper(c)
	return NewGovernor(Options{Clock: c, Sleeper: s}), c, s
}

func TestGovernor(t *testing.T) {
	t.Run("no pending limit is a no-op", func(t *testing.T) {
		g, _, s := newGovernor()
		if err := g.AwaitClear(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s.Slept()) != 0 {
			t.Errorf("expected no sleep, got %v", s.Slept())
		}
	})

	t.Run("retry after 5 seconds waits at least 5 seconds", func(t *testing.T) {
		g, c, s := newGovernor()
		g.RecordLimit(RetryAfter("5", c.Now(), DefaultRetryAfter))

		if err := g.AwaitClear(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := c.Now().Sub(epoch); elapsed < 5*time.Second {
			t.Errorf("AwaitClear returned after %v, expected at least 5s", elapsed)
		}
		if s.Total() != 5*time.Second {
			t.Errorf("expected 5s of sleep, got %v", s.Total())
		}
	})

	t.Run("a call 6 seconds later is not delayed", func(t *testing.T) {
		g, c, s := newGovernor()
		g.RecordLimit(5 * time.Second)
		c.Advance(6 * time.Second)

		if err := g.AwaitClear(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s.Slept()) != 0 {
			t.Errorf("expected no delay, slept %v", s.Slept())
		}
	})

	t.Run("unlock instant never moves backwards", func(t *testing.T) {
		g, c, _ := newGovernor()
		g.RecordLimit(10 * time.Second)
		first := g.UnlockAt()

		g.RecordLimit(2 * time.Second)
		if !g.UnlockAt().Equal(first) {
			t.Errorf("shorter limit moved the instant from %v to %v", first, g.UnlockAt())
		}

		c.Advance(9 * time.Second)
		g.RecordLimit(5 * time.Second)
		if want := epoch.Add(14 * time.Second); !g.UnlockAt().Equal(want) {
			t.Errorf("expected later limit to extend to %v, got %v", want, g.UnlockAt())
		}
	})

	t.Run("concurrent records keep the furthest instant", func(t *testing.T) {
		g, _, _ := newGovernor()
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				g.RecordLimit(time.Duration(i) * time.Second)
			}(i)
		}
		wg.Wait()

		if want := epoch.Add(20 * time.Second); !g.UnlockAt().Equal(want) {
			t.Errorf("expected %v, got %v", want, g.UnlockAt())
		}
	})

	t.Run("an extension during the wait is honoured", func(t *testing.T) {
		c := tu.NewFakeClock(epoch)
		var g *Governor
		extended := false
		s := sleeperFunc(func(ctx context.Context, d time.Duration) error {
			c.Advance(d)
			if !extended {
				extended = true
				g.RecordLimit(3 * time.Second)
			}
			return nil
		})
		g = NewGovernor(Options{Clock: c, Sleeper: s})
		g.RecordLimit(2 * time.Second)

		if err := g.AwaitClear(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := c.Now().Sub(epoch); elapsed != 5*time.Second {
			t.Errorf("expected to wait out the extension (5s), waited %v", elapsed)
		}
	})

	t.Run("cancellation interrupts the wait", func(t *testing.T) {
		g, _, _ := newGovernor()
		g.RecordLimit(time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := g.AwaitClear(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("pacing spaces out sends", func(t *testing.T) {
		c := tu.NewFakeClock(epoch)
		s := tu.NewFakeSleeper(c)
		g := NewGovernor(Options{Clock: c, Sleeper: s, RequestsPerSecond: 2})

		for range 3 {
			if err := g.AwaitClear(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if s.Total() < 900*time.Millisecond {
			t.Errorf("expected roughly 1s of pacing for 3 sends at 2/s, got %v", s.Total())
		}
	})
}

type sleeperFunc func(ctx context.Context, d time.Duration) error

func (f sleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

func TestRetryAfter(t *testing.T) {
	now := epoch
	tc := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "integer seconds", value: "5", want: 5 * time.Second},
		{name: "zero", value: "0", want: 0},
		{name: "padded", value: " 12 ", want: 12 * time.Second},
		{name: "missing", value: "", want: DefaultRetryAfter},
		{name: "negative", value: "-3", want: DefaultRetryAfter},
		{name: "garbage", value: "soon", want: DefaultRetryAfter},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		{name: "past http date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryAfter(tt.value, now, DefaultRetryAfter); got != tt.want {
				t.Errorf("RetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
