package testing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// FakeClock is a manually advanced clock. The zero value starts at the zero instant.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FakeSleeper records requested sleeps and advances Clock instead of waiting.
type FakeSleeper struct {
	Clock *FakeClock

	mu    sync.Mutex
	slept []time.Duration
}

func NewFakeSleeper(c *FakeClock) *FakeSleeper {
	return &FakeSleeper{Clock: c}
}

func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()

	if d > 0 && s.Clock != nil {
		s.Clock.Advance(d)
	}
	return nil
}

// Slept returns every duration passed to Sleep, in order.
func (s *FakeSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// Total is the sum of all recorded sleeps.
func (s *FakeSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Slept() {
		total += d
	}
	return total
}

// Step produces the response for one round trip.
type Step func(*http.Request) (*http.Response, error)

// Respond returns a step answering with status, body and optional header pairs.
func Respond(status int, body string, header ...string) Step {
	return func(r *http.Request) (*http.Response, error) {
		h := make(http.Header)
		for i := 0; i+1 < len(header); i += 2 {
			h.Set(header[i], header[i+1])
		}
		if h.Get("Content-Type") == "" && body != "" {
			h.Set("Content-Type", "application/json")
		}
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     h,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
			Request:    r,
		}, nil
	}
}

// Fail returns a step that fails the round trip with err.
func Fail(err error) Step {
	return func(*http.Request) (*http.Response, error) { return nil, err }
}

// ScriptedRoundTripper answers round trips with its steps in order, repeating the last step once the script runs
// out. Every request is recorded.
type ScriptedRoundTripper struct {
	steps []Step
	calls atomic.Int64

	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

func NewScriptedRoundTripper(steps ...Step) *ScriptedRoundTripper {
	return &ScriptedRoundTripper{steps: steps}
}

func (s *ScriptedRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	n := int(s.calls.Add(1)) - 1

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body.Close()
	}

	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(context.Background()))
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()

	if len(s.steps) == 0 {
		return Respond(http.StatusOK, "{}")(r)
	}
	if n >= len(s.steps) {
		n = len(s.steps) - 1
	}
	return s.steps[n](r)
}

// Calls is the number of round trips performed so far.
func (s *ScriptedRoundTripper) Calls() int {
	return int(s.calls.Load())
}

// Requests returns copies of the recorded requests.
func (s *ScriptedRoundTripper) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests...)
}

// Body returns the body sent with the i-th request.
func (s *ScriptedRoundTripper) Body(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.bodies) {
		return ""
	}
	return string(s.bodies[i])
}

// Client wraps the round tripper in an [http.Client].
func (s *ScriptedRoundTripper) Client() *http.Client {
	return &http.Client{Transport: s}
}
