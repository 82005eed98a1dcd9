package transport

import (
	"context"
	"net/http"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds concurrent round trips of an [Async] sender.
const DefaultMaxInFlight = 8

type result struct {
	resp *Response
	err  error
}

// Async runs each round trip on its own goroutine and waits for either its result or the caller's context.
//
// At most maxInFlight round trips run at once; further sends queue on the semaphore.
type Async struct {
	client   *http.Client
	inFlight *semaphore.Weighted
}

func NewAsync(client *http.Client, maxInFlight int) *Async {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Async{client: client, inFlight: semaphore.NewWeighted(int64(maxInFlight))}
}

func (a *Async) Send(ctx context.Context, req *http.Request) (*Response, error) {
	if err := a.inFlight.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan result, 1)
	go func() {
		defer a.inFlight.Release(1)
		resp, err := roundTrip(a.client, req.WithContext(ctx))
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
