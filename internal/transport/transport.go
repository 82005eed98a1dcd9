// package transport sends a prepared HTTP request and hands back the fully read response.
//
// Two adapters implement [Sender]: [Blocking], which performs the round trip on the caller's goroutine, and
// [Async], which runs it on its own goroutine so the caller can stop waiting on cancellation. Which one backs
// [Default] is decided at build time by the "blocking" tag.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
)

// DefaultTimeout bounds a single round trip when no client is supplied.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response body is buffered.
const maxBody = 16 << 20

// Response is a completed round trip. Body is fully read and the underlying connection released.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender performs one HTTP round trip.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*Response, error)
}

// Blocking sends on the calling goroutine.
type Blocking struct {
	Client *http.Client
}

func NewBlocking(client *http.Client) *Blocking {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Blocking{Client: client}
}

func (b *Blocking) Send(ctx context.Context, req *http.Request) (*Response, error) {
	return roundTrip(b.Client, req.WithContext(ctx))
}

// roundTrip performs req and reads the body, reporting network failures as [shared.TransportError].
func roundTrip(client *http.Client, req *http.Request) (*Response, error) {
	op := req.Method + " " + req.URL.Path

	resp, err := client.Do(req)
	if err != nil {
		return nil, &shared.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &shared.TransportError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
