package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
	tu "github.com/desertthunder/spotkit/internal/testing"
)

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}

func senders(client *http.Client) map[string]Sender {
	return map[string]Sender{
		"Blocking": NewBlocking(client),
		"Async":    NewAsync(client, 2),
	}
}

func TestSenders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"status":429,"message":"API rate limit exceeded"}}`))
	}))
	defer srv.Close()

	for name, s := range senders(srv.Client()) {
		t.Run(name+" returns the full response", func(t *testing.T) {
			resp, err := s.Send(context.Background(), newRequest(t, srv.URL+"/v1/tracks/1"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != http.StatusTooManyRequests {
				t.Errorf("expected 429, got %d", resp.StatusCode)
			}
			if resp.Header.Get("Retry-After") != "3" {
				t.Errorf("expected Retry-After header, got %q", resp.Header.Get("Retry-After"))
			}
			if resp.IsSuccess() {
				t.Error("429 is not a success")
			}
			if len(resp.Body) == 0 {
				t.Error("expected a body")
			}
		})

		t.Run(name+" reports network failures as TransportError", func(t *testing.T) {
			rt := tu.NewScriptedRoundTripper(tu.Fail(errors.New("dial tcp: connection refused")))
			var failing Sender = NewBlocking(rt.Client())
			if name == "Async" {
				failing = NewAsync(rt.Client(), 1)
			}

			_, err := failing.Send(context.Background(), newRequest(t, "https://api.spotify.com/v1/me"))
			var te *shared.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if te.Op != "GET /v1/me" {
				t.Errorf("unexpected op %q", te.Op)
			}
		})

		t.Run(name+" reports body read failures", func(t *testing.T) {
			rt := tu.NewScriptedRoundTripper(func(r *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: 200, Header: http.Header{}, Body: &tu.FCloser{}, Request: r}, nil
			})
			var failing Sender = NewBlocking(rt.Client())
			if name == "Async" {
				failing = NewAsync(rt.Client(), 1)
			}

			if _, err := failing.Send(context.Background(), newRequest(t, "https://api.spotify.com/v1/me")); !errors.Is(err, shared.ErrTransport) {
				t.Errorf("expected ErrTransport, got %v", err)
			}
		})
	}
}

func TestAsync(t *testing.T) {
	t.Run("caller cancellation returns promptly", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		a := NewAsync(srv.Client(), 1)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := a.Send(ctx, newRequest(t, srv.URL))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("Send did not return on cancellation")
		}
	})

	t.Run("bounds concurrent round trips", func(t *testing.T) {
		var current, peak atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}))
		defer srv.Close()

		a := NewAsync(srv.Client(), 2)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := a.Send(context.Background(), newRequest(t, srv.URL)); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent round trips, saw %d", peak.Load())
		}
	})
}

func TestDefault(t *testing.T) {
	if Default(nil, 0) == nil {
		t.Fatal("expected a sender for this build")
	}
}
