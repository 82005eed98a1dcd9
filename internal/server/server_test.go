package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
)

func TestOAuthHandler(t *testing.T) {
	t.Run("valid callback runs the exchange", func(t *testing.T) {
		var got string
		h := NewOAuthHandler("/callback", "state-1", func(ctx context.Context, code string) error {
			got = code
			return nil
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=state-1", nil))

		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Authorization Successful") {
			t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
		if got != "abc" {
			t.Errorf("expected code abc, got %q", got)
		}

		res := <-h.Result()
		if res.Error() != nil || res.Code != "abc" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		called := false
		h := NewOAuthHandler("", "expected", func(context.Context, string) error {
			called = true
			return nil
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil))

		if rec.Code != http.StatusBadRequest || called {
			t.Errorf("expected 400 without exchange, got %d (called=%v)", rec.Code, called)
		}
		if res := <-h.Result(); res.Error() == nil {
			t.Error("expected an error result")
		}
	})

	t.Run("user denied consent", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "s", nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&state=s", nil))

		res := <-h.Result()
		if rec.Code != http.StatusBadRequest || res.Error() == nil || !strings.Contains(res.Error().Error(), "access_denied") {
			t.Errorf("unexpected outcome %d %v", rec.Code, res.Error())
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "s", func(context.Context, string) error {
			return shared.ErrAuthFailed
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=s", nil))

		res := <-h.Result()
		if rec.Code != http.StatusInternalServerError || !errors.Is(res.Error(), shared.ErrAuthFailed) {
			t.Errorf("unexpected outcome %d %v", rec.Code, res.Error())
		}
	})

	t.Run("only the first callback counts", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "s", nil)

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?code=one&state=s", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?code=two&state=s", nil))

		if second.Code != http.StatusBadRequest {
			t.Errorf("expected the replay to be rejected, got %d", second.Code)
		}
		if res := <-h.Result(); res.Code != "one" {
			t.Errorf("expected the first code, got %s", res.Code)
		}
	})
}

func TestBasicRouter(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mark("outer"), mark("inner"))
	router.Handle("post", "/hook", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Errorf("unexpected middleware order %v", order)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hook", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestCallbackServer(t *testing.T) {
	t.Run("receives the callback", func(t *testing.T) {
		h := NewOAuthHandler("/cb", "s", nil)
		srv, err := NewCallbackServer("http://127.0.0.1:0/cb", h, shared.NopLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		go func() {
			resp, err := http.Get("http://" + srv.Addr() + "/cb?code=xyz&state=s")
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("times out", func(t *testing.T) {
		h := NewOAuthHandler("/cb", "s", nil)
		srv, err := NewCallbackServer("http://127.0.0.1:0/cb", h, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := srv.Wait(ctx); !errors.Is(err, shared.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected timeout, got %v", err)
		}
	})

	t.Run("bad redirect uri", func(t *testing.T) {
		if _, err := NewCallbackServer("not a url", NewOAuthHandler("", "", nil), nil); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
