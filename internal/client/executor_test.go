package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/ratelimit"
	"github.com/desertthunder/spotkit/internal/shared"
	tu "github.com/desertthunder/spotkit/internal/testing"
	"github.com/desertthunder/spotkit/internal/transport"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// stubFlow issues access-1, access-2, ... valid for an hour.
type stubFlow struct {
	clock  *tu.FakeClock
	scopes auth.ScopeSet
	calls  atomic.Int32
	err    error
}

func (f *stubFlow) Name() string { return "stub" }
func (f *stubFlow) Requested() auth.ScopeSet { return f.scopes }

func (f *stubFlow) Renew(context.Context, *auth.Token) (*auth.Token, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return auth.NewToken(fmt.Sprintf("access-%d", n), f.clock.Now().Add(time.Hour), f.scopes, "r"), nil
}

type harness struct {
	exec    *Executor
	flow    *stubFlow
	tokens  *auth.Manager
	rt      *tu.ScriptedRoundTripper
	clock   *tu.FakeClock
	sleeper *tu.FakeSleeper
}

func newHarness(t *testing.T, scopes []string, steps ...tu.Step) *harness {
	t.Helper()
	c := tu.NewFakeClock(epoch)
	s := tu.NewFakeSleeper(c)
	flow := &stubFlow{clock: c, scopes: auth.NewScopeSet(scopes...)}
	tokens := auth.NewManager(flow, auth.ManagerOptions{Clock: c})
	rt := tu.NewScriptedRoundTripper(steps...)

	exec, err := NewExecutor(ExecutorOptions{
		BaseURL:  "https://api.spotify.com/v1",
		Tokens:   tokens,
		Governor: ratelimit.NewGovernor(ratelimit.Options{Clock: c, Sleeper: s}),
		Sender:   transport.NewBlocking(rt.Client()),
		Clock:    c,
	})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}
	return &harness{exec: exec, flow: flow, tokens: tokens, rt: rt, clock: c, sleeper: s}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func TestExecutor(t *testing.T) {
	t.Run("returns a successful response", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `{"id":"4uLU6hMCjMI75M1A2tKUQC"}`))

		resp, err := h.exec.Execute(context.Background(), Get("/tracks/4uLU6hMCjMI75M1A2tKUQC", url.Values{"market": {"US"}}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(resp.Body), "4uLU6hMCjMI75M1A2tKUQC") {
			t.Errorf("unexpected body %s", resp.Body)
		}

		req := h.rt.Requests()[0]
		if req.URL.String() != "https://api.spotify.com/v1/tracks/4uLU6hMCjMI75M1A2tKUQC?market=US" {
			t.Errorf("unexpected url %s", req.URL)
		}
		if bearer(req) != "access-1" {
			t.Errorf("expected bearer access-1, got %s", req.Header.Get("Authorization"))
		}
	})

	t.Run("waits out a 429 and resends", func(t *testing.T) {
		h := newHarness(t, nil,
			tu.Respond(http.StatusTooManyRequests, `{"error":{"status":429,"message":"API rate limit exceeded"}}`, "Retry-After", "5"),
			tu.Respond(http.StatusOK, `{}`),
		)

		if _, err := h.exec.Execute(context.Background(), Get("/me", nil)); err != nil {
			t.Fatalf("rate limiting must not surface, got %v", err)
		}
		if h.rt.Calls() != 2 {
			t.Errorf("expected 2 sends, got %d", h.rt.Calls())
		}
		if h.sleeper.Total() < 5*time.Second {
			t.Errorf("expected to wait at least 5s, waited %v", h.sleeper.Total())
		}
	})

	t.Run("keeps waiting while the service keeps limiting", func(t *testing.T) {
		h := newHarness(t, nil,
			tu.Respond(http.StatusTooManyRequests, "", "Retry-After", "1"),
			tu.Respond(http.StatusTooManyRequests, "", "Retry-After", "2"),
			tu.Respond(http.StatusTooManyRequests, ""),
			tu.Respond(http.StatusOK, `{}`),
		)

		if _, err := h.exec.Execute(context.Background(), Get("/me", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.rt.Calls() != 4 {
			t.Errorf("expected 4 sends, got %d", h.rt.Calls())
		}
		if want := 4 * time.Second; h.sleeper.Total() != want {
			t.Errorf("expected %v of waiting (1s + 2s + 1s default), got %v", want, h.sleeper.Total())
		}
	})

	t.Run("a single 401 refreshes once and resends once", func(t *testing.T) {
		h := newHarness(t, nil,
			tu.Respond(http.StatusUnauthorized, `{"error":{"status":401,"message":"The access token expired"}}`),
			tu.Respond(http.StatusOK, `{}`),
		)
		h.tokens.Seed(auth.NewToken("revoked", epoch.Add(time.Hour), auth.NewScopeSet(), "r"))

		if _, err := h.exec.Execute(context.Background(), Get("/me", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.flow.calls.Load() != 1 {
			t.Errorf("expected 1 refresh, got %d", h.flow.calls.Load())
		}
		reqs := h.rt.Requests()
		if len(reqs) != 2 {
			t.Fatalf("expected 2 sends, got %d", len(reqs))
		}
		if bearer(reqs[0]) != "revoked" || bearer(reqs[1]) != "access-1" {
			t.Errorf("expected revoked then access-1, got %s then %s", bearer(reqs[0]), bearer(reqs[1]))
		}
	})

	t.Run("a second 401 surfaces without another retry", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusUnauthorized, `{"error":{"status":401,"message":"Invalid access token"}}`))

		_, err := h.exec.Execute(context.Background(), Get("/me", nil))
		var ae *shared.AuthorizationError
		if !errors.As(err, &ae) {
			t.Fatalf("expected AuthorizationError, got %v", err)
		}
		if ae.Status != http.StatusUnauthorized || ae.Description != "Invalid access token" {
			t.Errorf("unexpected error fields %+v", ae)
		}
		if !errors.Is(err, shared.ErrTokenRejected) {
			t.Error("expected errors.Is(err, ErrTokenRejected)")
		}
		if h.rt.Calls() != 2 {
			t.Errorf("expected exactly 2 sends, got %d", h.rt.Calls())
		}
		// one renewal for the initial token, one forced by the first 401
		if h.flow.calls.Load() != 2 {
			t.Errorf("expected 2 renewals, got %d", h.flow.calls.Load())
		}
	})

	t.Run("a failed forced refresh is surfaced", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusUnauthorized, ""))
		h.tokens.Seed(auth.NewToken("revoked", epoch.Add(time.Hour), auth.NewScopeSet(), "r"))
		h.flow.err = &shared.AuthorizationError{Code: "invalid_grant"}

		_, err := h.exec.Execute(context.Background(), Get("/me", nil))
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if h.rt.Calls() != 1 {
			t.Errorf("expected 1 send, got %d", h.rt.Calls())
		}
	})

	t.Run("an expired token is never attached", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `{}`))
		h.tokens.Seed(auth.NewToken("expired", epoch.Add(-time.Second), auth.NewScopeSet(), "r"))

		if _, err := h.exec.Execute(context.Background(), Get("/me", nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range h.rt.Requests() {
			if bearer(r) == "expired" {
				t.Fatal("expired token was sent")
			}
		}
	})

	t.Run("missing scope fails before any network access", func(t *testing.T) {
		h := newHarness(t, []string{"read"}, tu.Respond(http.StatusOK, `{}`))

		_, err := h.exec.Execute(context.Background(), Get("/me/tracks", nil, "write"))
		var se *shared.ScopeError
		if !errors.As(err, &se) {
			t.Fatalf("expected ScopeError, got %v", err)
		}
		if len(se.Missing) != 1 || se.Missing[0] != "write" {
			t.Errorf("unexpected missing scopes %v", se.Missing)
		}
		if h.rt.Calls() != 0 || h.flow.calls.Load() != 0 {
			t.Errorf("expected no network access, got %d sends and %d renewals", h.rt.Calls(), h.flow.calls.Load())
		}
	})

	t.Run("other statuses become APIError", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusNotFound, `{"error":{"status":404,"message":"Non existing id"}}`))

		_, err := h.exec.Execute(context.Background(), Get("/tracks/nope", nil))
		var ae *shared.APIError
		if !errors.As(err, &ae) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if ae.Status != http.StatusNotFound || ae.Message != "Non existing id" {
			t.Errorf("unexpected error fields %+v", ae)
		}
		if h.rt.Calls() != 1 {
			t.Errorf("expected no retry, got %d sends", h.rt.Calls())
		}
	})

	t.Run("transport failures are not retried", func(t *testing.T) {
		h := newHarness(t, nil, tu.Fail(errors.New("connection reset by peer")))

		_, err := h.exec.Execute(context.Background(), Get("/me", nil))
		if !errors.Is(err, shared.ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
		if h.rt.Calls() != 1 {
			t.Errorf("expected 1 send, got %d", h.rt.Calls())
		}
	})

	t.Run("JSON bodies are sent on every attempt", func(t *testing.T) {
		h := newHarness(t, nil,
			tu.Respond(http.StatusTooManyRequests, "", "Retry-After", "1"),
			tu.Respond(http.StatusCreated, `{"snapshot_id":"abc"}`),
		)

		req, err := JSON(http.MethodPost, "/playlists/p1/tracks", map[string]any{"uris": []string{"spotify:track:1"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var out struct {
			SnapshotID string `json:"snapshot_id"`
		}
		if err := h.exec.Do(context.Background(), req, &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.SnapshotID != "abc" {
			t.Errorf("expected snapshot abc, got %s", out.SnapshotID)
		}
		for i := range 2 {
			if !strings.Contains(h.rt.Body(i), "spotify:track:1") {
				t.Errorf("attempt %d sent body %q", i, h.rt.Body(i))
			}
		}
		if ct := h.rt.Requests()[1].Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
	})

	t.Run("Do wraps undecodable bodies", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `not json`))
		var out map[string]any
		if err := h.exec.Do(context.Background(), Get("/me", nil), &out); !errors.Is(err, shared.ErrDeserialize) {
			t.Errorf("expected ErrDeserialize, got %v", err)
		}
	})

	t.Run("paging cursors on the API host are followed", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `{}`))
		next := "https://api.spotify.com/v1/me/playlists?offset=20&limit=20"

		if _, err := h.exec.Execute(context.Background(), Get(next, nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := h.rt.Requests()[0].URL.String(); got != next {
			t.Errorf("expected %s, got %s", next, got)
		}
	})

	t.Run("foreign hosts are refused", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `{}`))

		_, err := h.exec.Execute(context.Background(), Get("https://evil.example.com/steal", nil))
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if h.rt.Calls() != 0 {
			t.Error("no request should have been sent")
		}
	})

	t.Run("cancellation during a rate limit wait", func(t *testing.T) {
		h := newHarness(t, nil, tu.Respond(http.StatusOK, `{}`))
		h.exec.Governor().RecordLimit(time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := h.exec.Execute(ctx, Get("/me", nil)); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if h.rt.Calls() != 0 {
			t.Error("no request should have been sent")
		}
	})
}

func TestNewExecutor(t *testing.T) {
	t.Run("rejects a bad base url", func(t *testing.T) {
		_, err := NewExecutor(ExecutorOptions{BaseURL: "not a url"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("requires collaborators", func(t *testing.T) {
		_, err := NewExecutor(ExecutorOptions{})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

// spotifyServer fakes both the accounts service and the Web API.
func spotifyServer(t *testing.T, api http.HandlerFunc) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var tokenCalls, apiCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			fmt.Fprint(w, `{"access_token":"app","token_type":"Bearer","expires_in":3600}`)
		case "refresh_token":
			fmt.Fprint(w, `{"access_token":"user","token_type":"Bearer","expires_in":3600,"scope":"user-read-private"}`)
		case "authorization_code":
			fmt.Fprint(w, `{"access_token":"user","token_type":"Bearer","expires_in":3600,"refresh_token":"r1","scope":"user-read-private"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		}
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		api(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls, &apiCalls
}

func testOptions(srv *httptest.Server, scopes ...string) Options {
	c := tu.NewFakeClock(epoch)
	return Options{
		Identity:    auth.Identity{ClientID: "client", ClientSecret: "secret", RedirectURI: "http://127.0.0.1:3000/callback"},
		Scopes:      scopes,
		APIURL:      srv.URL + "/v1",
		AccountsURL: srv.URL,
		HTTPClient:  srv.Client(),
		Clock:       c,
		Sleeper:     tu.NewFakeSleeper(c),
	}
}

func TestAppClient(t *testing.T) {
	t.Run("client credentials token with read cannot execute a write request", func(t *testing.T) {
		srv, tokenCalls, apiCalls := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})

		c, err := NewAppClient(testOptions(srv, "read"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tok, err := c.Tokens().Token(context.Background())
		if err != nil {
			t.Fatalf("authorization failed: %v", err)
		}
		if tok.HasRefresh() {
			t.Error("client credentials token must not carry a refresh value")
		}

		_, err = c.Execute(context.Background(), Get("/me/tracks", nil, "write"))
		if !errors.Is(err, shared.ErrMissingScope) {
			t.Fatalf("expected ErrMissingScope, got %v", err)
		}
		if apiCalls.Load() != 0 {
			t.Errorf("expected no API calls, got %d", apiCalls.Load())
		}
		if tokenCalls.Load() != 1 {
			t.Errorf("expected only the authorization call, got %d", tokenCalls.Load())
		}
	})

	t.Run("catalog requests authorize lazily", func(t *testing.T) {
		srv, tokenCalls, _ := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer app" {
				t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `{"id":"1"}`)
		})

		c, err := NewAppClient(testOptions(srv))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for range 3 {
			if _, err := c.Execute(context.Background(), Get("/tracks/1", nil)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if tokenCalls.Load() != 1 {
			t.Errorf("expected 1 token request, got %d", tokenCalls.Load())
		}
	})
}

func TestUserClient(t *testing.T) {
	t.Run("a seeded refresh value is exchanged on first use", func(t *testing.T) {
		srv, tokenCalls, _ := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"user-1"}`)
		})

		opts := testOptions(srv, auth.ScopeUserReadPrivate)
		opts.Token = auth.NewRefreshOnly("persisted", auth.NewScopeSet())
		c, err := NewUserClient(opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := c.Execute(context.Background(), Get("/me", nil, auth.ScopeUserReadPrivate)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tokenCalls.Load() != 1 {
			t.Errorf("expected 1 refresh, got %d", tokenCalls.Load())
		}
		if c.Tokens().Current().RefreshToken() != "persisted" {
			t.Error("expected the refresh value to be retained")
		}
	})

	t.Run("a seeded valid token performs no network calls", func(t *testing.T) {
		srv, tokenCalls, _ := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})

		opts := testOptions(srv)
		opts.Token = auth.NewToken("live", epoch.Add(time.Hour), auth.NewScopeSet(), "persisted")
		c, err := NewUserClient(opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tok, err := c.Tokens().Token(context.Background())
		if err != nil || tok.AccessToken() != "live" {
			t.Fatalf("expected the seeded token, got %v (%v)", tok, err)
		}
		if tokenCalls.Load() != 0 {
			t.Errorf("expected 0 token requests, got %d", tokenCalls.Load())
		}
	})

	t.Run("authorization code consent round trip", func(t *testing.T) {
		srv, _, _ := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {})
		c, err := NewUserClient(testOptions(srv, auth.ScopeUserReadPrivate))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		consent := c.BeginAuthorization(false)
		if consent.Verifier != "" {
			t.Error("authorization code consent must not carry a verifier")
		}
		if !strings.Contains(consent.URL, "state="+consent.State) {
			t.Errorf("consent url missing state: %s", consent.URL)
		}

		tok, err := c.CompleteAuthorization(context.Background(), consent, "code")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Tokens().Current() != tok || !tok.HasRefresh() {
			t.Error("expected the exchanged token to be installed")
		}
	})

	t.Run("PKCE consent carries a verifier", func(t *testing.T) {
		srv, _, _ := spotifyServer(t, func(w http.ResponseWriter, r *http.Request) {})
		opts := testOptions(srv)
		opts.Identity.ClientSecret = ""

		c, err := NewUserClientForFlow(shared.FlowPKCE, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		consent := c.BeginAuthorization(false)
		if consent.Verifier == "" || !strings.Contains(consent.URL, "code_challenge=") {
			t.Errorf("expected a PKCE consent, got %+v", consent)
		}
		if c.FlowName() != shared.FlowPKCE {
			t.Errorf("expected pkce, got %s", c.FlowName())
		}
	})

	t.Run("client credentials is not a user flow", func(t *testing.T) {
		if _, err := NewUserClientForFlow(shared.FlowClientCredentials, Options{}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := shared.DefaultConfig()
	cfg.Credentials.Spotify.ClientID = "id"

	opts := OptionsFromConfig(cfg, nil)
	if opts.Identity.ClientID != "id" {
		t.Errorf("expected client id, got %s", opts.Identity.ClientID)
	}
	if opts.APIURL != DefaultAPIURL {
		t.Errorf("expected %s, got %s", DefaultAPIURL, opts.APIURL)
	}
	if opts.DefaultRetryAfter != time.Second {
		t.Errorf("expected 1s default retry-after, got %v", opts.DefaultRetryAfter)
	}
}
