package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/clock"
	"github.com/desertthunder/spotkit/internal/ratelimit"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/transport"
)

// DefaultAPIURL is the Spotify Web API root.
const DefaultAPIURL = "https://api.spotify.com/v1"

const userAgent = "spotkit/1.0"

// Tokens supplies bearer tokens. [auth.Manager] is the production implementation.
type Tokens interface {
	Token(ctx context.Context) (*auth.Token, error)
	ForceRefresh(ctx context.Context, stale *auth.Token) (*auth.Token, error)
	Scopes() auth.ScopeSet
}

// Doer executes endpoint requests. Both client kinds satisfy it.
type Doer interface {
	Execute(ctx context.Context, req Request) (*transport.Response, error)
	Do(ctx context.Context, req Request, v any) error
}

// Executor turns a [Request] into an authorized round trip.
type Executor struct {
	base              *url.URL
	tokens            Tokens
	governor          *ratelimit.Governor
	sender            transport.Sender
	clock             clock.Clock
	defaultRetryAfter time.Duration
	logger            *log.Logger
}

// ExecutorOptions are an executor's collaborators. Governor, Sender and Tokens are required.
type ExecutorOptions struct {
	BaseURL           string
	Tokens            Tokens
	Governor          *ratelimit.Governor
	Sender            transport.Sender
	Clock             clock.Clock
	DefaultRetryAfter time.Duration
	Logger            *log.Logger
}

func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultAPIURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: api url %q", shared.ErrInvalidConfig, raw)
	}
	if opts.Tokens == nil || opts.Governor == nil || opts.Sender == nil {
		return nil, fmt.Errorf("%w: executor needs tokens, governor and sender", shared.ErrInvalidConfig)
	}

	e := &Executor{
		base:              base,
		tokens:            opts.Tokens,
		governor:          opts.Governor,
		sender:            opts.Sender,
		clock:             opts.Clock,
		defaultRetryAfter: opts.DefaultRetryAfter,
		logger:            opts.Logger,
	}
	if e.clock == nil {
		e.clock = clock.System{}
	}
	if e.defaultRetryAfter <= 0 {
		e.defaultRetryAfter = ratelimit.DefaultRetryAfter
	}
	if e.logger == nil {
		e.logger = shared.NopLogger()
	}
	return e, nil
}

// Execute sends req with a valid token and returns the first 2xx response.
//
// Rate limiting is waited out for as long as the service keeps answering 429. A 401 forces one token refresh per
// call; a second 401 is returned as an [shared.AuthorizationError]. Other statuses come back as
// [shared.APIError] and network failures as [shared.TransportError].
func (e *Executor) Execute(ctx context.Context, req Request) (*transport.Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if err := checkScopes(e.tokens.Scopes(), req.Scopes); err != nil {
		return nil, err
	}

	target, err := req.resolve(e.base)
	if err != nil {
		return nil, err
	}
	op := req.Method + " " + target.Path
	refreshed := false

	for {
		if err := e.governor.AwaitClear(ctx); err != nil {
			return nil, err
		}

		tok, err := e.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if !tok.ValidAt(e.clock.Now()) {
			return nil, &shared.AuthorizationError{Description: "token source returned an expired token", Err: shared.ErrTokenExpired}
		}
		if err := checkScopes(tok.Scopes(), req.Scopes); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.bodyReader())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken())
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("User-Agent", userAgent)
		if req.ContentType != "" {
			httpReq.Header.Set("Content-Type", req.ContentType)
		}

		resp, err := e.sender.Send(ctx, httpReq)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := ratelimit.RetryAfter(resp.Header.Get("Retry-After"), e.clock.Now(), e.defaultRetryAfter)
			e.logger.Debug("rate limited", "op", op, "retry_after", wait)
			e.governor.RecordLimit(wait)

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, &shared.AuthorizationError{
					Status:      resp.StatusCode,
					Description: apiMessage(resp.Body),
					Err:         shared.ErrTokenRejected,
				}
			}
			refreshed = true
			e.logger.Debug("token rejected, refreshing", "op", op)
			if _, err := e.tokens.ForceRefresh(ctx, tok); err != nil {
				return nil, err
			}

		case resp.IsSuccess():
			return resp, nil

		default:
			return nil, &shared.APIError{Status: resp.StatusCode, Message: apiMessage(resp.Body), Body: resp.Body}
		}
	}
}

// Do executes req and decodes the JSON body into v. A nil v discards the body.
func (e *Executor) Do(ctx context.Context, req Request, v any) error {
	resp, err := e.Execute(ctx, req)
	if err != nil {
		return err
	}
	if v == nil || len(resp.Body) == 0 {
		return nil
	}
	return DecodeJSON(resp.Body, v)
}

// Governor exposes the executor's rate limit state.
func (e *Executor) Governor() *ratelimit.Governor { return e.governor }

// BaseURL is the API root requests are resolved against.
func (e *Executor) BaseURL() string { return e.base.String() }

func checkScopes(granted auth.ScopeSet, required []string) error {
	if missing := granted.Missing(required...); len(missing) > 0 {
		return &shared.ScopeError{Missing: missing}
	}
	return nil
}
