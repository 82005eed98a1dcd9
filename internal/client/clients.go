package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/clock"
	"github.com/desertthunder/spotkit/internal/ratelimit"
	"github.com/desertthunder/spotkit/internal/shared"
	"github.com/desertthunder/spotkit/internal/transport"
)

// Options configure a client. Only Identity is required; everything else has a production default.
type Options struct {
	Identity auth.Identity
	Scopes   []string

	APIURL      string
	AccountsURL string

	// HTTPClient carries both token and API requests.
	HTTPClient *http.Client
	// Sender overrides the build's default transport.
	Sender      transport.Sender
	MaxInFlight int
	Timeout     time.Duration

	Clock   clock.Clock
	Sleeper clock.Sleeper

	Store    auth.Store
	StoreKey string
	// Token seeds the token manager, e.g. with [auth.NewRefreshOnly] for a refresh value kept from an earlier run.
	Token *auth.Token

	RefreshMargin     time.Duration
	RefreshTimeout    time.Duration
	DefaultRetryAfter time.Duration
	RequestsPerSecond float64

	Logger *log.Logger
}

// OptionsFromConfig maps the [client], [credentials.spotify] and [log] settings onto Options.
func OptionsFromConfig(cfg *shared.Config, logger *log.Logger) Options {
	sp := cfg.Credentials.Spotify
	return Options{
		Identity:          auth.Identity{ClientID: sp.ClientID, ClientSecret: sp.ClientSecret, RedirectURI: sp.RedirectURI},
		Scopes:            sp.Scopes,
		APIURL:            cfg.Client.APIURL,
		AccountsURL:       cfg.Client.AccountsURL,
		MaxInFlight:       cfg.Client.MaxInFlight,
		Timeout:           cfg.Client.Timeout,
		RefreshMargin:     cfg.Client.RefreshMargin,
		RefreshTimeout:    cfg.Client.RefreshTimeout,
		DefaultRetryAfter: cfg.Client.DefaultRetryAfter,
		RequestsPerSecond: cfg.Client.RequestsPerSecond,
		Logger:            logger,
	}
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = transport.DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Sender == nil {
		o.Sender = transport.Default(o.HTTPClient, o.MaxInFlight)
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Sleeper == nil {
		o.Sleeper = clock.DefaultSleeper
	}
	if o.Logger == nil {
		o.Logger = shared.NopLogger()
	}
}

func (o *Options) flowOptions() auth.FlowOptions {
	return auth.FlowOptions{
		AccountsURL: o.AccountsURL,
		HTTPClient:  o.HTTPClient,
		Clock:       o.Clock,
		Logger:      shared.WithLogger(o.Logger, "component", "auth"),
	}
}

// engine wires a manager, governor and executor around flow.
func (o *Options) engine(flow auth.Flow) (*Executor, *auth.Manager, error) {
	if o.StoreKey == "" {
		o.StoreKey = flow.Name() + ":" + o.Identity.ClientID
	}
	manager := auth.NewManager(flow, auth.ManagerOptions{
		Clock:          o.Clock,
		Margin:         o.RefreshMargin,
		RefreshTimeout: o.RefreshTimeout,
		Store:          o.Store,
		StoreKey:       o.StoreKey,
		Logger:         shared.WithLogger(o.Logger, "component", "tokens"),
	})
	if o.Token != nil {
		manager.Seed(o.Token)
	}

	governor := ratelimit.NewGovernor(ratelimit.Options{
		Clock:             o.Clock,
		Sleeper:           o.Sleeper,
		RequestsPerSecond: o.RequestsPerSecond,
		Logger:            shared.WithLogger(o.Logger, "component", "ratelimit"),
	})

	exec, err := NewExecutor(ExecutorOptions{
		BaseURL:           o.APIURL,
		Tokens:            manager,
		Governor:          governor,
		Sender:            o.Sender,
		Clock:             o.Clock,
		DefaultRetryAfter: o.DefaultRetryAfter,
		Logger:            shared.WithLogger(o.Logger, "component", "executor"),
	})
	if err != nil {
		return nil, nil, err
	}
	return exec, manager, nil
}

// AppClient acts as the application alone. It can reach catalog endpoints but holds no user context.
type AppClient struct {
	*Executor
	flow   *auth.ClientCredentials
	tokens *auth.Manager
}

func NewAppClient(opts Options) (*AppClient, error) {
	opts.defaults()

	flow, err := auth.NewClientCredentials(opts.Identity, auth.NewScopeSet(opts.Scopes...), opts.flowOptions())
	if err != nil {
		return nil, err
	}

	exec, manager, err := opts.engine(flow)
	if err != nil {
		return nil, err
	}
	return &AppClient{Executor: exec, flow: flow, tokens: manager}, nil
}

// Tokens exposes the client's token manager.
func (c *AppClient) Tokens() *auth.Manager { return c.tokens }

// UserClient acts on behalf of a Spotify user through the authorization code grant, with or without PKCE.
type UserClient struct {
	*Executor
	code   *auth.AuthorizationCode
	pkce   *auth.PKCE
	tokens *auth.Manager
}

// NewUserClient builds a client for the authorization code grant, which needs the client secret.
func NewUserClient(opts Options) (*UserClient, error) {
	opts.defaults()

	flow, err := auth.NewAuthorizationCode(opts.Identity, auth.NewScopeSet(opts.Scopes...), opts.flowOptions())
	if err != nil {
		return nil, err
	}

	exec, manager, err := opts.engine(flow)
	if err != nil {
		return nil, err
	}
	return &UserClient{Executor: exec, code: flow, tokens: manager}, nil
}

// NewPKCEClient builds a user client for the PKCE grant. No client secret is used.
func NewPKCEClient(opts Options) (*UserClient, error) {
	opts.defaults()

	flow, err := auth.NewPKCE(opts.Identity, auth.NewScopeSet(opts.Scopes...), opts.flowOptions())
	if err != nil {
		return nil, err
	}

	exec, manager, err := opts.engine(flow)
	if err != nil {
		return nil, err
	}
	return &UserClient{Executor: exec, pkce: flow, tokens: manager}, nil
}

// NewUserClientForFlow picks the grant by name, one of shared.FlowAuthorizationCode or shared.FlowPKCE.
func NewUserClientForFlow(kind string, opts Options) (*UserClient, error) {
	switch kind {
	case shared.FlowAuthorizationCode:
		return NewUserClient(opts)
	case shared.FlowPKCE:
		return NewPKCEClient(opts)
	default:
		return nil, fmt.Errorf("%w: %q is not a user-delegated flow", shared.ErrInvalidConfig, kind)
	}
}

// Tokens exposes the client's token manager.
func (c *UserClient) Tokens() *auth.Manager { return c.tokens }

// FlowName is the grant this client renews through.
func (c *UserClient) FlowName() string { return c.tokens.Flow().Name() }

// Consent is one pending interactive authorization.
type Consent struct {
	URL      string
	State    string
	Verifier string
}

// BeginAuthorization prepares the consent URL the user must visit. Verifier is only set under PKCE.
func (c *UserClient) BeginAuthorization(showDialog bool) Consent {
	state := shared.GenerateID()
	if c.pkce != nil {
		verifier := auth.NewVerifier()
		return Consent{URL: c.pkce.AuthCodeURL(state, verifier), State: state, Verifier: verifier}
	}
	return Consent{URL: c.code.AuthCodeURL(state, showDialog), State: state}
}

// CompleteAuthorization exchanges the code from the redirect and installs the resulting token.
func (c *UserClient) CompleteAuthorization(ctx context.Context, consent Consent, code string) (*auth.Token, error) {
	var (
		tok *auth.Token
		err error
	)
	if c.pkce != nil {
		tok, err = c.pkce.Authorize(ctx, code, consent.Verifier)
	} else {
		tok, err = c.code.Authorize(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	c.tokens.Install(ctx, tok)
	return tok, nil
}
