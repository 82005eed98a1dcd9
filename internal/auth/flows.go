package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/spotkit/internal/clock"
	"github.com/desertthunder/spotkit/internal/shared"
)

// DefaultAccountsURL is the Spotify accounts service.
const DefaultAccountsURL = "https://accounts.spotify.com"

// defaultLifetime applies when a token response carries no expiry at all.
const defaultLifetime = time.Hour

// Flow is an OAuth grant able to produce a replacement for the current token.
//
// Renew is the only operation the [Manager] calls; each grant also exposes its own Authorize.
type Flow interface {
	Name() string
	Requested() ScopeSet
	Renew(ctx context.Context, current *Token) (*Token, error)
}

// FlowOptions are the collaborators shared by all grants. Zero values select production defaults.
type FlowOptions struct {
	AccountsURL string
	HTTPClient  *http.Client
	Clock       clock.Clock
	Logger      *log.Logger
}

// Endpoint returns the Spotify authorize and token URLs rooted at accountsURL.
func Endpoint(accountsURL string) oauth2.Endpoint {
	base := strings.TrimRight(accountsURL, "/")
	if base == "" {
		base = DefaultAccountsURL
	}
	return oauth2.Endpoint{AuthURL: base + "/authorize", TokenURL: base + "/api/token"}
}

// NewFlow builds the grant named by kind, one of the shared.Flow* constants.
func NewFlow(kind string, id Identity, scopes ScopeSet, opts FlowOptions) (Flow, error) {
	switch kind {
	case shared.FlowClientCredentials:
		return NewClientCredentials(id, scopes, opts)
	case shared.FlowAuthorizationCode:
		return NewAuthorizationCode(id, scopes, opts)
	case shared.FlowPKCE:
		return NewPKCE(id, scopes, opts)
	default:
		return nil, fmt.Errorf("%w: unknown flow %q", shared.ErrInvalidConfig, kind)
	}
}

// grant holds what every flow needs to talk to the token endpoint.
type grant struct {
	identity   Identity
	requested  ScopeSet
	endpoint   oauth2.Endpoint
	httpClient *http.Client
	clock      clock.Clock
	logger     *log.Logger
}

func newGrant(id Identity, scopes ScopeSet, opts FlowOptions) grant {
	g := grant{
		identity:   id,
		requested:  scopes,
		endpoint:   Endpoint(opts.AccountsURL),
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	if g.logger == nil {
		g.logger = shared.NopLogger()
	}
	return g
}

func (g *grant) Requested() ScopeSet { return g.requested }

// oauthContext routes the oauth2 package's token requests through the configured client.
func (g *grant) oauthContext(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// convert turns a token response into a [Token].
//
// The granted scopes are whatever the service reported, limited to what was requested; a response without a scope
// field grants the requested set. When the response omits a refresh value, prior is kept.
func (g *grant) convert(tok *oauth2.Token, prior string) *Token {
	granted := g.requested
	if raw, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		granted = ParseScopes(raw).Intersect(g.requested)
	}

	now := g.clock.Now()
	var expires time.Time
	switch secs, ok := expiresIn(tok); {
	case ok:
		expires = now.Add(time.Duration(secs) * time.Second)
	case !tok.Expiry.IsZero():
		expires = tok.Expiry
	default:
		expires = now.Add(defaultLifetime)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prior
	}
	return NewToken(tok.AccessToken, expires, granted, refresh)
}

// expiresIn reads expires_in off the raw response so expiry is computed against the injected clock.
func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	}
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn, true
	}
	return 0, false
}

// classify maps oauth2 failures onto the shared error kinds. Network failures surface as *url.Error from the
// HTTP client; everything else the token endpoint said or sent is an authorization failure.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ae := &shared.AuthorizationError{Code: re.ErrorCode, Description: re.ErrorDescription, Err: shared.ErrInvalidCredentials}
		if re.Response != nil {
			ae.Status = re.Response.StatusCode
		}
		if ae.Code == "" && ae.Description == "" {
			ae.Description = strings.TrimSpace(string(re.Body))
		}
		return ae
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return &shared.TransportError{Op: "token", Err: err}
	}
	return &shared.AuthorizationError{Description: err.Error(), Err: shared.ErrRefreshFailed}
}

// ClientCredentials is the app-only grant: no user context, no refresh value.
type ClientCredentials struct {
	grant
	cfg clientcredentials.Config
}

func NewClientCredentials(id Identity, scopes ScopeSet, opts FlowOptions) (*ClientCredentials, error) {
	if err := id.Validate(true, false); err != nil {
		return nil, err
	}
	g := newGrant(id, scopes, opts)
	return &ClientCredentials{
		grant: g,
		cfg: clientcredentials.Config{
			ClientID:     id.ClientID,
			ClientSecret: id.ClientSecret,
			TokenURL:     g.endpoint.TokenURL,
			Scopes:       scopes.Strings(),
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}, nil
}

func (f *ClientCredentials) Name() string { return shared.FlowClientCredentials }

// Authorize requests a fresh app token.
func (f *ClientCredentials) Authorize(ctx context.Context) (*Token, error) {
	f.logger.Debug("requesting client credentials token", "client", f.identity.ClientID)

	tok, err := f.cfg.Token(f.oauthContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return f.convert(tok, "").WithRefresh(""), nil
}

// Refresh is not part of the client credentials grant.
func (f *ClientCredentials) Refresh(context.Context, string) (*Token, error) {
	return nil, shared.ErrRefreshUnsupported
}

// Renew re-authorizes; the current token is irrelevant.
func (f *ClientCredentials) Renew(ctx context.Context, _ *Token) (*Token, error) {
	return f.Authorize(ctx)
}

// userGrant is shared by the two user-delegated grants.
type userGrant struct {
	grant
	cfg *oauth2.Config
}

func newUserGrant(id Identity, scopes ScopeSet, opts FlowOptions, style oauth2.AuthStyle) userGrant {
	g := newGrant(id, scopes, opts)
	endpoint := g.endpoint
	endpoint.AuthStyle = style
	return userGrant{
		grant: g,
		cfg: &oauth2.Config{
			ClientID:     id.ClientID,
			ClientSecret: id.ClientSecret,
			RedirectURL:  id.RedirectURI,
			Scopes:       scopes.Strings(),
			Endpoint:     endpoint,
		},
	}
}

func (u *userGrant) exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}
	u.logger.Debug("exchanging authorization code", "client", u.identity.ClientID)

	tok, err := u.cfg.Exchange(u.oauthContext(ctx), code, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if tok.RefreshToken == "" {
		return nil, &shared.AuthorizationError{Description: "token response carried no refresh token", Err: shared.ErrNoRefreshToken}
	}
	return u.convert(tok, ""), nil
}

// Refresh exchanges a refresh value for a new token, keeping refresh when the service does not rotate it.
func (u *userGrant) Refresh(ctx context.Context, refresh string) (*Token, error) {
	if refresh == "" {
		return nil, &shared.AuthorizationError{Err: shared.ErrNoRefreshToken}
	}
	u.logger.Debug("refreshing access token", "client", u.identity.ClientID)

	tok, err := u.cfg.TokenSource(u.oauthContext(ctx), &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return nil, classify(err)
	}
	return u.convert(tok, refresh), nil
}

func (u *userGrant) Renew(ctx context.Context, current *Token) (*Token, error) {
	if current == nil || !current.HasRefresh() {
		return nil, &shared.AuthorizationError{Err: shared.ErrNoRefreshToken}
	}
	return u.Refresh(ctx, current.RefreshToken())
}

// AuthorizationCode is the user-delegated grant for confidential clients holding a secret.
type AuthorizationCode struct {
	userGrant
}

func NewAuthorizationCode(id Identity, scopes ScopeSet, opts FlowOptions) (*AuthorizationCode, error) {
	if err := id.Validate(true, true); err != nil {
		return nil, err
	}
	return &AuthorizationCode{userGrant: newUserGrant(id, scopes, opts, oauth2.AuthStyleInHeader)}, nil
}

func (f *AuthorizationCode) Name() string { return shared.FlowAuthorizationCode }

// AuthCodeURL is the consent page the user is sent to.
func (f *AuthorizationCode) AuthCodeURL(state string, showDialog bool) string {
	var opts []oauth2.AuthCodeOption
	if showDialog {
		opts = append(opts, oauth2.SetAuthURLParam("show_dialog", "true"))
	}
	return f.cfg.AuthCodeURL(state, opts...)
}

// Authorize exchanges the code delivered to the redirect URI.
func (f *AuthorizationCode) Authorize(ctx context.Context, code string) (*Token, error) {
	return f.exchange(ctx, code)
}
