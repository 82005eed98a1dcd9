package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/server"
	"github.com/desertthunder/spotkit/internal/services"
	"github.com/desertthunder/spotkit/internal/shared"
)

// AuthLogin runs the interactive authorization: it serves the redirect URI locally, sends the user to Spotify's
// consent page and exchanges the returned code. The resulting token is persisted by the session's store.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	flow := ""
	if cmd.Bool("pkce") {
		flow = shared.FlowPKCE
	}

	s, err := r.openSession(ctx, flow)
	if err != nil {
		return err
	}
	defer s.Close()

	redirectURI := r.config.Credentials.Spotify.RedirectURI
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("%w: redirect uri %q: %v", shared.ErrInvalidConfig, redirectURI, err)
	}

	consent := s.BeginAuthorization(cmd.Bool("show-dialog"))
	handler := server.NewOAuthHandler(u.Path, consent.State, func(ctx context.Context, code string) error {
		_, err := s.CompleteAuthorization(ctx, consent, code)
		return err
	})

	srv, err := server.NewCallbackServer(redirectURI, handler, r.logger)
	if err != nil {
		return err
	}

	r.logger.Info("starting authorization", "flow", s.FlowName(), "callback", srv.Addr())
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize spotkit:\n\n%s\n\n", consent.URL)
	} else if err := r.openBrowser(consent.URL); err != nil {
		r.logger.Warn("could not open a browser", "err", err)
		r.writePlain("Open this URL to authorize spotkit:\n\n%s\n\n", consent.URL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.callbackTimeout)
	defer cancel()
	if err := srv.Wait(waitCtx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	tok := s.Tokens().Current()
	r.logger.Info("authorization complete", "key", s.Tokens().StoreKey(), "token", tok)

	r.writePlain("%s\n", r.palette.OK("Logged in with the "+s.FlowName()+" flow"))
	if tok != nil {
		r.writePlain("%s\n", r.palette.Field("Scopes", tok.Scopes().String()))
	}
	if r.config.Storage.Backend == shared.StorageNone || r.config.Storage.Backend == "" {
		r.writePlain("%s\n", r.palette.Warn("storage.backend is none; this login is not kept"))
	}
	return nil
}

type authStatus struct {
	Flow      string    `json:"flow"`
	Key       string    `json:"key"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Valid     bool      `json:"valid"`
	Refresh   string    `json:"refresh_token,omitempty"`
	User      string    `json:"user,omitempty"`
	Product   string    `json:"product,omitempty"`
}

// AuthStatus shows the stored login. The profile lookup renews the access token when needed.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := r.requireSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	status := authStatus{Flow: s.FlowName(), Key: s.Tokens().StoreKey()}

	user, err := services.NewSpotifyService(s).CurrentUser(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch profile", "err", err)
	} else {
		status.User = user.DisplayName
		if status.User == "" {
			status.User = user.ID
		}
		status.Product = user.Product
	}

	if tok := s.Tokens().Current(); tok != nil {
		status.Scopes = tok.Scopes().Strings()
		status.ExpiresAt = tok.ExpiresAt()
		status.Valid = tok.ValidAt(time.Now())
		if tok.HasRefresh() {
			status.Refresh = shared.Redact(tok.RefreshToken())
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("Spotify Login")
	if status.User != "" {
		r.writePlain("%s\n", r.palette.Field("User", status.User))
		r.writePlain("%s\n", r.palette.Field("Product", status.Product))
	}
	r.writePlain("%s\n", r.palette.Field("Flow", status.Flow))
	r.writePlain("%s\n", r.palette.Field("Scopes", strings.Join(status.Scopes, " ")))
	if status.Valid {
		r.writePlain("%s\n", r.palette.Field("Expires", status.ExpiresAt.Local().Format(time.RFC1123)))
	} else {
		r.writePlain("%s\n", r.palette.Field("Access token", "expired (renewed on next request)"))
	}
	if status.Refresh != "" {
		r.writePlain("%s\n", r.palette.Field("Refresh token", status.Refresh))
	}
	return nil
}

// AuthLogout deletes the stored login for the configured flow.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, "")
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Tokens().Clear(ctx); err != nil {
		return fmt.Errorf("failed to delete stored credentials: %w", err)
	}
	r.logger.Info("stored credentials deleted", "key", s.Tokens().StoreKey())
	return r.writePlain("%s\n", r.palette.OK("Logged out"))
}
