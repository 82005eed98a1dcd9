package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spotkit/internal/shared"
)

// PKCE is the user-delegated grant for public clients. The client secret is never sent; each authorization
// attempt proves possession of a one-time verifier instead.
type PKCE struct {
	userGrant
}

func NewPKCE(id Identity, scopes ScopeSet, opts FlowOptions) (*PKCE, error) {
	if err := id.Validate(false, true); err != nil {
		return nil, err
	}
	id.ClientSecret = ""
	return &PKCE{userGrant: newUserGrant(id, scopes, opts, oauth2.AuthStyleInParams)}, nil
}

func (f *PKCE) Name() string { return shared.FlowPKCE }

// NewVerifier returns a fresh code verifier for one authorization attempt.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the S256 code challenge for verifier.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// AuthCodeURL is the consent page, carrying the S256 challenge for verifier.
func (f *PKCE) AuthCodeURL(state, verifier string) string {
	return f.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Authorize exchanges the code together with the verifier used to build the consent URL.
func (f *PKCE) Authorize(ctx context.Context, code, verifier string) (*Token, error) {
	if verifier == "" {
		return nil, fmt.Errorf("%w: code verifier", shared.ErrMissingArgument)
	}
	return f.exchange(ctx, code, oauth2.VerifierOption(verifier))
}
