package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
)

// Credential is a persisted Spotify token, stored under a key naming the grant and client it belongs to.
type Credential struct {
	id           string
	key          string
	flow         string
	accessToken  string
	refreshToken string
	scopes       []string
	expiresAt    time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// NewCredential creates a credential timestamped now. The ID is assigned on insert.
func NewCredential(key, flow, accessToken, refreshToken string, scopes []string, expiresAt time.Time) *Credential {
	now := time.Now().UTC()
	return &Credential{
		key:          key,
		flow:         flow,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		scopes:       scopes,
		expiresAt:    expiresAt,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (c *Credential) ID() string { return c.id }
func (c *Credential) Key() string { return c.key }
func (c *Credential) Flow() string { return c.flow }
func (c *Credential) AccessToken() string { return c.accessToken }
func (c *Credential) RefreshToken() string { return c.refreshToken }
func (c *Credential) Scopes() []string { return c.scopes }
func (c *Credential) ExpiresAt() time.Time { return c.expiresAt }
func (c *Credential) CreatedAt() time.Time { return c.createdAt }
func (c *Credential) UpdatedAt() time.Time { return c.updatedAt }

// ScopeString is the space separated scope list as stored.
func (c *Credential) ScopeString() string { return strings.Join(c.scopes, " ") }

func (c *Credential) SetID(id string) { c.id = id }
func (c *Credential) SetCreatedAt(t time.Time) { c.createdAt = t }
func (c *Credential) SetUpdatedAt(t time.Time) { c.updatedAt = t }
func (c *Credential) SetAccessToken(v string) { c.accessToken = v }
func (c *Credential) SetRefreshToken(v string) { c.refreshToken = v }
func (c *Credential) SetExpiresAt(t time.Time) { c.expiresAt = t }
func (c *Credential) SetScopes(scopes []string) { c.scopes = scopes }

// Validate requires a key and at least one of the token values.
func (c *Credential) Validate() error {
	if strings.TrimSpace(c.key) == "" {
		return fmt.Errorf("%w: credential key", shared.ErrMissingArgument)
	}
	if c.accessToken == "" && c.refreshToken == "" {
		return fmt.Errorf("%w: credential %s carries no token", shared.ErrInvalidInput, c.key)
	}
	return nil
}
