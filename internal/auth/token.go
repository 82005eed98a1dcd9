package auth

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
)

// Token is an issued credential. It is never mutated after construction; renewal produces a new *Token.
type Token struct {
	access    string
	expiresAt time.Time
	scopes    ScopeSet
	refresh   string
}

// NewToken builds a token. A zero expiresAt marks a token that must be renewed before first use, which is how a
// persisted refresh value is seeded.
func NewToken(access string, expiresAt time.Time, scopes ScopeSet, refresh string) *Token {
	return &Token{access: access, expiresAt: expiresAt, scopes: scopes, refresh: refresh}
}

// NewRefreshOnly returns an already-expired token that carries only a refresh value.
func NewRefreshOnly(refresh string, scopes ScopeSet) *Token {
	return &Token{scopes: scopes, refresh: refresh}
}

func (t *Token) AccessToken() string { return t.access }
func (t *Token) ExpiresAt() time.Time { return t.expiresAt }
func (t *Token) Scopes() ScopeSet { return t.scopes }
func (t *Token) RefreshToken() string { return t.refresh }
func (t *Token) HasRefresh() bool { return t.refresh != "" }
func (t *Token) HasAccess() bool { return t.access != "" }
func (t *Token) ExpiresIn(now time.Time) time.Duration { return t.expiresAt.Sub(now) }

// ValidAt reports whether the token may be presented at now.
func (t *Token) ValidAt(now time.Time) bool {
	return t != nil && t.access != "" && now.Before(t.expiresAt)
}

// ValidFor reports whether the token stays valid for at least margin past now.
func (t *Token) ValidFor(now time.Time, margin time.Duration) bool {
	return t.ValidAt(now.Add(margin))
}

// WithRefresh returns a copy of t carrying refresh.
func (t *Token) WithRefresh(refresh string) *Token {
	c := *t
	c.refresh = refresh
	return &c
}

func (t *Token) String() string {
	return fmt.Sprintf("Token{access=%s expires=%s scopes=%q refresh=%t}",
		shared.Redact(t.access), t.expiresAt.Format(time.RFC3339), t.scopes.String(), t.HasRefresh())
}

type tokenJSON struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

func (t *Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(tokenJSON{
		AccessToken:  t.access,
		ExpiresAt:    t.expiresAt,
		Scope:        t.scopes.String(),
		RefreshToken: t.refresh,
	})
}

func (t *Token) UnmarshalJSON(data []byte) error {
	var raw tokenJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: token: %v", shared.ErrDeserialize, err)
	}
	*t = Token{
		access:    raw.AccessToken,
		expiresAt: raw.ExpiresAt,
		scopes:    ParseScopes(raw.Scope),
		refresh:   raw.RefreshToken,
	}
	return nil
}

// ScopeSet is an immutable set of OAuth scopes.
type ScopeSet struct {
	m map[string]struct{}
}

// NewScopeSet builds a set from individual scopes, ignoring blanks and duplicates.
func NewScopeSet(scopes ...string) ScopeSet {
	m := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			m[s] = struct{}{}
		}
	}
	return ScopeSet{m: m}
}

// ParseScopes parses the space separated form used by the accounts service.
func ParseScopes(s string) ScopeSet {
	return NewScopeSet(strings.Fields(s)...)
}

func (s ScopeSet) Len() int { return len(s.m) }

func (s ScopeSet) Contains(scope string) bool {
	_, ok := s.m[scope]
	return ok
}

// Missing returns the scopes in required that s lacks, sorted.
func (s ScopeSet) Missing(required ...string) []string {
	var missing []string
	for _, r := range required {
		if r != "" && !s.Contains(r) && !slices.Contains(missing, r) {
			missing = append(missing, r)
		}
	}
	slices.Sort(missing)
	return missing
}

// Intersect returns the scopes present in both sets.
func (s ScopeSet) Intersect(other ScopeSet) ScopeSet {
	m := make(map[string]struct{})
	for k := range s.m {
		if other.Contains(k) {
			m[k] = struct{}{}
		}
	}
	return ScopeSet{m: m}
}

// Strings returns the scopes sorted.
func (s ScopeSet) Strings() []string {
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s ScopeSet) String() string {
	return strings.Join(s.Strings(), " ")
}

// Identity is the registered application a client acts as.
type Identity struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Validate checks the fields a flow depends on.
func (i Identity) Validate(requireSecret, requireRedirect bool) error {
	if i.ClientID == "" {
		return fmt.Errorf("%w: client id", shared.ErrMissingCredentials)
	}
	if requireSecret && i.ClientSecret == "" {
		return fmt.Errorf("%w: client secret", shared.ErrMissingCredentials)
	}
	if requireRedirect && i.RedirectURI == "" {
		return fmt.Errorf("%w: redirect uri", shared.ErrMissingCredentials)
	}
	return nil
}

// Spotify authorization scopes.
const (
	ScopeUGCImageUpload            = "ugc-image-upload"
	ScopeUserReadPlaybackState     = "user-read-playback-state"
	ScopeUserModifyPlaybackState   = "user-modify-playback-state"
	ScopeUserReadCurrentlyPlaying  = "user-read-currently-playing"
	ScopeAppRemoteControl          = "app-remote-control"
	ScopeStreaming                 = "streaming"
	ScopePlaylistReadPrivate       = "playlist-read-private"
	ScopePlaylistReadCollaborative = "playlist-read-collaborative"
	ScopePlaylistModifyPrivate     = "playlist-modify-private"
	ScopePlaylistModifyPublic      = "playlist-modify-public"
	ScopeUserFollowModify          = "user-follow-modify"
	ScopeUserFollowRead            = "user-follow-read"
	ScopeUserReadPlaybackPosition  = "user-read-playback-position"
	ScopeUserTopRead               = "user-top-read"
	ScopeUserReadRecentlyPlayed    = "user-read-recently-played"
	ScopeUserLibraryModify         = "user-library-modify"
	ScopeUserLibraryRead           = "user-library-read"
	ScopeUserReadEmail             = "user-read-email"
	ScopeUserReadPrivate           = "user-read-private"
)
