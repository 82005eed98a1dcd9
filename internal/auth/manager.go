package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/spotkit/internal/clock"
	"github.com/desertthunder/spotkit/internal/shared"
)

const (
	DefaultRefreshMargin  = 30 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
)

const renewKey = "renew"

// Store persists tokens between runs. Load returns [shared.ErrCredentialsNotFound] when nothing is stored under key.
type Store interface {
	Load(ctx context.Context, key string) (*Token, error)
	Save(ctx context.Context, key string, tok *Token) error
	Delete(ctx context.Context, key string) error
}

// ManagerOptions configures a [Manager]. Zero values select the defaults.
type ManagerOptions struct {
	Clock          clock.Clock
	Margin         time.Duration
	RefreshTimeout time.Duration
	Store          Store
	StoreKey       string
	Logger         *log.Logger
}

// Manager owns the current token of one client and renews it through its [Flow].
//
// Reads are lock free. Renewals are single-flight: however many callers find the token expired, one Renew runs
// and all of them receive its result.
type Manager struct {
	flow           Flow
	clock          clock.Clock
	margin         time.Duration
	refreshTimeout time.Duration
	store          Store
	storeKey       string
	logger         *log.Logger

	current  atomic.Pointer[Token]
	group    singleflight.Group
	renewals atomic.Int64
}

func NewManager(flow Flow, opts ManagerOptions) *Manager {
	m := &Manager{
		flow:           flow,
		clock:          opts.Clock,
		margin:         opts.Margin,
		refreshTimeout: opts.RefreshTimeout,
		store:          opts.Store,
		storeKey:       opts.StoreKey,
		logger:         opts.Logger,
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.margin <= 0 {
		m.margin = DefaultRefreshMargin
	}
	if m.refreshTimeout <= 0 {
		m.refreshTimeout = DefaultRefreshTimeout
	}
	if m.logger == nil {
		m.logger = shared.NopLogger()
	}
	if m.storeKey == "" {
		m.storeKey = flow.Name()
	}
	return m
}

// Flow returns the grant the manager renews through.
func (m *Manager) Flow() Flow { return m.flow }

// StoreKey is the key tokens are persisted under.
func (m *Manager) StoreKey() string { return m.storeKey }

// Token returns a token valid for at least the refresh margin, renewing it first when needed.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	if tok := m.current.Load(); tok.ValidFor(m.clock.Now(), m.margin) {
		return tok, nil
	}
	return m.renew(ctx, nil)
}

// ForceRefresh replaces stale, the token the service just rejected.
//
// When another caller has already replaced it, the replacement is returned without a network call.
func (m *Manager) ForceRefresh(ctx context.Context, stale *Token) (*Token, error) {
	if tok := m.current.Load(); tok != stale && tok.ValidFor(m.clock.Now(), m.margin) {
		return tok, nil
	}
	return m.renew(ctx, stale)
}

// renew joins or starts the single renewal flight.
//
// The flight is detached from the caller's cancellation so a caller giving up does not fail everyone else waiting
// on it; it is bounded by the refresh timeout instead.
func (m *Manager) renew(ctx context.Context, stale *Token) (*Token, error) {
	ch := m.group.DoChan(renewKey, func() (any, error) {
		cur := m.current.Load()
		if cur != stale && cur.ValidFor(m.clock.Now(), m.margin) {
			return cur, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()

		m.renewals.Add(1)
		next, err := m.flow.Renew(fctx, cur)
		if err != nil {
			m.logger.Debug("token renewal failed", "flow", m.flow.Name(), "err", err)
			return nil, err
		}
		if !next.ValidAt(m.clock.Now()) {
			return nil, &shared.AuthorizationError{Description: "renewed token is already expired", Err: shared.ErrTokenExpired}
		}

		m.current.Store(next)
		m.logger.Debug("token renewed", "flow", m.flow.Name(), "expires_at", next.ExpiresAt())
		m.persist(fctx, next)
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Renewals counts renewal attempts made through the flow.
func (m *Manager) Renewals() int64 { return m.renewals.Load() }

// Seed installs a previously obtained token without persisting it. A refresh-only token forces a renewal on the
// first call to Token.
func (m *Manager) Seed(tok *Token) {
	m.current.Store(tok)
}

// Install replaces the current token with one obtained outside the manager, such as an interactive authorization,
// and persists it.
func (m *Manager) Install(ctx context.Context, tok *Token) {
	m.current.Store(tok)
	m.persist(ctx, tok)
}

// Current is the held token, which may be expired or nil.
func (m *Manager) Current() *Token { return m.current.Load() }

// Scopes are the scopes requests may rely on: those granted to the held token, or the requested scopes before any
// token with known scopes exists.
func (m *Manager) Scopes() ScopeSet {
	if tok := m.current.Load(); tok != nil && (tok.HasAccess() || tok.Scopes().Len() > 0) {
		return tok.Scopes()
	}
	return m.flow.Requested()
}

// Restore seeds the manager from its store. It reports false when nothing was stored.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}

	tok, err := m.store.Load(ctx, m.storeKey)
	if errors.Is(err, shared.ErrCredentialsNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.Seed(tok)
	return true, nil
}

// Clear forgets the held token and removes it from the store.
func (m *Manager) Clear(ctx context.Context) error {
	m.current.Store(nil)
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, m.storeKey); err != nil && !errors.Is(err, shared.ErrCredentialsNotFound) {
		return err
	}
	return nil
}

// persist saves tok. Failures are logged, not returned: the token is already usable in memory.
func (m *Manager) persist(ctx context.Context, tok *Token) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, m.storeKey, tok); err != nil {
		m.logger.Warn("failed to persist token", "key", m.storeKey, "err", err)
	}
}
