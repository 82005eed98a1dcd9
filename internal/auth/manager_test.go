package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/spotkit/internal/shared"
	tu "github.com/desertthunder/spotkit/internal/testing"
)

// countingFlow issues numbered tokens after an optional delay.
type countingFlow struct {
	clock    *tu.FakeClock
	delay    time.Duration
	lifetime time.Duration
	err      error
	scopes   ScopeSet
	calls    atomic.Int32
	release  chan struct{}
}

func (f *countingFlow) Name() string { return "counting" }
func (f *countingFlow) Requested() ScopeSet { return f.scopes }

func (f *countingFlow) Renew(ctx context.Context, current *Token) (*Token, error) {
	n := f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	refresh := "r"
	if current != nil && current.HasRefresh() {
		refresh = current.RefreshToken()
	}
	return NewToken(fmt.Sprintf("access-%d", n), f.clock.Now().Add(f.lifetime), f.scopes, refresh), nil
}

func newCountingFlow() *countingFlow {
	return &countingFlow{clock: tu.NewFakeClock(epoch), lifetime: time.Hour, scopes: NewScopeSet("read")}
}

// memoryStore is an in-process [Store].
type memoryStore struct {
	mu      sync.Mutex
	tokens  map[string]*Token
	saveErr error
	saves   int
}

func newMemoryStore() *memoryStore { return &memoryStore{tokens: map[string]*Token{}} }

func (s *memoryStore) Load(_ context.Context, key string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok {
		return nil, shared.ErrCredentialsNotFound
	}
	return tok, nil
}

func (s *memoryStore) Save(_ context.Context, key string, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.tokens[key] = tok
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

func TestManagerToken(t *testing.T) {
	t.Run("concurrent callers share one renewal", func(t *testing.T) {
		flow := newCountingFlow()
		flow.delay = 50 * time.Millisecond
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		m.Seed(NewToken("expired", epoch.Add(-time.Minute), flow.scopes, "r"))

		const n = 16
		var wg sync.WaitGroup
		start := make(chan struct{})
		results := make([]*Token, n)
		errs := make([]error, n)

		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = m.Token(context.Background())
			}(i)
		}
		close(start)
		wg.Wait()

		if got := flow.calls.Load(); got != 1 {
			t.Fatalf("expected exactly 1 renewal, got %d", got)
		}
		for i := range n {
			if errs[i] != nil {
				t.Fatalf("caller %d failed: %v", i, errs[i])
			}
			if results[i] != results[0] {
				t.Errorf("caller %d received a different token", i)
			}
		}
	})

	t.Run("seeded future token needs no network", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		seed := NewToken("seeded", epoch.Add(time.Hour), flow.scopes, "r")
		m.Seed(seed)

		tok, err := m.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok != seed {
			t.Error("expected the seeded token")
		}
		if flow.calls.Load() != 0 {
			t.Errorf("expected 0 renewals, got %d", flow.calls.Load())
		}
	})

	t.Run("refresh-only seed renews on first use", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		m.Seed(NewRefreshOnly("persisted", NewScopeSet()))

		tok, err := m.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.RefreshToken() != "persisted" {
			t.Errorf("expected the seeded refresh value to be used, got %s", tok.RefreshToken())
		}
		if flow.calls.Load() != 1 {
			t.Errorf("expected 1 renewal, got %d", flow.calls.Load())
		}
	})

	t.Run("renews inside the margin", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Margin: 30 * time.Second})
		m.Seed(NewToken("soon", epoch.Add(10*time.Second), flow.scopes, "r"))

		tok, err := m.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken() == "soon" {
			t.Error("a token inside the refresh margin must not be returned")
		}
	})

	t.Run("never returns an expired token", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})

		for range 5 {
			tok, err := m.Token(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tok.ValidAt(flow.clock.Now()) {
				t.Fatal("received an expired token")
			}
			flow.clock.Advance(2 * time.Hour)
		}
		if flow.calls.Load() != 5 {
			t.Errorf("expected a renewal per expiry, got %d", flow.calls.Load())
		}
	})

	t.Run("renewal errors reach every waiter and nothing stale is returned", func(t *testing.T) {
		flow := newCountingFlow()
		flow.err = &shared.AuthorizationError{Code: "invalid_grant"}
		flow.release = make(chan struct{})
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		stale := NewToken("stale", epoch.Add(-time.Second), flow.scopes, "r")
		m.Seed(stale)

		const n = 4
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var tok *Token
				tok, errs[i] = m.Token(context.Background())
				if tok != nil {
					t.Errorf("caller %d received a token alongside the error", i)
				}
			}(i)
		}

		time.Sleep(20 * time.Millisecond)
		close(flow.release)
		wg.Wait()

		for i, err := range errs {
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("caller %d: expected ErrAuthFailed, got %v", i, err)
			}
		}
		if m.Current() != stale {
			t.Error("a failed renewal must not replace the held token")
		}
	})

	t.Run("an abandoning caller does not cancel the shared renewal", func(t *testing.T) {
		flow := newCountingFlow()
		flow.release = make(chan struct{})
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})

		ctx, cancel := context.WithCancel(context.Background())
		abandoned := make(chan error, 1)
		go func() {
			_, err := m.Token(ctx)
			abandoned <- err
		}()

		for flow.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
		if err := <-abandoned; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}

		waiter := make(chan *Token, 1)
		go func() {
			tok, _ := m.Token(context.Background())
			waiter <- tok
		}()
		close(flow.release)

		tok := <-waiter
		if tok == nil || tok.AccessToken() != "access-1" {
			t.Fatalf("expected the original renewal to complete, got %v", tok)
		}
		if flow.calls.Load() != 1 {
			t.Errorf("expected 1 renewal, got %d", flow.calls.Load())
		}
	})
}

func TestManagerForceRefresh(t *testing.T) {
	t.Run("replaces the rejected token", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		rejected := NewToken("rejected", epoch.Add(time.Hour), flow.scopes, "r")
		m.Seed(rejected)

		tok, err := m.ForceRefresh(context.Background(), rejected)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok == rejected || flow.calls.Load() != 1 {
			t.Errorf("expected one renewal replacing the token, got %d renewals", flow.calls.Load())
		}
	})

	t.Run("already replaced token is reused", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock})
		rejected := NewToken("rejected", epoch.Add(time.Hour), flow.scopes, "r")
		m.Seed(rejected)

		first, _ := m.ForceRefresh(context.Background(), rejected)
		second, err := m.ForceRefresh(context.Background(), rejected)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second {
			t.Error("expected the replacement to be shared")
		}
		if flow.calls.Load() != 1 {
			t.Errorf("expected 1 renewal, got %d", flow.calls.Load())
		}
	})
}

func TestManagerStore(t *testing.T) {
	t.Run("renewed tokens are persisted", func(t *testing.T) {
		flow := newCountingFlow()
		store := newMemoryStore()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Store: store, StoreKey: "user"})

		tok, err := m.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		saved, err := store.Load(context.Background(), "user")
		if err != nil || saved != tok {
			t.Errorf("expected the renewed token to be saved, got %v (%v)", saved, err)
		}
	})

	t.Run("save failures do not fail the call", func(t *testing.T) {
		flow := newCountingFlow()
		store := newMemoryStore()
		store.saveErr = errors.New("disk full")
		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Store: store})

		if _, err := m.Token(context.Background()); err != nil {
			t.Fatalf("expected save failure to be swallowed, got %v", err)
		}
		if store.saves != 1 {
			t.Errorf("expected one save attempt, got %d", store.saves)
		}
	})

	t.Run("Restore seeds from the store", func(t *testing.T) {
		flow := newCountingFlow()
		store := newMemoryStore()
		stored := NewToken("stored", epoch.Add(time.Hour), NewScopeSet("read"), "r")
		store.tokens["counting"] = stored

		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Store: store})
		ok, err := m.Restore(context.Background())
		if err != nil || !ok {
			t.Fatalf("expected a restored token, got %v %v", ok, err)
		}
		tok, _ := m.Token(context.Background())
		if tok != stored || flow.calls.Load() != 0 {
			t.Error("expected the stored token to be used without renewal")
		}
	})

	t.Run("Restore with an empty store", func(t *testing.T) {
		flow := newCountingFlow()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Store: newMemoryStore()})
		if ok, err := m.Restore(context.Background()); ok || err != nil {
			t.Errorf("expected nothing restored, got %v %v", ok, err)
		}
	})

	t.Run("Clear forgets the token", func(t *testing.T) {
		flow := newCountingFlow()
		store := newMemoryStore()
		m := NewManager(flow, ManagerOptions{Clock: flow.clock, Store: store})
		m.Install(context.Background(), NewToken("a", epoch.Add(time.Hour), flow.scopes, "r"))

		if err := m.Clear(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Current() != nil {
			t.Error("expected no current token")
		}
		if _, err := store.Load(context.Background(), "counting"); !errors.Is(err, shared.ErrCredentialsNotFound) {
			t.Errorf("expected the stored token to be deleted, got %v", err)
		}
	})
}

func TestManagerScopes(t *testing.T) {
	flow := newCountingFlow()
	flow.scopes = NewScopeSet("read", "write")
	m := NewManager(flow, ManagerOptions{Clock: flow.clock})

	if got := m.Scopes().String(); got != "read write" {
		t.Errorf("expected requested scopes before any token, got %q", got)
	}

	m.Seed(NewToken("a", epoch.Add(time.Hour), NewScopeSet("read"), ""))
	if got := m.Scopes().String(); got != "read" {
		t.Errorf("expected granted scopes once a token is held, got %q", got)
	}
}

func TestManagerWithAuthorizationCode(t *testing.T) {
	srv, calls := tokenServer(t, func(w http.ResponseWriter, _ url.Values, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600})
	})
	opts := flowOpts(srv)
	flow, err := NewAuthorizationCode(appIdentity, NewScopeSet(ScopeUserReadPrivate), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewManager(flow, ManagerOptions{Clock: opts.Clock})
	m.Seed(NewRefreshOnly("persisted", NewScopeSet()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.Token(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if tok.RefreshToken() != "persisted" {
				t.Errorf("expected the refresh value to be retained, got %s", tok.RefreshToken())
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 token request, got %d", calls.Load())
	}
}
