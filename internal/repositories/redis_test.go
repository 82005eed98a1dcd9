package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/shared"
)

func setupTestRedis(t *testing.T) (*RedisCredentialStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewRedisCredentialStore(rdb, "", shared.FlowPKCE), mr
}

func TestRedisCredentialStore(t *testing.T) {
	ctx := context.Background()
	tok := auth.NewToken("access-1", expiry, auth.NewScopeSet("user-top-read"), "refresh-1")

	t.Run("round trips a token", func(t *testing.T) {
		store, mr := setupTestRedis(t)

		if err := store.Save(ctx, "pkce:abc", tok); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if !mr.Exists(DefaultRedisPrefix + "pkce:abc") {
			t.Fatal("expected the prefixed key to exist")
		}
		if ttl := mr.TTL(DefaultRedisPrefix + "pkce:abc"); ttl != 0 {
			t.Errorf("expected no TTL, got %v", ttl)
		}

		got, err := store.Load(ctx, "pkce:abc")
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if got.AccessToken() != "access-1" || got.RefreshToken() != "refresh-1" {
			t.Errorf("unexpected token %v", got)
		}
		if !got.ExpiresAt().Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, got.ExpiresAt())
		}
		if !got.Scopes().Contains("user-top-read") {
			t.Errorf("expected scope to survive, got %s", got.Scopes())
		}
	})

	t.Run("missing key", func(t *testing.T) {
		store, _ := setupTestRedis(t)
		if _, err := store.Load(ctx, "nope"); !errors.Is(err, shared.ErrCredentialsNotFound) {
			t.Errorf("expected ErrCredentialsNotFound, got %v", err)
		}
		if err := store.Delete(ctx, "nope"); !errors.Is(err, shared.ErrCredentialsNotFound) {
			t.Errorf("expected ErrCredentialsNotFound, got %v", err)
		}
	})

	t.Run("corrupt value", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		if err := mr.Set(DefaultRedisPrefix+"pkce:abc", "{not json"); err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
		if _, err := store.Load(ctx, "pkce:abc"); !errors.Is(err, shared.ErrDeserialize) {
			t.Errorf("expected ErrDeserialize, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		_ = store.Save(ctx, "pkce:abc", tok)
		if err := store.Delete(ctx, "pkce:abc"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if mr.Exists(DefaultRedisPrefix + "pkce:abc") {
			t.Error("expected key to be gone")
		}
	})

	t.Run("server down", func(t *testing.T) {
		store, mr := setupTestRedis(t)
		mr.Close()

		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Save(ctx, "pkce:abc", tok); err == nil {
			t.Error("expected error when redis is unreachable")
		}
	})
}

func TestNewStoreRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := shared.DefaultConfig()
	cfg.Storage.Backend = shared.StorageRedis
	cfg.Storage.RedisAddr = mr.Addr()
	cfg.Storage.RedisPrefix = "test:"

	store, closer, err := NewStore(context.Background(), cfg, shared.FlowPKCE)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if err := store.Save(context.Background(), "k", auth.NewRefreshOnly("r", auth.NewScopeSet())); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Error("expected the configured prefix to be used")
	}
}
