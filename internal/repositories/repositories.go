package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/models"
	"github.com/desertthunder/spotkit/internal/shared"
)

// credentialFromToken snapshots tok for persistence.
func credentialFromToken(key, flow string, tok *auth.Token) *models.Credential {
	return models.NewCredential(key, flow, tok.AccessToken(), tok.RefreshToken(), tok.Scopes().Strings(), tok.ExpiresAt())
}

// tokenFromCredential rebuilds the token a credential was saved from.
func tokenFromCredential(c *models.Credential) *auth.Token {
	return auth.NewToken(c.AccessToken(), c.ExpiresAt(), auth.NewScopeSet(c.Scopes()...), c.RefreshToken())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewStore opens the credential backend selected by cfg.Storage.
//
// The returned closer releases the backend's connections. With the "none" backend the store is nil and the
// token manager keeps tokens in memory only.
func NewStore(ctx context.Context, cfg *shared.Config, flow string) (auth.Store, io.Closer, error) {
	switch cfg.Storage.Backend {
	case "", shared.StorageNone:
		return nil, nopCloser{}, nil

	case shared.StorageSQLite:
		db, err := shared.OpenMigrated(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		return NewCredentialStore(NewCredentialRepository(db), flow), db, nil

	case shared.StorageRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Storage.RedisAddr, err)
		}
		return NewRedisCredentialStore(rdb, cfg.Storage.RedisPrefix, flow), rdb, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, cfg.Storage.Backend)
	}
}

// nullTime stores the zero instant as NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
