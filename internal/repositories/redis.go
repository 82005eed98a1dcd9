package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/spotkit/internal/auth"
	"github.com/desertthunder/spotkit/internal/shared"
)

// DefaultRedisPrefix namespaces credential keys.
const DefaultRedisPrefix = "spotkit:credentials:"

// RedisCredentialStore implements auth.Store on Redis. Values are the token's JSON plus the grant that issued it.
type RedisCredentialStore struct {
	client redis.UniversalClient
	prefix string
	flow   string
}

type redisCredential struct {
	Flow  string      `json:"flow"`
	Token *auth.Token `json:"token"`
}

func NewRedisCredentialStore(client redis.UniversalClient, prefix, flow string) *RedisCredentialStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCredentialStore{client: client, prefix: prefix, flow: flow}
}

func (s *RedisCredentialStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisCredentialStore) Load(ctx context.Context, key string) (*auth.Token, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialsNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %s: %w", key, err)
	}

	var stored redisCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: credential %s: %v", shared.ErrDeserialize, key, err)
	}
	if stored.Token == nil {
		return nil, fmt.Errorf("%w: credential %s has no token", shared.ErrDeserialize, key)
	}
	return stored.Token, nil
}

// Save stores tok without expiry: the refresh value outlives the access token.
func (s *RedisCredentialStore) Save(ctx context.Context, key string, tok *auth.Token) error {
	data, err := json.Marshal(redisCredential{Flow: s.flow, Token: tok})
	if err != nil {
		return fmt.Errorf("failed to encode credential %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write credential %s: %w", key, err)
	}
	return nil
}

func (s *RedisCredentialStore) Delete(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialsNotFound, key)
	}
	return nil
}
