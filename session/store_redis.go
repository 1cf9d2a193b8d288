package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisTimeout = 2 * time.Second

// RedisStore keeps the credential in Redis so several processes or hosts
// can share one session.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	profile string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisStore stores tokens under "<prefix>:<profile>:<key>".
func NewRedisStore(client *redis.Client, prefix, profile string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "subtrackr"
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		profile: profile,
		timeout: defaultRedisTimeout,
		logger:  logger,
	}
}

func (r *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, r.profile, name)
}

func (r *RedisStore) Get() (Credential, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	vals, err := r.client.MGet(ctx, r.key(KeyAccessToken), r.key(KeyRefreshToken)).Result()
	if err != nil {
		r.logger.Warn("redis session read failed, treating as logged out", zap.Error(err))
		return Credential{}, false
	}

	var c Credential
	if s, ok := vals[0].(string); ok {
		c.AccessToken = s
	}
	if s, ok := vals[1].(string); ok {
		c.RefreshToken = s
	}
	return c, !c.IsZero()
}

func (r *RedisStore) SetAccess(token string) error {
	return r.set(KeyAccessToken, token)
}

func (r *RedisStore) SetRefresh(token string) error {
	return r.set(KeyRefreshToken, token)
}

func (r *RedisStore) set(name, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", name, err)
	}
	return nil
}

func (r *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(KeyAccessToken), r.key(KeyRefreshToken)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
