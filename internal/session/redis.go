package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

const (
	sessionKeyPrefix = "tariff:sess:"
	usageKeyPrefix   = "tariff:usage:"
)

// RedisStore implements SessionStore on Redis. It is the Pro tier store:
// sessions survive process restarts and are shared across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store and verifies the
// connection before returning.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// GetSession returns the live session for key, or nil if absent. Redis
// expiry handles the TTL, so absence and expiry look the same here.
func (s *RedisStore) GetSession(ctx context.Context, key string) (*domain.DisambiguationSession, error) {
	if key == "" {
		return nil, fmt.Errorf("session key is required")
	}

	data, err := s.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess domain.DisambiguationSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// PutSession stores a session with the given TTL.
func (s *RedisStore) PutSession(ctx context.Context, key string, sess *domain.DisambiguationSession, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("session key is required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.client.Set(ctx, sessionKeyPrefix+key, data, ttl).Err()
}

// DeleteSession removes a session.
func (s *RedisStore) DeleteSession(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key is required")
	}
	return s.client.Del(ctx, sessionKeyPrefix+key).Err()
}

// IncrementUsage atomically increments a usage counter using a Lua script
// so the window TTL is set only on the first increment.
func (s *RedisStore) IncrementUsage(ctx context.Context, key string, window time.Duration) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("counter key is required")
	}

	script := redis.NewScript(`
		local current = redis.call('INCR', KEYS[1])
		if current == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return current
	`)

	result, err := script.Run(ctx, s.client, []string{usageKeyPrefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return result, nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
