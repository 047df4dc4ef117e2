package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/addisbazaar/platform/internal/domain"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

const keyPrefix = "session:"

// SessionCache caches issued token pairs per user in Redis. It is an
// availability optimization only; the refresh token table remains the source
// of truth. A terminal network failure in the login path clears the entry,
// since a cached session may then be stale.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a Redis-backed session cache.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the cached session for an identity key.
func (c *SessionCache) Get(ctx context.Context, key string) (*domain.Session, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

// Save persists a session to Redis with the configured TTL.
func (c *SessionCache) Save(ctx context.Context, key string, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Clear removes the cached session for a user.
func (c *SessionCache) Clear(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}

	return nil
}
