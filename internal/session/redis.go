package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/redisclient"
)

// RedisStore keeps each session in a Redis hash
type RedisStore struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store with a sliding ttl
func NewRedisStore(client *redisclient.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load reads the session hash; a missing hash yields a fresh session
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	values, version, err := r.client.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromValues(id, version, values), nil
}

// Save writes a dirty session with a compare-and-set on its version. Clean
// sessions only have their ttl extended.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if !s.Dirty() && s.Version > 0 {
		if _, err := r.client.TouchSession(ctx, s.ID, r.ttl); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	}

	version, err := r.client.SaveSession(ctx, s.ID, s.Version, s.Values(), r.ttl)
	if errors.Is(err, redisclient.ErrVersionMismatch) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	s.markClean(version)
	return nil
}

// Destroy removes the session hash
func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	return r.client.DeleteSession(ctx, id)
}
