package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/save_session.lua
var saveSessionScript string

//go:embed scripts/touch_session.lua
var touchSessionScript string

// VersionField is the hash field holding a session's write version
const VersionField = "__version"

// ErrVersionMismatch is returned when a session hash was written since it was loaded
var ErrVersionMismatch = errors.New("session version mismatch")

type Client struct {
	rdb         *redis.Client
	saveScript  *redis.Script
	touchScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:         rdb,
		saveScript:  redis.NewScript(saveSessionScript),
		touchScript: redis.NewScript(touchSessionScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// LoadSession reads a session hash. A missing session yields no values and version 0.
func (c *Client) LoadSession(ctx context.Context, id string) (map[string]string, int64, error) {
	result, err := c.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load session: %w", err)
	}

	var version int64
	if raw, ok := result[VersionField]; ok {
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("corrupt session version %q: %w", raw, err)
		}
		delete(result, VersionField)
	}

	return result, version, nil
}

// SaveSession atomically replaces a session hash if its version still equals
// expectedVersion, and returns the new version
func (c *Client) SaveSession(ctx context.Context, id string, expectedVersion int64, values map[string]string, ttl time.Duration) (int64, error) {
	args := make([]interface{}, 0, 2+len(values)*2)
	args = append(args, expectedVersion, int64(ttl.Seconds()))
	for field, value := range values {
		if field == VersionField {
			continue
		}
		args = append(args, field, value)
	}

	result, err := c.saveScript.Run(ctx, c.rdb, []string{sessionKey(id)}, args...).Result()
	if err != nil {
		return 0, fmt.Errorf("save session script failed: %w", err)
	}

	version, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	if version < 0 {
		return 0, ErrVersionMismatch
	}

	return version, nil
}

// TouchSession extends a session's TTL. It reports false when the session does not exist.
func (c *Client) TouchSession(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	result, err := c.touchScript.Run(ctx, c.rdb, []string{sessionKey(id)}, int64(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("touch session script failed: %w", err)
	}
	n, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return n == 1, nil
}

// DeleteSession removes a session hash
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, sessionKey(id)).Err()
}

// ClaimIdempotencyKey stores an idempotency key if absent. It reports false
// when the key was already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Result()
}

// ReleaseIdempotencyKey drops a claimed key so the request can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
