// Package session provides Redis-backed auth session storage. Sessions are
// minted by the upstream auth service at login; this backend resolves
// bearer tokens to user ids and keeps active sessions alive.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 24 * time.Hour
)

// Session represents an authenticated user session stored in Redis.
type Session struct {
	Token      string `redis:"token"`
	UserID     string `redis:"user_id"`
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages session state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// Create stores a new session for the given user with a 24h TTL.
func (s *Store) Create(ctx context.Context, token, userID string) error {
	key := SessionPrefix + token
	now := time.Now().Unix()

	session := map[string]interface{}{
		"token":       token,
		"user_id":     userID,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session by bearer token. Returns nil if not found.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	key := SessionPrefix + token
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.UserID == "" {
		return nil, nil // not found
	}
	return &session, nil
}

// Touch refreshes a session's last-active timestamp and TTL.
func (s *Store) Touch(ctx context.Context, token string) error {
	key := SessionPrefix + token
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, token string) error {
	key := SessionPrefix + token
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
