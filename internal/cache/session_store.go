package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "student_session:"

// ErrSessionNotFound covers absent and expired sessions alike.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore issues opaque student session tokens backed by Redis.
// Every session carries only the student id; the guard re-loads the
// student row on each request so revoked access takes effect immediately.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

// Create issues a fresh session token for the student.
func (ss *SessionStore) Create(ctx context.Context, studentID uint) (string, error) {
	if ss.client == nil {
		return "", ErrCacheNotAvailable
	}
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	err = ss.client.Set(ctx, sessionPrefix+token, strconv.FormatUint(uint64(studentID), 10), ss.ttl).Err()
	if err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}
	return token, nil
}

// Get resolves a session token and slides its expiry.
func (ss *SessionStore) Get(ctx context.Context, token string) (uint, error) {
	if ss.client == nil {
		return 0, ErrCacheNotAvailable
	}
	val, err := ss.client.Get(ctx, sessionPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("session get: %w", err)
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session entry: %w", err)
	}
	ss.client.Expire(ctx, sessionPrefix+token, ss.ttl)
	return uint(id), nil
}

// Delete invalidates a session. Deleting an absent session is not an error.
func (ss *SessionStore) Delete(ctx context.Context, token string) error {
	if ss.client == nil {
		return ErrCacheNotAvailable
	}
	if err := ss.client.Del(ctx, sessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
