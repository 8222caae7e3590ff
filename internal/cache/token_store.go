package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token namespaces. Verification and reset tokens never cross: a token
// issued for one flow cannot be presented to the other.
type TokenNamespace string

const (
	NamespaceVerification TokenNamespace = "student_verification_token"
	NamespaceReset        TokenNamespace = "student_password_reset"
)

const (
	// VerificationTTL is the lifetime of an email-verification token.
	VerificationTTL = 24 * time.Hour
	// ResetTTL is the lifetime of a password-reset token.
	ResetTTL = time.Hour

	// consumeLockTTL bounds how long a consumption critical section may
	// hold the per-token lock if its owner dies mid-flight.
	consumeLockTTL = 30 * time.Second
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	// ErrTokenNotFound covers absent, expired and already-consumed tokens
	// alike; callers must not distinguish them.
	ErrTokenNotFound = errors.New("token not found")
)

// TokenStore maps short-lived single-use tokens to student ids in Redis.
//
// Consumption protocol: Acquire the per-token lock, Get, perform the
// guarded database write, then Forget and release. Forget only runs after
// the write commits, so a crash mid-flow leaves the token valid and the
// flow retryable. The lock guarantees two concurrent presentations of the
// same token produce exactly one winner.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// NewToken returns 64 hex characters of fresh randomness.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (ts *TokenStore) key(ns TokenNamespace, token string) string {
	return fmt.Sprintf("%s:%s", ns, token)
}

func (ts *TokenStore) lockKey(ns TokenNamespace, token string) string {
	return fmt.Sprintf("lock:%s:%s", ns, token)
}

// Put stores token -> studentID with the given TTL.
func (ts *TokenStore) Put(ctx context.Context, ns TokenNamespace, token string, studentID uint, ttl time.Duration) error {
	if ts.client == nil {
		return ErrCacheNotAvailable
	}
	return ts.client.Set(ctx, ts.key(ns, token), strconv.FormatUint(uint64(studentID), 10), ttl).Err()
}

// Get resolves a token to a student id without consuming it.
func (ts *TokenStore) Get(ctx context.Context, ns TokenNamespace, token string) (uint, error) {
	if ts.client == nil {
		return 0, ErrCacheNotAvailable
	}
	val, err := ts.client.Get(ctx, ts.key(ns, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrTokenNotFound
		}
		return 0, fmt.Errorf("token get: %w", err)
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt token entry: %w", err)
	}
	return uint(id), nil
}

// Forget invalidates a token. Forgetting an absent token is not an error.
func (ts *TokenStore) Forget(ctx context.Context, ns TokenNamespace, token string) error {
	if ts.client == nil {
		return ErrCacheNotAvailable
	}
	if err := ts.client.Del(ctx, ts.key(ns, token)).Err(); err != nil {
		return fmt.Errorf("token forget: %w", err)
	}
	return nil
}

// AcquireConsume takes the per-token consumption lock. A false return
// means another request is consuming (or just consumed) this token.
func (ts *TokenStore) AcquireConsume(ctx context.Context, ns TokenNamespace, token string) (bool, error) {
	if ts.client == nil {
		return false, ErrCacheNotAvailable
	}
	ok, err := ts.client.SetNX(ctx, ts.lockKey(ns, token), "1", consumeLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("token lock: %w", err)
	}
	return ok, nil
}

// ReleaseConsume drops the consumption lock.
func (ts *TokenStore) ReleaseConsume(ctx context.Context, ns TokenNamespace, token string) {
	if ts.client == nil {
		return
	}
	ts.client.Del(ctx, ts.lockKey(ns, token))
}
