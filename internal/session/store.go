// Package session implements the Redis-backed credential store: per-user
// access and refresh tokens plus the cached staff-authorization flag, all
// TTL-bounded. Key layout is shared with the backend's cache, so the
// prefixes here are part of the external contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	accessPrefix  = "access_token:"
	refreshPrefix = "refresh_token:"
	staffPrefix   = "is_staff:"
)

// Store wraps a Redis client for credential and flag storage.
type Store struct {
	rdb *redis.Client
}

var (
	connectOnce sync.Once
	shared      *Store
	connectErr  error
)

// Connect initializes the process-wide store exactly once and returns the
// shared handle; later calls return the same handle (or the original
// error). Callers receive the handle explicitly and pass it on — there is
// no hidden global beyond the one-time guard.
func Connect(ctx context.Context, url string) (*Store, error) {
	connectOnce.Do(func() {
		opts, err := redis.ParseURL(url)
		if err != nil {
			connectErr = fmt.Errorf("parsing redis url: %w", err)
			return
		}

		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			connectErr = fmt.Errorf("pinging redis: %w", err)
			return
		}

		shared = &Store{rdb: rdb}
	})

	return shared, connectErr
}

// NewStore wraps an existing client. Useful for tests that need an
// isolated store independent of the process-wide handle.
func NewStore(client *redis.Client) *Store {
	return &Store{rdb: client}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for collaborators that share
// the connection pool (e.g. conversation history).
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// PutAccessToken stores the access token for a principal, overwriting any
// previous value and resetting the TTL.
func (s *Store) PutAccessToken(ctx context.Context, principal, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, accessPrefix+principal, token, ttl).Err()
}

// AccessToken returns the stored access token, reporting presence.
func (s *Store) AccessToken(ctx context.Context, principal string) (string, bool, error) {
	return s.get(ctx, accessPrefix+principal)
}

// PutRefreshToken stores the refresh token for a principal.
func (s *Store) PutRefreshToken(ctx context.Context, principal, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshPrefix+principal, token, ttl).Err()
}

// RefreshToken returns the stored refresh token, reporting presence.
func (s *Store) RefreshToken(ctx context.Context, principal string) (string, bool, error) {
	return s.get(ctx, refreshPrefix+principal)
}

// PutStaffFlag caches the staff-authorization answer for a principal with
// its own TTL, independent of token lifetimes.
func (s *Store) PutStaffFlag(ctx context.Context, principal string, isStaff bool, ttl time.Duration) error {
	value := "false"
	if isStaff {
		value = "true"
	}

	return s.rdb.Set(ctx, staffPrefix+principal, value, ttl).Err()
}

// StaffFlag returns the cached staff flag, reporting presence. Expiry in
// Redis reads as absence, so a stale flag can never be returned.
func (s *Store) StaffFlag(ctx context.Context, principal string) (bool, bool, error) {
	value, ok, err := s.get(ctx, staffPrefix+principal)
	if err != nil || !ok {
		return false, ok, err
	}

	return value == "true", true, nil
}

// DeleteStaffFlag evicts the cached staff flag.
func (s *Store) DeleteStaffFlag(ctx context.Context, principal string) error {
	return s.rdb.Del(ctx, staffPrefix+principal).Err()
}

// DeleteTokens removes the access and refresh tokens for a principal.
func (s *Store) DeleteTokens(ctx context.Context, principal string) error {
	return s.rdb.Del(ctx, accessPrefix+principal, refreshPrefix+principal).Err()
}

// PurgeAll removes every record for a principal in a single DEL. The key
// set is enumerated from the fixed naming scheme, never discovered by a
// keyspace scan: principal ids can be substrings of each other, and a
// wildcard match would take unrelated principals' records with it.
func (s *Store) PurgeAll(ctx context.Context, principal string) error {
	return s.rdb.Del(ctx,
		accessPrefix+principal,
		refreshPrefix+principal,
		staffPrefix+principal,
	).Err()
}

// get reads a key, translating redis.Nil into plain absence.
func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	return value, true, nil
}
