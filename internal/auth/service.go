// Package auth owns the per-principal credential lifecycle: resolving a
// valid access token (refreshing through the backend when needed), login,
// logout, registration, and the cached staff-authorization gate.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luqta/shopbot/internal/backend"
	"github.com/luqta/shopbot/internal/session"
)

// Config holds the cache lifetimes for stored credentials.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	StaffFlagTTL    time.Duration
}

// Service resolves and maintains credentials for chat principals. A
// principal is the chat user's id rendered as a string.
type Service struct {
	store  *session.Store
	client *backend.AuthClient
	cfg    Config
	logger *slog.Logger
}

// NewService wires the credential store to the backend auth client.
func NewService(store *session.Store, client *backend.AuthClient, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{store: store, client: client, cfg: cfg, logger: logger}
}

// Resolve returns a currently valid access token for the principal, or
// "" when the principal is not authenticated. Not-authenticated is a
// value, not an error: only infrastructure faults (store unreachable)
// surface as errors.
//
// The fast path is a single cache read. When the access token has
// expired but a refresh token survives, the backend refresh runs
// transparently and the rotated pair is stored. A transient refresh
// failure — a network fault or a backend 5xx — leaves the store
// untouched so a later attempt can succeed; only an explicit 4xx
// rejection of the refresh token purges the principal's records, since
// that token will never work again.
func (s *Service) Resolve(ctx context.Context, principal string) (string, error) {
	access, ok, err := s.store.AccessToken(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}

	if ok {
		return access, nil
	}

	refresh, ok, err := s.store.RefreshToken(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("reading refresh token: %w", err)
	}

	if !ok {
		return "", nil
	}

	pair, err := s.client.RefreshToken(ctx, refresh, principal)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			s.logger.Info("refresh token rejected, purging credentials",
				slog.String("principal", principal),
				slog.String("reason", apiErr.Message),
			)

			if purgeErr := s.store.PurgeAll(ctx, principal); purgeErr != nil {
				return "", fmt.Errorf("purging rejected credentials: %w", purgeErr)
			}

			return "", nil
		}

		s.logger.Warn("token refresh failed transiently",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)

		return "", nil
	}

	if err := s.storePair(ctx, principal, pair); err != nil {
		return "", err
	}

	return pair.Access, nil
}

// Login exchanges credentials for a token pair and stores it. Any
// pre-existing records for the principal are purged first: a second
// login must not inherit the previous session's cached privilege flag
// or stale tokens.
func (s *Service) Login(ctx context.Context, principal, username, password string) (backend.TokenPair, error) {
	if err := s.store.PurgeAll(ctx, principal); err != nil {
		return backend.TokenPair{}, fmt.Errorf("purging previous session: %w", err)
	}

	pair, err := s.client.CreateToken(ctx, backend.Credentials{
		Username:   username,
		Password:   password,
		TelegramID: principal,
	})
	if err != nil {
		return backend.TokenPair{}, err
	}

	if err := s.storePair(ctx, principal, pair); err != nil {
		return backend.TokenPair{}, err
	}

	s.logger.Info("principal logged in", slog.String("principal", principal))

	return pair, nil
}

// Register proxies account creation to the backend.
func (s *Service) Register(ctx context.Context, req backend.RegisterRequest) error {
	return s.client.Register(ctx, req)
}

// Logout revokes the principal's refresh token server-side when one
// exists (best effort: a network failure is logged, not surfaced) and
// unconditionally purges every stored record afterward.
func (s *Service) Logout(ctx context.Context, principal string) error {
	refresh, ok, err := s.store.RefreshToken(ctx, principal)
	if err != nil {
		return fmt.Errorf("reading refresh token: %w", err)
	}

	if ok {
		if err := s.client.DestroyToken(ctx, refresh); err != nil {
			s.logger.Warn("server-side token destroy failed",
				slog.String("principal", principal),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.store.PurgeAll(ctx, principal); err != nil {
		return fmt.Errorf("purging credentials: %w", err)
	}

	s.logger.Info("principal logged out", slog.String("principal", principal))

	return nil
}

// Authenticated reports whether the principal has any stored credential.
// It never triggers a backend call.
func (s *Service) Authenticated(ctx context.Context, principal string) (bool, error) {
	_, ok, err := s.store.AccessToken(ctx, principal)
	if err != nil {
		return false, err
	}

	if ok {
		return true, nil
	}

	_, ok, err = s.store.RefreshToken(ctx, principal)
	if err != nil {
		return false, err
	}

	return ok, nil
}

// IsStaff reports whether the principal holds staff privileges,
// consulting the cache first. Every ambiguous outcome reads as false:
// the gate fails closed. Negative answers from the backend (and from an
// unauthenticated principal) are cached with the same TTL as positive
// ones; a store fault is not cached, so the answer recovers as soon as
// the store does.
func (s *Service) IsStaff(ctx context.Context, principal string) bool {
	cached, ok, err := s.store.StaffFlag(ctx, principal)
	if err != nil {
		s.logger.Warn("staff flag read failed",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)

		return false
	}

	if ok {
		return cached
	}

	access, err := s.Resolve(ctx, principal)
	if err != nil {
		s.logger.Warn("token resolution failed during staff check",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)

		return false
	}

	if access == "" {
		s.cacheStaffFlag(ctx, principal, false)

		return false
	}

	isStaff, err := s.client.IsStaff(ctx, access)
	if err != nil {
		s.logger.Warn("staff check failed, treating as non-staff",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)

		isStaff = false
	}

	s.cacheStaffFlag(ctx, principal, isStaff)

	return isStaff
}

func (s *Service) cacheStaffFlag(ctx context.Context, principal string, isStaff bool) {
	if err := s.store.PutStaffFlag(ctx, principal, isStaff, s.cfg.StaffFlagTTL); err != nil {
		s.logger.Warn("staff flag write failed",
			slog.String("principal", principal),
			slog.String("error", err.Error()),
		)
	}
}

// storePair caches a token pair with fresh TTLs. An empty rotated
// refresh token keeps the existing one in place.
func (s *Service) storePair(ctx context.Context, principal string, pair backend.TokenPair) error {
	ttl := accessTokenTTL(pair.Access, s.cfg.AccessTokenTTL)

	if err := s.store.PutAccessToken(ctx, principal, pair.Access, ttl); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}

	if pair.Refresh != "" {
		if err := s.store.PutRefreshToken(ctx, principal, pair.Refresh, s.cfg.RefreshTokenTTL); err != nil {
			return fmt.Errorf("storing refresh token: %w", err)
		}
	}

	return nil
}

// accessTokenTTL bounds the cache TTL by the token's own exp claim, so
// the cache can never serve a token the backend already considers dead.
// Opaque (non-JWT) tokens fall back to the configured lifetime.
func accessTokenTTL(token string, fallback time.Duration) time.Duration {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fallback
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}

	remaining := time.Until(exp.Time)
	if remaining <= 0 || remaining > fallback {
		return fallback
	}

	return remaining
}
