// Package revocation maintains the token blacklist consulted on every
// authenticated request. Only sha256 digests of tokens (or token ids) are
// stored, never raw material, and entries live exactly as long as the token
// they shadow.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key namespaces. Access tokens are blacklisted by full-token digest, refresh
// tokens by their jti digest; the namespaces keep the two from colliding.
const (
	accessPrefix  = "revoked:access:"
	refreshPrefix = "revoked:refresh:"
)

// KV is the minimal key-value surface the store needs. Exists must return an
// error whenever membership cannot be determined; the store treats that as
// revoked.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithFailClosedHook registers a callback invoked whenever a membership check
// degrades to "revoked" because the KV was unreachable. Used for metrics.
type failClosedHook func()

func WithFailClosedHook(fn func()) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.onFailClosed = fn
		}
	}
}

// Store blacklists tokens by digest with a TTL equal to the remaining token
// lifetime. Membership checks fail closed: a KV error, a missing connection,
// or a timeout all report the token as revoked. Availability is traded for
// the guarantee that a revoked token is never honored.
type Store struct {
	kv           KV
	now          func() time.Time
	onFailClosed failClosedHook
}

// NewStore constructs a revocation store over the given KV.
func NewStore(kv KV, opts ...StoreOption) *Store {
	s := &Store{
		kv:           kv,
		now:          time.Now,
		onFailClosed: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// BlacklistAccessToken records the access token's digest until the token's
// own expiry. Blacklisting an already expired token is a success no-op: the
// desired state (token unusable) already holds.
func (s *Store) BlacklistAccessToken(ctx context.Context, token string, expiresAt time.Time) error {
	return s.blacklist(ctx, accessPrefix+digest(token), expiresAt)
}

// BlacklistRefreshToken records the refresh token id's digest until the
// token's own expiry.
func (s *Store) BlacklistRefreshToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return s.blacklist(ctx, refreshPrefix+digest(tokenID), expiresAt)
}

func (s *Store) blacklist(ctx context.Context, key string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.kv.Set(ctx, key, "1", ttl)
}

// IsAccessTokenBlacklisted reports whether the access token was revoked.
// True on any KV failure.
func (s *Store) IsAccessTokenBlacklisted(ctx context.Context, token string) bool {
	return s.exists(ctx, accessPrefix+digest(token))
}

// IsRefreshTokenBlacklisted reports whether the refresh token id was revoked.
// True on any KV failure.
func (s *Store) IsRefreshTokenBlacklisted(ctx context.Context, tokenID string) bool {
	return s.exists(ctx, refreshPrefix+digest(tokenID))
}

func (s *Store) exists(ctx context.Context, key string) bool {
	found, err := s.kv.Exists(ctx, key)
	if err != nil {
		s.onFailClosed()
		return true
	}
	return found
}
