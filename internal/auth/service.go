package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrInvalidCredentials is returned for unknown emails, wrong passwords, and
// inactive accounts alike, so login responses do not reveal which it was.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// RevocationList is the slice of the revocation store the auth service needs.
// The membership check is fail-closed by contract: it reports true on any
// store error.
type RevocationList interface {
	BlacklistRefreshToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRefreshTokenBlacklisted(ctx context.Context, tokenID string) bool
}

// Service orchestrates login, refresh, and logout over the user store, the
// authenticator, and the revocation list.
type Service struct {
	users       UserStore
	tokens      *Authenticator
	revocations RevocationList
}

// NewService constructs the auth service.
func NewService(users UserStore, tokens *Authenticator, revocations RevocationList) (*Service, error) {
	if users == nil || tokens == nil || revocations == nil {
		return nil, errors.New("auth: users, tokens, and revocations are required")
	}
	return &Service{users: users, tokens: tokens, revocations: revocations}, nil
}

// Tokens exposes the underlying authenticator for the gate.
func (s *Service) Tokens() *Authenticator { return s.tokens }

// Login verifies the credentials and mints a token pair carrying the user's
// current admin flag and default organization.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if !user.Active {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.tokens.CreateTokenPair(user.ID, user.Email, user.Admin, user.DefaultOrgID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh validates the refresh token, consults the blacklist by its id, and
// mints a new access token from the user's *current* admin/org flags rather
// than the ones embedded at refresh issuance. Refresh tokens are not rotated;
// the presented token stays valid until expiry or explicit revocation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	if s.revocations.IsRefreshTokenBlacklisted(ctx, claims.ID) {
		return "", time.Time{}, ErrRevoked
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrInvalid
		}
		return "", time.Time{}, err
	}
	if !user.Active {
		return "", time.Time{}, ErrInvalid
	}
	return s.tokens.RefreshAccessToken(refreshToken, user.Admin, user.DefaultOrgID)
}

// Logout blacklists the refresh token's id for its remaining lifetime. The
// presented access token is deliberately left valid; callers that need it
// dead immediately must blacklist it explicitly. An invalid or already
// expired refresh token is a no-op success.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	return s.revocations.BlacklistRefreshToken(ctx, claims.ID, claims.ExpiresAt.Time)
}
