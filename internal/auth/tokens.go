package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access from refresh credentials. The kind is fixed
// at issuance and never reinterpreted: each validation path rejects the
// other kind.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the wire-visible payload of both token kinds. Refresh tokens
// additionally carry a jti (RegisteredClaims.ID) used for targeted
// revocation.
type Claims struct {
	Email string    `json:"email"`
	Kind  TokenKind `json:"kind"`
	Admin bool      `json:"admin"`
	OrgID string    `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is an access and refresh token minted together. Refresh expiry
// is always strictly later than access expiry.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Authenticator issues and validates HS256 bearer tokens. It holds no state
// besides its configuration and is safe for concurrent use; construct one at
// startup (after the secret policy check) and pass it explicitly.
type Authenticator struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthenticator constructs an Authenticator. The secret must already have
// passed the config secret policy; TTLs must be positive with refreshTTL
// strictly greater than accessTTL.
func NewAuthenticator(secret, issuer string, accessTTL, refreshTTL time.Duration, opts ...AuthenticatorOption) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("auth: issuer is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token TTLs must be positive")
	}
	if refreshTTL <= accessTTL {
		return nil, errors.New("auth: refresh TTL must exceed access TTL")
	}
	a := &Authenticator{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// AccessTTL returns the configured access-token lifetime.
func (a *Authenticator) AccessTTL() time.Duration { return a.accessTTL }

// CreateAccessToken mints an access token for the given subject.
func (a *Authenticator) CreateAccessToken(userID, email string, admin bool, orgID string) (string, time.Time, error) {
	return a.create(KindAccess, userID, email, admin, orgID, "")
}

// CreateRefreshToken mints a refresh token; its jti allows targeted
// revocation without storing the raw token anywhere.
func (a *Authenticator) CreateRefreshToken(userID, email string, admin bool, orgID string) (string, time.Time, error) {
	return a.create(KindRefresh, userID, email, admin, orgID, uuid.NewString())
}

// CreateTokenPair mints an access and refresh token together.
func (a *Authenticator) CreateTokenPair(userID, email string, admin bool, orgID string) (TokenPair, error) {
	access, accessExp, err := a.CreateAccessToken(userID, email, admin, orgID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := a.CreateRefreshToken(userID, email, admin, orgID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (a *Authenticator) create(kind TokenKind, userID, email string, admin bool, orgID, jti string) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: userID is required")
	}
	ttl := a.accessTTL
	if kind == KindRefresh {
		ttl = a.refreshTTL
	}
	now := a.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Email: strings.TrimSpace(strings.ToLower(email)),
		Kind:  kind,
		Admin: admin,
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, issuer, and expiry without constraining
// the kind. Expiry maps to ErrExpired; everything else to ErrInvalid.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingCredential
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return a.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Issuer != a.issuer {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalid
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ValidateAccessToken validates the token and rejects refresh-kind tokens.
func (a *Authenticator) ValidateAccessToken(token string) (*Claims, error) {
	claims, err := a.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ValidateRefreshToken validates the token and rejects access-kind tokens.
// A refresh token without a jti is malformed.
func (a *Authenticator) ValidateRefreshToken(token string) (*Claims, error) {
	claims, err := a.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh {
		return nil, ErrInvalid
	}
	if strings.TrimSpace(claims.ID) == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// RefreshAccessToken validates the supplied refresh token and mints a new
// access token carrying the caller-supplied admin/org flags, not the ones
// embedded in the refresh token. Role changes made after refresh issuance
// therefore take effect on the next access token.
func (a *Authenticator) RefreshAccessToken(refreshToken string, currentAdmin bool, currentOrgID string) (string, time.Time, error) {
	claims, err := a.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return a.CreateAccessToken(claims.Subject, claims.Email, currentAdmin, currentOrgID)
}
