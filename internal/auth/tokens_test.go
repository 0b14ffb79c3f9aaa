package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "unit-test-signing-secret-0123456789abcdef"

func newTestAuthenticator(t *testing.T, now func() time.Time) *Authenticator {
	t.Helper()
	opts := []AuthenticatorOption{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	a, err := NewAuthenticator(testSecret, "costscope", 15*time.Minute, 7*24*time.Hour, opts...)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func TestCreateAndValidateAccessToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	token, expiresAt, err := a.CreateAccessToken("user-1", "Ada@Example.com", true, "org-9")
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if until := time.Until(expiresAt); until < 14*time.Minute || until > 15*time.Minute {
		t.Fatalf("unexpected expiry distance: %v", until)
	}

	claims, err := a.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %s", claims.Email)
	}
	if !claims.Admin || claims.OrgID != "org-9" {
		t.Fatalf("claims not preserved: admin=%v org=%s", claims.Admin, claims.OrgID)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("unexpected kind: %s", claims.Kind)
	}
	if claims.ID != "" {
		t.Fatalf("access token must not carry a jti, got %q", claims.ID)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issued := time.Now().UTC()
	clock := issued
	a := newTestAuthenticator(t, func() time.Time { return clock })

	token, _, err := a.CreateAccessToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	clock = issued.Add(16 * time.Minute)
	if _, err := a.ValidateToken(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Kind-specific validation reports the same failure.
	if _, err := a.ValidateAccessToken(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired from ValidateAccessToken, got %v", err)
	}
}

func TestKindsAreMutuallyRejecting(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	access, _, err := a.CreateAccessToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	refresh, _, err := a.CreateRefreshToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}

	if _, err := a.ValidateRefreshToken(access); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh validation must reject access tokens, got %v", err)
	}
	if _, err := a.ValidateAccessToken(refresh); !errors.Is(err, ErrInvalid) {
		t.Fatalf("access validation must reject refresh tokens, got %v", err)
	}
	// Kind-agnostic validation accepts both.
	if _, err := a.ValidateToken(access); err != nil {
		t.Fatalf("ValidateToken(access): %v", err)
	}
	if _, err := a.ValidateToken(refresh); err != nil {
		t.Fatalf("ValidateToken(refresh): %v", err)
	}
}

func TestRefreshTokenCarriesUniqueID(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	t1, _, err := a.CreateRefreshToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	t2, _, err := a.CreateRefreshToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	c1, err := a.ValidateRefreshToken(t1)
	if err != nil {
		t.Fatalf("ValidateRefreshToken: %v", err)
	}
	c2, err := a.ValidateRefreshToken(t2)
	if err != nil {
		t.Fatalf("ValidateRefreshToken: %v", err)
	}
	if c1.ID == "" || c1.ID == c2.ID {
		t.Fatalf("refresh jtis must be unique and non-empty: %q vs %q", c1.ID, c2.ID)
	}
}

func TestTokenPairExpiryOrdering(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	pair, err := a.CreateTokenPair("user-1", "a@b.io", false, "org-1")
	if err != nil {
		t.Fatalf("CreateTokenPair: %v", err)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh expiry %v must be strictly later than access expiry %v",
			pair.RefreshExpiresAt, pair.AccessExpiresAt)
	}
}

func TestValidateRejectsWrongSecretAndIssuer(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	token, _, err := a.CreateAccessToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	other, err := NewAuthenticator("another-signing-secret-0123456789abcdef", "costscope", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong secret must yield ErrInvalid, got %v", err)
	}

	otherIssuer, err := NewAuthenticator(testSecret, "someone-else", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	if _, err := otherIssuer.ValidateToken(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong issuer must yield ErrInvalid, got %v", err)
	}
}

func TestValidateMissingToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	if _, err := a.ValidateToken("  "); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestRefreshAccessTokenUsesCurrentFlags(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	// Refresh token minted before the promotion, with admin=false.
	refresh, _, err := a.CreateRefreshToken("user-1", "a@b.io", false, "org-old")
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}

	access, _, err := a.RefreshAccessToken(refresh, true, "org-new")
	if err != nil {
		t.Fatalf("RefreshAccessToken: %v", err)
	}
	claims, err := a.ValidateAccessToken(access)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if !claims.Admin {
		t.Fatal("new access token must carry the caller-supplied admin flag")
	}
	if claims.OrgID != "org-new" {
		t.Fatalf("new access token must carry the caller-supplied org, got %s", claims.OrgID)
	}
}

func TestRefreshAccessTokenRejectsAccessToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	access, _, err := a.CreateAccessToken("user-1", "a@b.io", false, "")
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if _, _, err := a.RefreshAccessToken(access, false, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNewAuthenticatorValidation(t *testing.T) {
	if _, err := NewAuthenticator("", "iss", time.Minute, time.Hour); err == nil {
		t.Fatal("empty secret must be rejected")
	}
	if _, err := NewAuthenticator(testSecret, "iss", time.Hour, time.Hour); err == nil {
		t.Fatal("refresh TTL equal to access TTL must be rejected")
	}
}
