package revocation

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingKV struct {
	setErr    error
	existsErr error
}

func (f *failingKV) Set(_ context.Context, _, _ string, _ time.Duration) error {
	return f.setErr
}

func (f *failingKV) Exists(_ context.Context, _ string) (bool, error) {
	return false, f.existsErr
}

func TestBlacklistAndCheck(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	s := NewStore(NewMemoryKV(now), WithClock(now))
	ctx := context.Background()

	if s.IsAccessTokenBlacklisted(ctx, "token-a") {
		t.Fatal("fresh store must not report tokens as revoked")
	}
	if err := s.BlacklistAccessToken(ctx, "token-a", clock.Add(10*time.Minute)); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}
	if !s.IsAccessTokenBlacklisted(ctx, "token-a") {
		t.Fatal("blacklisted token must be reported revoked")
	}
	if s.IsAccessTokenBlacklisted(ctx, "token-b") {
		t.Fatal("other tokens must stay unaffected")
	}
}

func TestEntriesExpireWithTheToken(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	s := NewStore(NewMemoryKV(now), WithClock(now))
	ctx := context.Background()

	if err := s.BlacklistRefreshToken(ctx, "jti-1", clock.Add(time.Hour)); err != nil {
		t.Fatalf("BlacklistRefreshToken: %v", err)
	}
	if !s.IsRefreshTokenBlacklisted(ctx, "jti-1") {
		t.Fatal("entry must exist before token expiry")
	}

	clock = clock.Add(time.Hour + time.Second)
	if s.IsRefreshTokenBlacklisted(ctx, "jti-1") {
		t.Fatal("entry must lapse once the token itself has expired")
	}
}

func TestBlacklistingExpiredTokenIsNoop(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	// A failing KV proves Set is never called for expired tokens.
	s := NewStore(&failingKV{setErr: errors.New("kv down")}, WithClock(now))

	if err := s.BlacklistAccessToken(context.Background(), "stale", clock.Add(-time.Minute)); err != nil {
		t.Fatalf("expired-token blacklisting must be a no-op success, got %v", err)
	}
}

func TestChecksFailClosed(t *testing.T) {
	failures := 0
	s := NewStore(&failingKV{existsErr: errors.New("connection refused")},
		WithFailClosedHook(func() { failures++ }))
	ctx := context.Background()

	if !s.IsAccessTokenBlacklisted(ctx, "any") {
		t.Fatal("KV failure must report the token as revoked")
	}
	if !s.IsRefreshTokenBlacklisted(ctx, "any-jti") {
		t.Fatal("KV failure must report the refresh id as revoked")
	}
	if failures != 2 {
		t.Fatalf("fail-closed hook must fire per degraded check, got %d", failures)
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	s := NewStore(NewMemoryKV(nil))
	ctx := context.Background()

	if err := s.BlacklistAccessToken(ctx, "shared-value", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}
	if s.IsRefreshTokenBlacklisted(ctx, "shared-value") {
		t.Fatal("an access-token entry must not shadow a refresh id with the same raw value")
	}
}
