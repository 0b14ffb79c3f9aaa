package auth

import "context"

type identityContextKey struct{}

// ContextWithIdentity attaches the gate's identity decision to the context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	if ident == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the identity set by the authentication gate.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

type tokenContextKey struct{}

// ContextWithToken carries the raw presented access token so the explicit
// revocation endpoint can blacklist it.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the raw access token attached by the gate.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	return v, ok && v != ""
}

// AuthenticatedFromContext extracts the authenticated variant, or reports
// false for anonymous or unauthenticated requests.
func AuthenticatedFromContext(ctx context.Context) (Authenticated, bool) {
	ident, ok := IdentityFromContext(ctx)
	if !ok {
		return Authenticated{}, false
	}
	a, ok := ident.(Authenticated)
	return a, ok
}
