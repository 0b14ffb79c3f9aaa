package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"costscope.io/internal/auth"
	"costscope.io/internal/scope"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Machine-readable 401 codes.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenRevoked = "TOKEN_REVOKED"

	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/",
}

// withAuth is the authentication gate. Public paths pass through with the
// anonymous identity and never touch any backend. Everything else must
// present a valid, unrevoked access token; rejections carry one of the four
// 401 machine codes. There is deliberately no identity fallback from any
// request header other than the bearer credential.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			ctx := auth.ContextWithIdentity(r.Context(), auth.Anonymous{})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or malformed bearer credential")
			return
		}

		claims, err := a.authSvc.Tokens().ValidateAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpired):
				writeError(w, http.StatusUnauthorized, CodeTokenExpired, "access token expired")
			default:
				writeError(w, http.StatusUnauthorized, CodeTokenInvalid, "access token invalid")
			}
			return
		}

		if a.revocations.IsAccessTokenBlacklisted(r.Context(), token) {
			writeError(w, http.StatusUnauthorized, CodeTokenRevoked, "access token revoked")
			return
		}

		// A request cancelled mid-gate never reaches a handler with a
		// partially attached identity.
		if err := r.Context().Err(); err != nil {
			return
		}

		ident := auth.Authenticated{
			UserID: claims.Subject,
			Email:  claims.Email,
			Admin:  claims.Admin,
			OrgID:  claims.OrgID,
			Kind:   claims.Kind,
		}
		ctx := auth.ContextWithIdentity(r.Context(), ident)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withScope resolves the request context for authenticated identities. Public
// and anonymous requests skip resolution entirely, so they never touch the
// relational store.
func (a *API) withScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := auth.AuthenticatedFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		rc := a.scopes.Resolve(r.Context(), ident.Email)
		next.ServeHTTP(w, r.WithContext(scope.ContextWith(r.Context(), rc)))
	})
}

// requirePermission writes the error response itself and reports whether the
// handler may proceed.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	ident, ok := auth.AuthenticatedFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return false
	}
	if err := a.permissions.CheckPermission(r.Context(), ident, perm); err != nil {
		if errors.Is(err, auth.ErrPermissionDenied) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": errorBody{Code: CodePermissionDenied, Message: "permission denied"},
				"required_permission": perm,
			})
			return false
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "permission resolution failed")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
