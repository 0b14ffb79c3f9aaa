package httpapi

import (
	"errors"
	"net/http"
	"time"

	"costscope.io/internal/audit"
	"costscope.io/internal/auth"
	"costscope.io/internal/scope"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	pair, user, err := a.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "bearer",
		ExpiresIn:        int(a.authSvc.Tokens().AccessTTL().Seconds()),
		RefreshExpiresAt: pair.RefreshExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	access, _, err := a.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			writeError(w, http.StatusUnauthorized, CodeTokenExpired, "refresh token expired")
		case errors.Is(err, auth.ErrRevoked):
			writeError(w, http.StatusUnauthorized, CodeTokenRevoked, "refresh token revoked")
		case errors.Is(err, auth.ErrInvalid), errors.Is(err, auth.ErrMissingCredential):
			writeError(w, http.StatusUnauthorized, CodeTokenInvalid, "refresh token invalid")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL", "refresh failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)

	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(a.authSvc.Tokens().AccessTTL().Seconds()),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := a.authSvc.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "logout failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

type revokeRequest struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// handleRevoke blacklists the supplied access token and/or refresh token id.
// Already-expired tokens are a success no-op; tokens that never validated are
// rejected so callers notice typos.
func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, auth.PermRevokeTokens) {
		return
	}

	var req revokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.AccessToken == "" && req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "access_token or refresh_token is required")
		return
	}

	tokens := a.authSvc.Tokens()
	revoked := make([]string, 0, 2)

	if req.AccessToken != "" {
		claims, err := tokens.ValidateToken(req.AccessToken)
		switch {
		case errors.Is(err, auth.ErrExpired):
			// Nothing to revoke.
		case err != nil:
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "access_token is not a valid token")
			return
		default:
			if err := a.revocations.BlacklistAccessToken(r.Context(), req.AccessToken, claims.ExpiresAt.Time); err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL", "revocation failed")
				return
			}
			revoked = append(revoked, "access")
		}
	}

	if req.RefreshToken != "" {
		claims, err := tokens.ValidateRefreshToken(req.RefreshToken)
		switch {
		case errors.Is(err, auth.ErrExpired):
			// Nothing to revoke.
		case err != nil:
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "refresh_token is not a valid refresh token")
			return
		default:
			if err := a.revocations.BlacklistRefreshToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL", "revocation failed")
				return
			}
			revoked = append(revoked, "refresh")
		}
	}

	_ = audit.LogEvent(r.Context(), "auth.token.revoked", map[string]any{
		"kinds": revoked,
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.AuthenticatedFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	set, err := a.permissions.GetUserPermissions(r.Context(), ident)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "permission resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         ident.UserID,
		"email":           ident.Email,
		"admin":           ident.Admin,
		"organization_id": ident.OrgID,
		"permissions":     set.List(),
		"all_permissions": set.All,
	})
}

func (a *API) handleContext(w http.ResponseWriter, r *http.Request) {
	rc, ok := scope.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	resp := map[string]any{
		"request_id":       rc.RequestID,
		"user_id":          rc.UserID,
		"email":            rc.Email,
		"admin":            rc.Admin,
		"org_role":         rc.OrgRole,
		"allowed_accounts": rc.AllowedAccountIDs,
		"degraded":         rc.Degraded,
	}
	if rc.Organization != nil {
		resp["organization"] = map[string]any{
			"id":   rc.Organization.ID,
			"name": rc.Organization.Name,
			"slug": rc.Organization.Slug,
		}
	}
	if rc.ActiveView != nil {
		resp["active_view"] = map[string]any{
			"id":         rc.ActiveView.ID,
			"name":       rc.ActiveView.Name,
			"time_range": rc.TimeRange,
			"filters":    rc.Filters,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
