package httpapi

import (
	"net/http"
	"strings"

	"costscope.io/internal/audit"
	"costscope.io/internal/auth"
)

type roleMemberRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, auth.PermManageRoles) {
		return
	}
	roleID := r.PathValue("id")

	var req roleMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "user_id is required")
		return
	}

	if err := a.permissions.AssignRole(r.Context(), userID, roleID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "role assignment failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "rbac.role.assigned", map[string]any{
		"role_id": roleID,
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, auth.PermManageRoles) {
		return
	}
	roleID := r.PathValue("id")

	var req roleMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "user_id is required")
		return
	}

	if err := a.permissions.RemoveRole(r.Context(), userID, roleID); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "role removal failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "rbac.role.removed", map[string]any{
		"role_id": roleID,
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, auth.PermManageRoles) {
		return
	}
	roleID := r.PathValue("id")

	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := a.permissions.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "role permission update failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "rbac.role.permissions_set", map[string]any{
		"role_id":     roleID,
		"permissions": req.Permissions,
	})
	w.WriteHeader(http.StatusNoContent)
}
