package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Well-known permission keys consumed by the HTTP layer.
const (
	PermManageRoles  = "rbac.roles.manage"
	PermRevokeTokens = "auth.tokens.revoke"
	PermViewCosts    = "costs.view"
)

// RoleStore is the relational surface the permission resolver consumes.
// UserPermissions returns the union of permission strings across the user's
// non-expired role grants; implementations filter expiry in SQL.
type RoleStore interface {
	UserPermissions(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	SetRolePermissions(ctx context.Context, roleID string, permissions []string) error
	RoleHolders(ctx context.Context, roleID string) ([]string, error)
}

// PermissionSet is a resolved permission snapshot. All is set for
// admin-flagged users, who hold every permission without role rows being
// consulted.
type PermissionSet struct {
	All  bool
	Keys map[string]struct{}
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(perm string) bool {
	if s.All {
		return true
	}
	_, ok := s.Keys[perm]
	return ok
}

// List returns the explicit permission keys (empty for admin sets).
func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s.Keys))
	for k := range s.Keys {
		out = append(out, k)
	}
	return out
}

// PermissionResolver computes effective permissions per user and caches the
// result until a mutation invalidates it. The cache has no TTL: invalidation
// runs synchronously inside the same mutating call, which bounds staleness in
// a single-process deployment. Horizontal scaling needs a replicated
// invalidation signal before this cache is safe to share.
type PermissionResolver struct {
	store RoleStore

	mu    sync.RWMutex
	cache map[string][]string
}

// NewPermissionResolver constructs a resolver over the given role store.
func NewPermissionResolver(store RoleStore) *PermissionResolver {
	return &PermissionResolver{
		store: store,
		cache: make(map[string][]string),
	}
}

// GetUserPermissions resolves the effective permission set for the identity.
// Admin identities short-circuit to the all-permissions set without touching
// role rows.
func (r *PermissionResolver) GetUserPermissions(ctx context.Context, ident Authenticated) (PermissionSet, error) {
	if ident.Admin {
		return PermissionSet{All: true}, nil
	}
	keys, err := r.permissionsFor(ctx, ident.UserID)
	if err != nil {
		return PermissionSet{}, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return PermissionSet{Keys: set}, nil
}

// CheckPermission returns ErrPermissionDenied (wrapped with the required
// permission) when the identity lacks the permission, and the underlying
// store error when resolution itself failed. Callers distinguish the two
// with errors.Is.
func (r *PermissionResolver) CheckPermission(ctx context.Context, ident Authenticated, perm string) error {
	if ident.Admin {
		return nil
	}
	perm = strings.TrimSpace(perm)
	if perm == "" {
		return fmt.Errorf("%w: empty permission", ErrPermissionDenied)
	}
	set, err := r.GetUserPermissions(ctx, ident)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if !set.Has(perm) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, perm)
	}
	return nil
}

func (r *PermissionResolver) permissionsFor(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	cached, ok := r.cache[userID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}
	keys, err := r.store.UserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[userID] = keys
	r.mu.Unlock()
	return keys, nil
}

// AssignRole grants the role and invalidates the user's cached permissions
// before returning.
func (r *PermissionResolver) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := r.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.Invalidate(userID)
	return nil
}

// RemoveRole revokes the role grant and invalidates the user's cached
// permissions before returning.
func (r *PermissionResolver) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := r.store.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	r.Invalidate(userID)
	return nil
}

// SetRolePermissions replaces the role's permission set and invalidates every
// holder of the role before returning. If the holder list cannot be loaded
// the whole cache is dropped rather than risking stale grants.
func (r *PermissionResolver) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	if err := r.store.SetRolePermissions(ctx, roleID, dedupePermissions(permissions)); err != nil {
		return err
	}
	holders, err := r.store.RoleHolders(ctx, roleID)
	if err != nil {
		r.InvalidateAll()
		return nil
	}
	for _, userID := range holders {
		r.Invalidate(userID)
	}
	return nil
}

// Invalidate drops the cached permissions for one user.
func (r *PermissionResolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll drops the whole cache.
func (r *PermissionResolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string][]string)
	r.mu.Unlock()
}

func dedupePermissions(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
