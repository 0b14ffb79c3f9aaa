package scope

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups with no matching row.
var ErrNotFound = errors.New("scope: not found")

// UserRow is the slice of the users table resolution consumes.
type UserRow struct {
	ID           string
	Email        string
	Active       bool
	Admin        bool
	DefaultOrgID string
}

// Store is the relational surface the resolver reads. Implementations filter
// nothing beyond shape: expiry and precedence rules live in the resolver so
// they are testable without a database.
type Store interface {
	// UserByEmail returns ErrNotFound for unknown emails.
	UserByEmail(ctx context.Context, email string) (*UserRow, error)
	// MembershipsWithOrgs returns the user's memberships joined with their
	// organizations, ordered by joined_at ascending.
	MembershipsWithOrgs(ctx context.Context, userID string) ([]Membership, map[string]*Organization, error)
	// SelectedView returns the user's currently selected view in the
	// organization, or ErrNotFound if no pointer is set.
	SelectedView(ctx context.Context, userID, orgID string) (*SavedView, error)
	// ActiveAccounts returns all accounts in "active" status for the
	// organization.
	ActiveAccounts(ctx context.Context, orgID string) ([]Account, error)
	// AccountsByIDs returns the subset of ids that exist in the organization
	// with "active" status.
	AccountsByIDs(ctx context.Context, orgID string, ids []string) ([]Account, error)
	// GrantedAccountIDs returns the account ids for which the email holds a
	// non-expired grant.
	GrantedAccountIDs(ctx context.Context, email string) ([]string, error)
}
