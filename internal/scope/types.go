// Package scope resolves an authenticated identity into the per-request
// visibility snapshot: which organization is active, which saved view applies,
// and exactly which AWS accounts the request may touch.
package scope

import (
	"encoding/json"
	"time"
)

// Organization is a tenant. Inactive organizations are unusable regardless of
// membership.
type Organization struct {
	ID               string
	Name             string
	Slug             string
	SubscriptionTier string
	Settings         json.RawMessage
	Active           bool
}

// Membership links a user to an organization. A zero ExpiresAt means the
// membership does not expire.
type Membership struct {
	OrgID     string
	UserID    string
	Role      string
	JoinedAt  time.Time
	ExpiresAt time.Time
}

// SavedView is a tenant-scoped named resource filter. An empty AccountIDs
// list means "no account restriction". Expired or inactive views are treated
// as absent by the resolver.
type SavedView struct {
	ID               string
	OrgID            string
	Name             string
	AccountIDs       []string
	DefaultTimeRange string
	Filters          json.RawMessage
	Shared           bool
	Active           bool
	ExpiresAt        time.Time
}

// Account is an AWS account registered under a tenant. Status "active" is the
// only state visible to resolution.
type Account struct {
	ID        string
	AccountID string
	OrgID     string
	Name      string
	Status    string
}

// AccountGrant ties a user to one account. A grant past its expiry is treated
// as absent.
type AccountGrant struct {
	AccountID   string
	UserEmail   string
	AccessLevel string
	ExpiresAt   time.Time
}

// RequestContext is the resolved per-request snapshot handed to downstream
// handlers. It is assembled once by the resolver and never mutated or cached;
// an empty context (Degraded or simply no visible accounts) still serves the
// request, showing nothing.
type RequestContext struct {
	UserID            string
	Email             string
	Admin             bool
	Organization      *Organization
	OrgRole           string
	AllowedAccountIDs []string
	ActiveView        *SavedView
	TimeRange         string
	Filters           json.RawMessage
	RequestID         string

	// Degraded marks a context emptied by a store failure rather than by a
	// genuine lack of grants.
	Degraded bool
}

// HasOrganization reports whether an active organization was resolved.
func (c *RequestContext) HasOrganization() bool {
	return c.Organization != nil
}

// CanSeeAccount reports whether the account id is in the allowed set.
func (c *RequestContext) CanSeeAccount(accountID string) bool {
	for _, id := range c.AllowedAccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
