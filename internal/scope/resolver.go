package scope

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"costscope.io/internal/ids"
)

// Outcome labels for metrics.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeDegraded = "degraded"
)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithOutcomeHook registers a callback invoked once per resolution with the
// outcome label. Used for metrics.
func WithOutcomeHook(fn func(outcome string)) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.onOutcome = fn
		}
	}
}

// Resolver computes the RequestContext for an authenticated identity. Any
// store error degrades to an empty context tagged with the email: the request
// is served with zero visible accounts instead of failing. That is a softer
// policy than the revocation store's fail-closed rule and the two must stay
// distinct.
type Resolver struct {
	store     Store
	now       func() time.Time
	onOutcome func(string)
}

// NewResolver constructs a resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		now:       time.Now,
		onOutcome: func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces the request context for the email. Resolution is read-only
// and idempotent; concurrent requests for the same user resolve independently.
func (r *Resolver) Resolve(ctx context.Context, email string) *RequestContext {
	email = strings.TrimSpace(strings.ToLower(email))
	rc, err := r.resolve(ctx, email)
	if err != nil {
		r.onOutcome(OutcomeDegraded)
		return r.emptyContext(email, true)
	}
	if len(rc.AllowedAccountIDs) == 0 {
		r.onOutcome(OutcomeEmpty)
	} else {
		r.onOutcome(OutcomeOK)
	}
	return rc
}

func (r *Resolver) emptyContext(email string, degraded bool) *RequestContext {
	return &RequestContext{
		Email:     email,
		OrgRole:   "member",
		RequestID: ids.New(),
		Degraded:  degraded,
	}
}

func (r *Resolver) resolve(ctx context.Context, email string) (*RequestContext, error) {
	user, err := r.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.emptyContext(email, false), nil
		}
		return nil, err
	}
	if !user.Active {
		return r.emptyContext(email, false), nil
	}

	rc := &RequestContext{
		UserID:    user.ID,
		Email:     user.Email,
		Admin:     user.Admin,
		OrgRole:   "member",
		RequestID: ids.New(),
	}

	org, role, err := r.activeOrganization(ctx, user)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return rc, nil
	}
	rc.Organization = org
	rc.OrgRole = role

	view, err := r.selectedView(ctx, user.ID, org.ID)
	if err != nil {
		return nil, err
	}
	if view != nil {
		rc.ActiveView = view
		rc.TimeRange = view.DefaultTimeRange
		rc.Filters = view.Filters
	}

	allowed, err := r.allowedAccounts(ctx, user, org.ID, view)
	if err != nil {
		return nil, err
	}
	rc.AllowedAccountIDs = allowed
	return rc, nil
}

// activeOrganization picks among the user's non-expired memberships in active
// organizations: the one matching the stored default-organization id wins,
// otherwise the earliest joined.
func (r *Resolver) activeOrganization(ctx context.Context, user *UserRow) (*Organization, string, error) {
	memberships, orgs, err := r.store.MembershipsWithOrgs(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	now := r.now()

	var best *Membership
	for i := range memberships {
		m := &memberships[i]
		if !m.ExpiresAt.IsZero() && !m.ExpiresAt.After(now) {
			continue
		}
		org := orgs[m.OrgID]
		if org == nil || !org.Active {
			continue
		}
		if m.OrgID == user.DefaultOrgID {
			best = m
			break
		}
		if best == nil || m.JoinedAt.Before(best.JoinedAt) {
			best = m
		}
	}
	if best == nil {
		return nil, "", nil
	}
	role := strings.TrimSpace(best.Role)
	if role == "" {
		role = "member"
	}
	return orgs[best.OrgID], role, nil
}

// selectedView loads the user's currently selected view, treating inactive or
// expired views as absent.
func (r *Resolver) selectedView(ctx context.Context, userID, orgID string) (*SavedView, error) {
	view, err := r.store.SelectedView(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if view == nil || !view.Active {
		return nil, nil
	}
	if !view.ExpiresAt.IsZero() && !view.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return view, nil
}

func (r *Resolver) allowedAccounts(ctx context.Context, user *UserRow, orgID string, view *SavedView) ([]string, error) {
	if view != nil && len(view.AccountIDs) > 0 {
		accounts, err := r.store.AccountsByIDs(ctx, orgID, view.AccountIDs)
		if err != nil {
			return nil, err
		}
		visible := accountIDs(accounts)
		if user.Admin {
			return visible, nil
		}
		granted, err := r.store.GrantedAccountIDs(ctx, user.Email)
		if err != nil {
			return nil, err
		}
		return intersect(visible, granted), nil
	}

	if user.Admin {
		accounts, err := r.store.ActiveAccounts(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return accountIDs(accounts), nil
	}
	granted, err := r.store.GrantedAccountIDs(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	sort.Strings(granted)
	return granted, nil
}

func accountIDs(accounts []Account) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ID)
	}
	sort.Strings(out)
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
