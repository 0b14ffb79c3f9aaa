package scope

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store over PostgreSQL. Rows are mapped to typed structs
// here at the boundary; jsonb columns are scanned as raw bytes and decoded.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (*UserRow, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, is_active, is_admin, coalesce(default_organization_id, '')
		 from users where email=$1`, email)
	var u UserRow
	if err := row.Scan(&u.ID, &u.Email, &u.Active, &u.Admin, &u.DefaultOrgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) MembershipsWithOrgs(ctx context.Context, userID string) ([]Membership, map[string]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select m.organization_id, m.user_id, coalesce(m.role, ''), m.joined_at, m.expires_at,
		        o.id, o.name, o.slug, o.subscription_tier, o.settings, o.is_active
		 from organization_members m
		 join organizations o on o.id = m.organization_id
		 where m.user_id = $1
		 order by m.joined_at asc`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var memberships []Membership
	orgs := make(map[string]*Organization)
	for rows.Next() {
		var (
			m        Membership
			o        Organization
			expires  sql.NullTime
			settings []byte
		)
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt, &expires,
			&o.ID, &o.Name, &o.Slug, &o.SubscriptionTier, &settings, &o.Active); err != nil {
			return nil, nil, err
		}
		if expires.Valid {
			m.ExpiresAt = expires.Time
		}
		o.Settings = json.RawMessage(settings)
		memberships = append(memberships, m)
		if _, ok := orgs[o.ID]; !ok {
			org := o
			orgs[o.ID] = &org
		}
	}
	return memberships, orgs, rows.Err()
}

func (s *PGStore) SelectedView(ctx context.Context, userID, orgID string) (*SavedView, error) {
	row := s.db.QueryRowContext(ctx,
		`select v.id, v.organization_id, v.name, v.account_ids, coalesce(v.default_time_range, ''),
		        v.filters, v.is_shared, v.is_active, v.expires_at
		 from user_view_selections s
		 join saved_views v on v.id = s.view_id
		 where s.user_id = $1 and v.organization_id = $2`, userID, orgID)

	var (
		v          SavedView
		accountIDs []byte
		filters    []byte
		expires    sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.OrgID, &v.Name, &accountIDs, &v.DefaultTimeRange,
		&filters, &v.Shared, &v.Active, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(accountIDs) > 0 {
		if err := json.Unmarshal(accountIDs, &v.AccountIDs); err != nil {
			return nil, fmt.Errorf("decode view account ids: %w", err)
		}
	}
	v.Filters = json.RawMessage(filters)
	if expires.Valid {
		v.ExpiresAt = expires.Time
	}
	return &v, nil
}

func (s *PGStore) ActiveAccounts(ctx context.Context, orgID string) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, account_id, tenant_org_id, coalesce(name, ''), status
		 from aws_accounts
		 where tenant_org_id = $1 and status = 'active'
		 order by id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (s *PGStore) AccountsByIDs(ctx context.Context, orgID string, ids []string) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(
		`select id, account_id, tenant_org_id, coalesce(name, ''), status
		 from aws_accounts
		 where tenant_org_id = $1 and status = 'active' and id in (%s)
		 order by id`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.AccountID, &a.OrgID, &a.Name, &a.Status); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PGStore) GrantedAccountIDs(ctx context.Context, email string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select account_id from account_permissions
		 where user_email = $1
		   and (expires_at is null or expires_at > now())`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
