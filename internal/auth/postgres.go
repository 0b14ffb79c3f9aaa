package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// User is the typed projection of the users row this core consumes. Rows are
// mapped here at the boundary; nothing downstream sees raw query results.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Active       bool
	Admin        bool
	DefaultOrgID string
}

// UserStore loads user rows for login and refresh.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

var _ UserStore = (*PGUserStore)(nil)
var _ RoleStore = (*PGRoleStore)(nil)

// PGUserStore implements UserStore over PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_active, is_admin, coalesce(default_organization_id, '')
		 from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_active, is_admin, coalesce(default_organization_id, '')
		 from users where id=$1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Active, &u.Admin, &u.DefaultOrgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// PGRoleStore implements RoleStore over PostgreSQL. Expired role grants are
// filtered in SQL so the resolver never sees them.
type PGRoleStore struct {
	db *sql.DB
}

func NewPGRoleStore(db *sql.DB) *PGRoleStore {
	return &PGRoleStore{db: db}
}

// UserPermissions returns the union of permission strings across the user's
// non-expired role grants. roles.permissions is a jsonb string array, as the
// analytics services store it.
func (s *PGRoleStore) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.permissions from roles r
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id = $1
		   and (ur.expires_at is null or ur.expires_at > now())`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var perms []string
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var keys []string
		if err := json.Unmarshal(blob, &keys); err != nil {
			return nil, fmt.Errorf("decode role permissions: %w", err)
		}
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			perms = append(perms, k)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(perms)
	return perms, nil
}

func (s *PGRoleStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID)
	return err
}

func (s *PGRoleStore) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles where user_id=$1 and role_id=$2`, userID, roleID)
	return err
}

func (s *PGRoleStore) SetRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	blob, err := json.Marshal(permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`update roles set permissions=$2 where id=$1`, roleID, blob)
	return err
}

func (s *PGRoleStore) RoleHolders(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id from user_roles where role_id=$1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
