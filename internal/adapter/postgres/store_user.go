package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/domain/user"
)

// userColumns is the SELECT column list for users queries.
const userColumns = `id, tenant_id, email, name, password_hash, role, enabled, must_change_password, created_at, updated_at`

func scanUser(row scannable) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, &u.Role,
		&u.Enabled, &u.MustChangePassword, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user. Emails are globally unique so a login request
// can resolve its tenant from the email alone.
func (s *Store) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	var created *user.User
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`INSERT INTO users (id, tenant_id, email, name, password_hash, role, enabled, must_change_password, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+userColumns,
			u.ID, u.TenantID, u.Email, u.Name, u.PasswordHash, u.Role,
			u.Enabled, u.MustChangePassword, u.CreatedAt, u.UpdatedAt)

		var err error
		created, err = scanUser(row)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create user: email %q: %w", u.Email, domain.ErrEmailExists)
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetUserByID returns the user with the given id.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var u *user.User
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

		var err error
		u, err = scanUser(row)
		if err != nil {
			return notFoundWrap(err, "get user %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email, or (nil, nil) when
// none exists. Login treats absence as a credential failure, not an error.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var found *user.User
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)

		u, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get user by email: %w", err)
		}
		found = u
		return nil
	})
	return found, err
}

// ListUsers returns all users of the tenant ordered by creation time.
func (s *Store) ListUsers(ctx context.Context, tenantID uuid.UUID) ([]*user.User, error) {
	var users []*user.User
	err := withSession(ctx, s.pool, func(q querier) error {
		rows, err := q.Query(ctx,
			`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return fmt.Errorf("scan user: %w", err)
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserPassword replaces the password hash and must-change flag.
func (s *Store) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string, mustChange bool) error {
	return withSession(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx,
			`UPDATE users SET password_hash = $2, must_change_password = $3, updated_at = now()
			 WHERE id = $1`, id, passwordHash, mustChange)
		return execExpectOne(tag, err, "update user password %s", id)
	})
}
