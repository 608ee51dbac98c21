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

// refreshTokenColumns is the SELECT column list for refresh_tokens queries.
const refreshTokenColumns = `id, tenant_id, user_id, token_hash, expires_at, revoked_at, created_at`

func scanRefreshToken(row scannable) (*user.RefreshToken, error) {
	var rt user.RefreshToken
	err := row.Scan(&rt.ID, &rt.TenantID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.RevokedAt, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// StoreRefreshToken persists a new refresh token.
func (s *Store) StoreRefreshToken(ctx context.Context, rt *user.RefreshToken) error {
	rt.CreatedAt = time.Now().UTC()
	return withSession(ctx, s.pool, func(q querier) error {
		_, err := q.Exec(ctx,
			`INSERT INTO refresh_tokens (id, tenant_id, user_id, token_hash, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rt.ID, rt.TenantID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt)
		if err != nil {
			return fmt.Errorf("store refresh token: %w", err)
		}
		return nil
	})
}

// FindRefreshToken returns the token with the given hash, or (nil, nil).
// Presenting an unknown token is a credential failure, not a server error.
func (s *Store) FindRefreshToken(ctx context.Context, tokenHash string) (*user.RefreshToken, error) {
	var found *user.RefreshToken
	err := withSession(ctx, s.pool, func(q querier) error {
		row := q.QueryRow(ctx,
			`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

		rt, err := scanRefreshToken(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find refresh token: %w", err)
		}
		found = rt
		return nil
	})
	return found, err
}

// RevokeRefreshToken marks the token revoked. Revoking twice is an error so
// token reuse is detectable.
func (s *Store) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	return withSession(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
		return execExpectOne(tag, err, "revoke refresh token %s", id)
	})
}

// RotateRefreshToken revokes the old token and stores its replacement in one
// transaction. A replayed rotation finds the old token already revoked and
// fails with domain.ErrInvalidOperation, leaving no second live token.
func (s *Store) RotateRefreshToken(ctx context.Context, revokeID uuid.UUID, fresh *user.RefreshToken) error {
	fresh.CreatedAt = time.Now().UTC()
	return withSessionTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, revokeID)
		if err != nil {
			return fmt.Errorf("rotate refresh token: revoke: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("rotate refresh token %s: already revoked: %w", revokeID, domain.ErrInvalidOperation)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO refresh_tokens (id, tenant_id, user_id, token_hash, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			fresh.ID, fresh.TenantID, fresh.UserID, fresh.TokenHash, fresh.ExpiresAt, fresh.CreatedAt)
		if err != nil {
			return fmt.Errorf("rotate refresh token: store: %w", err)
		}
		return nil
	})
}

// DeleteExpiredRefreshTokens removes tokens past their expiry and returns
// how many were deleted. Revoked tokens are kept until expiry for reuse
// detection.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	var deleted int64
	err := withSession(ctx, s.pool, func(q querier) error {
		tag, err := q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
		if err != nil {
			return fmt.Errorf("delete expired refresh tokens: %w", err)
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}
