package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atriumlabs/atrium/internal/domain"
	"github.com/atriumlabs/atrium/internal/middleware"
)

// Session variables read by the row level security policies. They live on the
// connection, not the pool, so every value set here must be cleared before
// the connection goes back to the pool.
const (
	varTenantID    = "app.current_tenant_id"
	varSystemAdmin = "app.is_system_admin"
	varUserID      = "app.current_user_id"
)

// sessionResetTimeout bounds the reset round trip. The reset runs on a fresh
// context so it still happens when the request context is already cancelled.
const sessionResetTimeout = 2 * time.Second

// querier is the query subset shared by *pgxpool.Conn and pgx.Tx, letting
// store methods run unchanged inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withSession acquires a pooled connection, applies the caller's tenant
// context as session variables, runs fn, and always resets the variables
// before the connection returns to the pool. Calls without a tenant context
// fail before touching the database.
func withSession(ctx context.Context, pool *pgxpool.Pool, fn func(q querier) error) error {
	tc, ok := middleware.TenantFromContext(ctx)
	if !ok {
		return fmt.Errorf("database session: missing tenant context: %w", domain.ErrInvalidOperation)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("database session: acquire: %w", err)
	}
	defer conn.Release()
	defer resetSession(conn)

	if err := applySession(ctx, conn, tc); err != nil {
		return err
	}

	return fn(conn)
}

// withSessionTx is withSession wrapped in a transaction. fn returning an
// error rolls back; the deferred rollback after a commit is a no-op.
func withSessionTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return withSession(ctx, pool, func(q querier) error {
		conn, okConn := q.(*pgxpool.Conn)
		if !okConn {
			return fmt.Errorf("database session: %T cannot begin a transaction", q)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// applySession sets all three session variables in a single statement.
// Statement atomicity means a failure leaves none of them applied.
func applySession(ctx context.Context, conn *pgxpool.Conn, tc middleware.TenantContext) error {
	_, err := conn.Exec(ctx,
		`SELECT set_config($1, $2, false), set_config($3, $4, false), set_config($5, $6, false)`,
		varTenantID, tc.TenantID.String(),
		varSystemAdmin, strconv.FormatBool(tc.IsSystemAdmin),
		varUserID, uuidOrEmpty(tc.UserID),
	)
	if err != nil {
		return fmt.Errorf("database session: set variables: %w", err)
	}
	return nil
}

// resetSession clears the session variables so the pooled connection carries
// no tenant identity. Deferred after Release in withSession, so it runs
// first. A connection whose reset fails is closed outright; the pool then
// discards it instead of handing another tenant's request a scoped session.
func resetSession(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionResetTimeout)
	defer cancel()

	_, err := conn.Exec(ctx,
		`SELECT set_config($1, '', false), set_config($2, '', false), set_config($3, '', false)`,
		varTenantID, varSystemAdmin, varUserID)
	if err != nil {
		_ = conn.Conn().Close(ctx)
	}
}

// uuidOrEmpty renders uuid.Nil as "", the unset marker the SQL helper
// functions map back to NULL.
func uuidOrEmpty(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
