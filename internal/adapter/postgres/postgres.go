// Package postgres provides the PostgreSQL connection pool, migration runner
// and the session-scoped store that backs tenant isolation.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/atriumlabs/atrium/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPool creates a pgxpool connection pool from a config.Postgres struct.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// RunMigrations applies all pending goose migrations from the embedded SQL files.
func RunMigrations(ctx context.Context, dsn string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// RollbackMigrations rolls back the last N migrations.
func RollbackMigrations(ctx context.Context, dsn string, steps int) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for rollback: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	for range steps {
		if err := goose.DownContext(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}

	return nil
}

// MigrationVersion returns the current migration version.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return 0, fmt.Errorf("open db for version: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}

	return version, nil
}

// rlsTables are the tables that must carry both ENABLE and FORCE row level
// security. FORCE keeps the table owner subject to the policies, so even raw
// queries on a privileged application connection cannot cross tenants.
var rlsTables = []string{"tenants", "tenant_settings", "users", "refresh_tokens", "tenant_events"}

// VerifyRowSecurity fails when any tenant-aware table is missing row level
// security or when the connected role is allowed to bypass it. Run at startup:
// a misapplied migration or a careless DBA must stop the service, not
// silently disable isolation.
func VerifyRowSecurity(ctx context.Context, pool *pgxpool.Pool) error {
	var role string
	var super, bypass bool
	err := pool.QueryRow(ctx,
		`SELECT rolname, rolsuper, rolbypassrls FROM pg_roles WHERE rolname = current_user`,
	).Scan(&role, &super, &bypass)
	if err != nil {
		return fmt.Errorf("row security check: inspect role: %w", err)
	}
	if super || bypass {
		return fmt.Errorf("row security check: role %q bypasses row level security (superuser=%t bypassrls=%t)",
			role, super, bypass)
	}

	rows, err := pool.Query(ctx,
		`SELECT relname, relrowsecurity, relforcerowsecurity
		 FROM pg_class
		 WHERE relname = ANY($1) AND relkind = 'r'`, rlsTables)
	if err != nil {
		return fmt.Errorf("row security check: %w", err)
	}
	defer rows.Close()

	type rlsState struct{ enabled, forced bool }
	seen := make(map[string]rlsState, len(rlsTables))
	for rows.Next() {
		var name string
		var st rlsState
		if err := rows.Scan(&name, &st.enabled, &st.forced); err != nil {
			return fmt.Errorf("row security check: scan: %w", err)
		}
		seen[name] = st
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row security check: %w", err)
	}

	for _, table := range rlsTables {
		st, ok := seen[table]
		if !ok {
			return fmt.Errorf("row security check: table %s does not exist", table)
		}
		if !st.enabled || !st.forced {
			return fmt.Errorf("row security check: table %s: enabled=%t forced=%t, want both", table, st.enabled, st.forced)
		}
	}
	return nil
}
