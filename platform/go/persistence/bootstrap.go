package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/BenisSula/saas-school-mgmt-system-new-sub005/database"
)

// BootstrapSharedSchema creates the shared schema (if missing) and applies the
// cross-tenant bootstrap DDL in a single transaction, in this order:
//  1. shared/tenants.sql
//  2. shared/users.sql
//  3. shared/reports.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for process startup and tests.
func BootstrapSharedSchema(ctx context.Context, pool *pgxpool.Pool, sharedSchema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap shared schema: pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return fmt.Errorf("bootstrap shared schema: %w", err)
	}

	var statements []string
	statements = append(statements, SplitStatements(sqlassets.TenantsSQL)...)
	statements = append(statements, SplitStatements(sqlassets.UsersSQL)...)
	statements = append(statements, SplitStatements(sqlassets.ReportsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+sharedSchema); err != nil {
		return fmt.Errorf("create shared schema: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, sharedSchema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SplitStatements breaks an embedded SQL asset into individual statements.
// Assets are plain DDL without string literals containing semicolons.
func SplitStatements(asset string) []string {
	raw := strings.Split(asset, ";")
	statements := make([]string, 0, len(raw))
	for _, stmt := range raw {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
