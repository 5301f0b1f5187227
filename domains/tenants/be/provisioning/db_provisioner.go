// Package provisioning prepares the environment of a newly registered
// school: its database schema with the base tables, and its object-storage
// prefix for report exports.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/BenisSula/saas-school-mgmt-system-new-sub005/database"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// DBProvisioner creates the tenant schema and its base tables inside one
// transaction, so a failed run leaves no half-built schema behind.
type DBProvisioner struct {
	pool *pgxpool.Pool
}

func NewDBProvisioner(pool *pgxpool.Pool) *DBProvisioner {
	if pool == nil {
		panic("db provisioner requires pool")
	}
	return &DBProvisioner{pool: pool}
}

func (p *DBProvisioner) Name() string { return "database" }

func (p *DBProvisioner) Provision(ctx context.Context, space tenant.Space) error {
	statements, err := planSchemaStatements(space.SchemaName)
	if err != nil {
		return err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply tenant ddl: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// planSchemaStatements returns the DDL for one tenant schema: create the
// schema, scope the transaction's search path to it, then apply the embedded
// base tables. Split out from Provision so the plan is testable without a
// database.
func planSchemaStatements(schemaName string) ([]string, error) {
	if err := persistence.AssertValidIdentifier(schemaName); err != nil {
		return nil, err
	}

	base := persistence.SplitStatements(sqlassets.TenantBaseTablesSQL)
	if len(base) == 0 {
		return nil, errors.New("embedded tenant base tables are empty")
	}

	statements := make([]string, 0, len(base)+2)
	statements = append(statements,
		"CREATE SCHEMA IF NOT EXISTS "+schemaName,
		fmt.Sprintf("SELECT set_config('search_path', '%s', true)", schemaName),
	)
	statements = append(statements, base...)
	return statements, nil
}
