package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the connection surface handed to a scoped unit of work.
// Both *pgxpool.Conn and test doubles satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scopedConn is the pooled connection shape TenantDB manages.
type scopedConn interface {
	Querier
	Release()
}

// evictable is implemented by *pgxpool.Conn; closing the underlying pgx.Conn
// makes the pool destroy the connection on Release instead of reusing it.
type evictable interface {
	Conn() *pgx.Conn
}

// connAcquirer exposes the minimal pgx pool behaviour needed by TenantDB.
type connAcquirer interface {
	Acquire(ctx context.Context) (scopedConn, error)
}

// poolAcquirer adapts *pgxpool.Pool to connAcquirer.
type poolAcquirer struct {
	pool *pgxpool.Pool
}

func (p poolAcquirer) Acquire(ctx context.Context) (scopedConn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnectionLifecycleError reports a failure while switching or restoring the
// session search_path. A connection that hit one of these is untrustworthy and
// is evicted from the pool rather than reused.
type ConnectionLifecycleError struct {
	Op  string
	Err error
}

func (e *ConnectionLifecycleError) Error() string {
	return fmt.Sprintf("connection lifecycle: %s: %v", e.Op, e.Err)
}

func (e *ConnectionLifecycleError) Unwrap() error { return e.Err }

// TenantDB routes units of work to the correct tenant schema over a shared
// pgx pool. Each call borrows one physical connection, pins its search_path
// to the tenant schema for the duration of the work, and restores it before
// the connection goes back to the pool.
type TenantDB struct {
	pool         connAcquirer
	sharedSchema string
}

type TenantDBConfig struct {
	Pool         *pgxpool.Pool
	SharedSchema string
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	if cfg.SharedSchema == "" {
		panic("TenantDB requires shared schema")
	}
	if err := AssertValidIdentifier(cfg.SharedSchema); err != nil {
		panic(err)
	}
	return &TenantDB{pool: poolAcquirer{pool: cfg.Pool}, sharedSchema: cfg.SharedSchema}
}

// SharedSchema returns the schema holding cross-tenant tables.
func (db *TenantDB) SharedSchema() string { return db.sharedSchema }

// WithTenant acquires one connection, sets its search_path to
// "<schemaName>, public", and invokes work with it. On every exit path the
// search_path is restored to public and the connection released. The SET is
// guaranteed to complete before work begins, and work is guaranteed to finish
// (return or fail) before the restore runs; nothing here may be reordered,
// because a connection returned to the shared pool with a tenant search_path
// silently exposes that tenant's data to the next borrower.
func (db *TenantDB) WithTenant(ctx context.Context, schemaName string, work func(conn Querier) error) (err error) {
	if idErr := AssertValidIdentifier(schemaName); idErr != nil {
		return idErr
	}

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	defer func() {
		// The restore must run even when ctx is already canceled, so it gets
		// a detached context. If restoring fails the connection cannot be
		// trusted with any future borrower and is closed so the pool discards
		// it on Release.
		restoreCtx := context.WithoutCancel(ctx)
		if _, restoreErr := conn.Exec(restoreCtx, "SET search_path TO public"); restoreErr != nil {
			if ev, ok := conn.(evictable); ok {
				if raw := ev.Conn(); raw != nil {
					_ = raw.Close(restoreCtx)
				}
			}
			if err == nil {
				err = &ConnectionLifecycleError{Op: "restore search_path", Err: restoreErr}
			}
		}
		conn.Release()
	}()

	// schemaName passed AssertValidIdentifier above; identifiers cannot be
	// bound as statement parameters.
	if _, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schemaName)); err != nil {
		return &ConnectionLifecycleError{Op: "set search_path", Err: err}
	}

	return work(conn)
}

// WithShared runs work against the shared schema that owns the cross-tenant
// tables (tenants, report definitions, executions, snapshots).
func (db *TenantDB) WithShared(ctx context.Context, work func(conn Querier) error) error {
	return db.WithTenant(ctx, db.sharedSchema, work)
}
