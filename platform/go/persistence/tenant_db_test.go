package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeConn satisfies scopedConn and records Exec statements invoked.
type fakeConn struct {
	stmts    []string
	released bool
	failExec map[string]error // statement substring -> forced error
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	for needle, err := range f.failExec {
		if err != nil && strings.Contains(sql, needle) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (f *fakeConn) Release()                                                      { f.released = true }

// fakeAcquirer returns a preconstructed connection.
type fakeAcquirer struct {
	conn     *fakeConn
	err      error
	acquired int
}

func (p *fakeAcquirer) Acquire(ctx context.Context) (scopedConn, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	return p.conn, nil
}

func newTestTenantDB(conn *fakeConn) (*TenantDB, *fakeAcquirer) {
	acq := &fakeAcquirer{conn: conn}
	return &TenantDB{pool: acq, sharedSchema: "shared"}, acq
}

func TestWithTenantSetsThenRestoresSearchPath(t *testing.T) {
	fc := &fakeConn{}
	db, _ := newTestTenantDB(fc)

	var sawStmtsDuringWork int
	err := db.WithTenant(context.Background(), "school_acme", func(conn Querier) error {
		sawStmtsDuringWork = len(fc.stmts)
		_, err := conn.Exec(context.Background(), "SELECT 1")
		return err
	})
	require.NoError(t, err)

	// SET must complete before work starts, restore must run after it ends.
	require.Equal(t, 1, sawStmtsDuringWork)
	require.Equal(t, []string{
		"SET search_path TO school_acme, public",
		"SELECT 1",
		"SET search_path TO public",
	}, fc.stmts)
	require.True(t, fc.released)
}

func TestWithTenantRestoresAndReleasesWhenWorkFails(t *testing.T) {
	fc := &fakeConn{}
	db, _ := newTestTenantDB(fc)

	boom := errors.New("boom")
	err := db.WithTenant(context.Background(), "school_acme", func(conn Querier) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "SET search_path TO public", fc.stmts[len(fc.stmts)-1])
	require.True(t, fc.released)
}

func TestWithTenantRejectsUnsafeSchemaName(t *testing.T) {
	fc := &fakeConn{}
	db, acq := newTestTenantDB(fc)

	for _, schema := range []string{"", "public; DROP TABLE students", "bad-schema", `x"y`, "sch ma"} {
		err := db.WithTenant(context.Background(), schema, func(conn Querier) error { return nil })

		var invalidErr *InvalidIdentifierError
		require.ErrorAs(t, err, &invalidErr, "schema %q", schema)
	}

	// No connection may be touched before validation passes.
	require.Zero(t, acq.acquired)
	require.Empty(t, fc.stmts)
}

func TestWithTenantReleasesWhenRestoreFails(t *testing.T) {
	restoreErr := errors.New("connection gone")
	fc := &fakeConn{failExec: map[string]error{"search_path TO public": restoreErr}}
	db, _ := newTestTenantDB(fc)

	err := db.WithTenant(context.Background(), "school_acme", func(conn Querier) error { return nil })

	var lifecycleErr *ConnectionLifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
	require.ErrorIs(t, err, restoreErr)
	require.True(t, fc.released)
}

func TestWithTenantWorkErrorWinsOverRestoreError(t *testing.T) {
	fc := &fakeConn{failExec: map[string]error{"search_path TO public": errors.New("restore failed")}}
	db, _ := newTestTenantDB(fc)

	boom := errors.New("work failed")
	err := db.WithTenant(context.Background(), "school_acme", func(conn Querier) error { return boom })

	// Cleanup errors must never mask the original failure from work.
	require.ErrorIs(t, err, boom)
	require.True(t, fc.released)
}

func TestWithTenantSetFailureSkipsWork(t *testing.T) {
	fc := &fakeConn{failExec: map[string]error{"school_acme": errors.New("no such schema")}}
	db, _ := newTestTenantDB(fc)

	ran := false
	err := db.WithTenant(context.Background(), "school_acme", func(conn Querier) error {
		ran = true
		return nil
	})

	var lifecycleErr *ConnectionLifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
	require.False(t, ran)
	require.True(t, fc.released)
}

func TestWithSharedScopesToSharedSchema(t *testing.T) {
	fc := &fakeConn{}
	db, _ := newTestTenantDB(fc)

	err := db.WithShared(context.Background(), func(conn Querier) error { return nil })
	require.NoError(t, err)
	require.Equal(t, "SET search_path TO shared, public", fc.stmts[0])
}
