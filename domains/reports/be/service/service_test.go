package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// fakeRows replays a canned result set through the pgx.Rows interface.
type fakeRows struct {
	columns []string
	values  [][]any
	idx     int
}

func (r *fakeRows) Close()                       {}
func (r *fakeRows) Err() error                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.values) {
		return false
	}
	r.idx++
	return true
}
func (r *fakeRows) Scan(...any) error    { return errors.New("not implemented") }
func (r *fakeRows) Values() ([]any, error) { return r.values[r.idx-1], nil }
func (r *fakeRows) RawValues() [][]byte  { return nil }
func (r *fakeRows) Conn() *pgx.Conn      { return nil }

// fakeQuerier serves queries from canned result sets keyed by substring.
type fakeQuerier struct {
	rows     *fakeRows
	queryErr error
	queries  []string
}

func (q *fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.queries = append(q.queries, sql)
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return q.rows, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.queries = append(q.queries, sql)
	return existsRow{}
}

type existsRow struct{}

func (existsRow) Scan(dest ...any) error {
	if b, ok := dest[0].(*bool); ok {
		*b = true
	}
	return nil
}

// fakeTenantDB hands the fake querier to work, recording the schema used.
type fakeTenantDB struct {
	querier *fakeQuerier
	schemas []string
}

func (db *fakeTenantDB) WithTenant(_ context.Context, schemaName string, work func(conn persistence.Querier) error) error {
	db.schemas = append(db.schemas, schemaName)
	return work(db.querier)
}

type fakeCatalog struct {
	definitions map[uuid.UUID]persistence.ReportDefinitionRecord
	custom      map[uuid.UUID]persistence.CustomReportRecord
}

func (c *fakeCatalog) GetDefinition(_ context.Context, id uuid.UUID) (persistence.ReportDefinitionRecord, error) {
	rec, ok := c.definitions[id]
	if !ok {
		return persistence.ReportDefinitionRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (c *fakeCatalog) GetCustomReport(_ context.Context, tenantID, id uuid.UUID) (persistence.CustomReportRecord, error) {
	rec, ok := c.custom[id]
	if !ok || rec.TenantID != tenantID {
		return persistence.CustomReportRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

// fakeExecutions records the lifecycle calls made against the audit trail.
type fakeExecutions struct {
	began     []persistence.ExecutionRecord
	completed []uuid.UUID
	failed    []uuid.UUID
	failMsg   string
	rowCounts []int
}

func (e *fakeExecutions) Begin(_ context.Context, rec persistence.ExecutionRecord) (persistence.ExecutionRecord, error) {
	rec.Status = persistence.ExecutionStatusRunning
	e.began = append(e.began, rec)
	return rec, nil
}

func (e *fakeExecutions) Complete(_ context.Context, id uuid.UUID, rowCount int, elapsed time.Duration, exportURL *string) (persistence.ExecutionRecord, error) {
	e.completed = append(e.completed, id)
	e.rowCounts = append(e.rowCounts, rowCount)
	completed := time.Now()
	return persistence.ExecutionRecord{
		ID: id, Status: persistence.ExecutionStatusCompleted,
		RowCount: rowCount, ExecutionTimeMs: elapsed.Milliseconds(),
		CompletedAt: &completed, ExportURL: exportURL,
	}, nil
}

func (e *fakeExecutions) Fail(_ context.Context, id uuid.UUID, elapsed time.Duration, message string) (persistence.ExecutionRecord, error) {
	e.failed = append(e.failed, id)
	e.failMsg = message
	return persistence.ExecutionRecord{ID: id, Status: persistence.ExecutionStatusFailed}, nil
}

func space() tenant.Space {
	return tenant.Space{
		TenantID:   uuid.MustParse("6b1f3c54-2f6e-4f3a-9c41-51b0c1d60c01"),
		Slug:       "acme",
		SchemaName: "school_acme",
		Status:     persistence.TenantStatusReady,
	}
}

func newTestService(t *testing.T, db *fakeTenantDB, catalog *fakeCatalog, execs *fakeExecutions) *Service {
	t.Helper()
	svc, err := New(Deps{DB: db, Catalog: catalog, Executions: execs})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestExecuteReportRendersTemplateAndRecordsCompletion(t *testing.T) {
	sp := space()
	defID := uuid.New()
	catalog := &fakeCatalog{definitions: map[uuid.UUID]persistence.ReportDefinitionRecord{
		defID: {
			ID:            defID,
			TenantID:      &sp.TenantID,
			ReportType:    "attendance",
			QueryTemplate: "SELECT status, COUNT(*) AS n FROM {{schema}}.attendance WHERE term = {{term}} GROUP BY status",
		},
	}}
	querier := &fakeQuerier{rows: &fakeRows{
		columns: []string{"status", "n"},
		values:  [][]any{{"present", int64(42)}, {"absent", int64(3)}},
	}}
	db := &fakeTenantDB{querier: querier}
	execs := &fakeExecutions{}
	svc := newTestService(t, db, catalog, execs)

	result, err := svc.ExecuteReport(context.Background(), sp, defID, ExecuteOptions{
		Parameters: map[string]any{"term": "fall"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(querier.queries) != 1 {
		t.Fatalf("expected one query, got %v", querier.queries)
	}
	want := "SELECT status, COUNT(*) AS n FROM school_acme.attendance WHERE term = 'fall' GROUP BY status"
	if querier.queries[0] != want {
		t.Fatalf("got query %q, want %q", querier.queries[0], want)
	}
	if len(db.schemas) != 1 || db.schemas[0] != "school_acme" {
		t.Fatalf("expected one scoped call to school_acme, got %v", db.schemas)
	}

	if len(execs.began) != 1 || len(execs.completed) != 1 || len(execs.failed) != 0 {
		t.Fatalf("unexpected lifecycle: began=%d completed=%d failed=%d",
			len(execs.began), len(execs.completed), len(execs.failed))
	}
	if execs.rowCounts[0] != 2 {
		t.Fatalf("row count %d, want 2", execs.rowCounts[0])
	}
	if result.Execution.Status != persistence.ExecutionStatusCompleted {
		t.Fatalf("status %q", result.Execution.Status)
	}
	if len(result.Rows) != 2 || result.Rows[0]["status"] != "present" {
		t.Fatalf("unexpected rows %v", result.Rows)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "status" {
		t.Fatalf("unexpected columns %v", result.Columns)
	}
}

func TestExecuteReportFailureIsRecordedThenReturned(t *testing.T) {
	sp := space()
	defID := uuid.New()
	catalog := &fakeCatalog{definitions: map[uuid.UUID]persistence.ReportDefinitionRecord{
		defID: {ID: defID, TenantID: &sp.TenantID, QueryTemplate: "SELECT * FROM {{schema}}.grades"},
	}}
	querier := &fakeQuerier{queryErr: errors.New(`relation "grades" does not exist`)}
	execs := &fakeExecutions{}
	svc := newTestService(t, &fakeTenantDB{querier: querier}, catalog, execs)

	_, err := svc.ExecuteReport(context.Background(), sp, defID, ExecuteOptions{})
	var qerr *QueryExecutionError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}

	if len(execs.failed) != 1 {
		t.Fatalf("failure not recorded: %v", execs.failed)
	}
	if execs.failed[0] != qerr.ExecutionID {
		t.Fatalf("recorded %s, returned %s", execs.failed[0], qerr.ExecutionID)
	}
	if !strings.Contains(execs.failMsg, "does not exist") {
		t.Fatalf("error message not recorded: %q", execs.failMsg)
	}
	if len(execs.completed) != 0 {
		t.Fatal("failed run must not also complete")
	}
}

func TestExecuteReportRejectsOtherTenantsDefinition(t *testing.T) {
	sp := space()
	other := uuid.New()
	defID := uuid.New()
	catalog := &fakeCatalog{definitions: map[uuid.UUID]persistence.ReportDefinitionRecord{
		defID: {ID: defID, TenantID: &other, QueryTemplate: "SELECT 1"},
	}}
	execs := &fakeExecutions{}
	svc := newTestService(t, &fakeTenantDB{querier: &fakeQuerier{}}, catalog, execs)

	_, err := svc.ExecuteReport(context.Background(), sp, defID, ExecuteOptions{})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(execs.began) != 0 {
		t.Fatal("forbidden run must not be recorded")
	}
}

func TestExecuteReportPrefersDeclaredColumns(t *testing.T) {
	sp := space()
	defID := uuid.New()
	catalog := &fakeCatalog{definitions: map[uuid.UUID]persistence.ReportDefinitionRecord{
		defID: {
			ID: defID, TenantID: &sp.TenantID,
			QueryTemplate: "SELECT * FROM {{schema}}.invoices",
			Columns:       []byte(`["Invoice Number", "Amount Due"]`),
		},
	}}
	querier := &fakeQuerier{rows: &fakeRows{
		columns: []string{"number", "amount"},
		values:  [][]any{{"INV-1", float64(120)}},
	}}
	svc := newTestService(t, &fakeTenantDB{querier: querier}, catalog, &fakeExecutions{})

	result, err := svc.ExecuteReport(context.Background(), sp, defID, ExecuteOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "Invoice Number" {
		t.Fatalf("declared columns not preferred: %v", result.Columns)
	}
}

func TestExecuteCustomReportCompilesStoredSpec(t *testing.T) {
	sp := space()
	customID := uuid.New()
	catalog := &fakeCatalog{custom: map[uuid.UUID]persistence.CustomReportRecord{
		customID: {
			ID: customID, TenantID: sp.TenantID,
			Spec: []byte(`{
			  "dataSources": ["invoices"],
			  "selectedColumns": [{"table": "invoices", "column": "amount", "aggregate": "sum", "alias": "total"}],
			  "filters": [{"column": "status", "operator": "=", "value": "paid"}]
			}`),
		},
	}}
	querier := &fakeQuerier{rows: &fakeRows{
		columns: []string{"total"},
		values:  [][]any{{float64(990)}},
	}}
	execs := &fakeExecutions{}
	svc := newTestService(t, &fakeTenantDB{querier: querier}, catalog, execs)

	result, err := svc.ExecuteCustomReport(context.Background(), sp, customID, ExecuteOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := "SELECT SUM(school_acme.invoices.amount) AS total " +
		"FROM school_acme.invoices WHERE school_acme.invoices.status = 'paid'"
	if querier.queries[0] != want {
		t.Fatalf("got query %q, want %q", querier.queries[0], want)
	}
	if execs.began[0].CustomReportID == nil || *execs.began[0].CustomReportID != customID {
		t.Fatal("execution row must reference the custom report")
	}
	if execs.began[0].ReportDefinitionID != nil {
		t.Fatal("custom run must not reference a definition")
	}
	if result.Rows[0]["total"] != float64(990) {
		t.Fatalf("unexpected rows %v", result.Rows)
	}
}

func TestExecuteCustomReportUnknownIDFailsBeforeRecording(t *testing.T) {
	sp := space()
	execs := &fakeExecutions{}
	svc := newTestService(t, &fakeTenantDB{querier: &fakeQuerier{}}, &fakeCatalog{}, execs)

	_, err := svc.ExecuteCustomReport(context.Background(), sp, uuid.New(), ExecuteOptions{})
	if !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
	if len(execs.began) != 0 {
		t.Fatal("missing report must not create an execution row")
	}
}

func TestAssertTableExistsCachesLookups(t *testing.T) {
	sp := space()
	defID := uuid.New()
	catalog := &fakeCatalog{definitions: map[uuid.UUID]persistence.ReportDefinitionRecord{
		defID: {
			ID: defID, TenantID: &sp.TenantID,
			DataSource:    "attendance",
			QueryTemplate: "SELECT * FROM {{schema}}.attendance",
		},
	}}
	querier := &fakeQuerier{rows: &fakeRows{columns: []string{"id"}}}
	db := &fakeTenantDB{querier: querier}
	svc := newTestService(t, db, catalog, &fakeExecutions{})

	for i := 0; i < 3; i++ {
		if _, err := svc.ExecuteReport(context.Background(), sp, defID, ExecuteOptions{}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	existenceChecks := 0
	for _, q := range querier.queries {
		if strings.Contains(q, "to_regclass") {
			existenceChecks++
		}
	}
	if existenceChecks != 1 {
		t.Fatalf("expected one cached existence check, got %d (queries: %v)", existenceChecks, querier.queries)
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := renderCSV(
		[]string{"name", "amount"},
		[]map[string]any{
			{"name": "ada, inc", "amount": float64(10)},
			{"name": nil, "amount": int64(3)},
		},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "name,amount\n\"ada, inc\",10\n,3\n"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}
