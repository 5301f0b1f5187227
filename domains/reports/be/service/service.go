// Package service runs stored and user-authored reports against tenant
// schemas, records every run in the shared audit trail, and maintains the
// daily snapshot history behind trend comparisons.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/query"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/cache"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/storage"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// Domain-level errors surfaced by the service.
var (
	ErrReportNotFound = errors.New("report not found")
	ErrForbidden      = errors.New("report belongs to another tenant")
	ErrTableNotFound  = errors.New("data source table not found in tenant schema")
)

// QueryExecutionError wraps a database rejection of compiled or templated
// SQL. It is recorded on the execution row as failed before being returned,
// so the failure is visible in the audit trail as well as to the caller.
type QueryExecutionError struct {
	ExecutionID uuid.UUID
	Err         error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("report execution %s: %v", e.ExecutionID, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// Result is the outcome of a report run returned to the caller. The
// execution row has already reached its terminal status by the time a
// Result is returned.
type Result struct {
	Execution persistence.ExecutionRecord
	Columns   []string
	Rows      []map[string]any
}

// ExecuteOptions carry per-run inputs shared by both execution paths.
type ExecuteOptions struct {
	Parameters   map[string]any
	ExecutedBy   *uuid.UUID
	ExportFormat string // "", "json" or "csv"
}

type tenantRunner interface {
	WithTenant(ctx context.Context, schemaName string, work func(conn persistence.Querier) error) error
}

type reportCatalog interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (persistence.ReportDefinitionRecord, error)
	GetCustomReport(ctx context.Context, tenantID, id uuid.UUID) (persistence.CustomReportRecord, error)
}

type executionRecorder interface {
	Begin(ctx context.Context, rec persistence.ExecutionRecord) (persistence.ExecutionRecord, error)
	Complete(ctx context.Context, id uuid.UUID, rowCount int, elapsed time.Duration, exportURL *string) (persistence.ExecutionRecord, error)
	Fail(ctx context.Context, id uuid.UUID, elapsed time.Duration, message string) (persistence.ExecutionRecord, error)
}

// Service executes reports. Construct with New.
type Service struct {
	db         tenantRunner
	catalog    reportCatalog
	executions executionRecorder
	snapshots  *Snapshots
	blobs      storage.BlobStore
	tableCache *cache.BoolTTL
	logger     *zap.Logger
	now        func() time.Time
	tableTTL   time.Duration
}

// Deps are the collaborators a Service needs. Blobs may be nil, in which
// case export requests are ignored. Snapshots may be nil for deployments
// that do not keep trend history.
type Deps struct {
	DB         tenantRunner
	Catalog    reportCatalog
	Executions executionRecorder
	Snapshots  *Snapshots
	Blobs      storage.BlobStore
	TableCache *cache.BoolTTL
	Logger     *zap.Logger
}

func New(deps Deps) (*Service, error) {
	if deps.DB == nil {
		return nil, errors.New("tenant db is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("report catalog is required")
	}
	if deps.Executions == nil {
		return nil, errors.New("execution store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.TableCache == nil {
		deps.TableCache = cache.NewBoolTTL()
	}
	return &Service{
		db:         deps.DB,
		catalog:    deps.Catalog,
		executions: deps.Executions,
		snapshots:  deps.Snapshots,
		blobs:      deps.Blobs,
		tableCache: deps.TableCache,
		logger:     deps.Logger,
		now:        time.Now,
		tableTTL:   5 * time.Minute,
	}, nil
}

// ExecuteReport runs a stored report definition for the given tenant. The
// definition's query template is rendered with the tenant schema and the
// caller-supplied parameters, executed inside a scoped connection, and the
// run is recorded whether it succeeds or fails. Tenant-scoped definitions
// additionally feed the daily snapshot history.
func (s *Service) ExecuteReport(ctx context.Context, space tenant.Space, definitionID uuid.UUID, opts ExecuteOptions) (Result, error) {
	def, err := s.catalog.GetDefinition(ctx, definitionID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Result{}, ErrReportNotFound
		}
		return Result{}, fmt.Errorf("load report definition: %w", err)
	}
	if def.TenantID != nil && *def.TenantID != space.TenantID {
		return Result{}, ErrForbidden
	}

	sql, err := query.RenderTemplate(query.TrustedSQL(def.QueryTemplate), space.SchemaName, opts.Parameters)
	if err != nil {
		return Result{}, err
	}

	if def.DataSource != "" {
		if err := s.assertTableExists(ctx, space.SchemaName, def.DataSource); err != nil {
			return Result{}, err
		}
	}

	result, err := s.run(ctx, space, runInput{
		sql:          sql,
		definitionID: &def.ID,
		opts:         opts,
		columns:      declaredColumns(def.Columns),
	})
	if err != nil {
		return result, err
	}

	// Platform-wide definitions aggregate across tenants and custom report
	// types are snapshotted nowhere; only tenant-scoped stored reports keep
	// daily history.
	if s.snapshots != nil && def.TenantID != nil && def.ReportType != "custom" {
		if _, snapErr := s.snapshots.Create(ctx, space.TenantID, def.ID, result.Execution.ID, result.Rows); snapErr != nil {
			s.logger.Warn("snapshot write failed",
				zap.String("tenant_id", space.TenantID.String()),
				zap.String("report_definition_id", def.ID.String()),
				zap.Error(snapErr))
		}
	}
	return result, nil
}

// ExecuteCustomReport loads a persisted custom report spec, recompiles it,
// and runs it under the same outcome-recording contract as stored reports.
// Custom runs never produce snapshots.
func (s *Service) ExecuteCustomReport(ctx context.Context, space tenant.Space, customReportID uuid.UUID, opts ExecuteOptions) (Result, error) {
	rec, err := s.catalog.GetCustomReport(ctx, space.TenantID, customReportID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Result{}, ErrReportNotFound
		}
		return Result{}, fmt.Errorf("load custom report: %w", err)
	}

	spec, err := query.DecodeSpec(rec.Spec)
	if err != nil {
		return Result{}, err
	}
	sql, err := query.Compile(space.SchemaName, spec)
	if err != nil {
		return Result{}, err
	}

	return s.run(ctx, space, runInput{
		sql:            sql,
		customReportID: &rec.ID,
		opts:           opts,
	})
}

type runInput struct {
	sql            string
	definitionID   *uuid.UUID
	customReportID *uuid.UUID
	opts           ExecuteOptions
	columns        []string
}

// run is the shared outcome-recording contract: insert a running execution
// row, execute inside a scoped connection, then move the row to exactly one
// terminal status. Elapsed time is wall clock from before the insert to
// after the terminal update.
func (s *Service) run(ctx context.Context, space tenant.Space, in runInput) (Result, error) {
	started := s.now()

	paramsJSON, err := json.Marshal(in.opts.Parameters)
	if err != nil {
		return Result{}, fmt.Errorf("encode parameters: %w", err)
	}

	exec, err := s.executions.Begin(ctx, persistence.ExecutionRecord{
		ID:                 uuid.New(),
		ReportDefinitionID: in.definitionID,
		CustomReportID:     in.customReportID,
		TenantID:           space.TenantID,
		ExecutedBy:         in.opts.ExecutedBy,
		Parameters:         paramsJSON,
		StartedAt:          started,
	})
	if err != nil {
		return Result{}, fmt.Errorf("record execution start: %w", err)
	}

	var (
		rows    []map[string]any
		columns []string
	)
	queryErr := s.db.WithTenant(ctx, space.SchemaName, func(conn persistence.Querier) error {
		var err error
		rows, columns, err = collectRows(ctx, conn, in.sql)
		return err
	})
	if queryErr != nil {
		elapsed := s.now().Sub(started)
		if _, failErr := s.executions.Fail(ctx, exec.ID, elapsed, queryErr.Error()); failErr != nil {
			s.logger.Error("failed to record execution failure",
				zap.String("execution_id", exec.ID.String()), zap.Error(failErr))
		}
		return Result{}, &QueryExecutionError{ExecutionID: exec.ID, Err: queryErr}
	}

	if len(in.columns) > 0 {
		columns = in.columns
	}

	var exportURL *string
	if in.opts.ExportFormat != "" && s.blobs != nil {
		url, expErr := s.export(ctx, space.TenantID, exec.ID, in.opts.ExportFormat, columns, rows)
		if expErr != nil {
			s.logger.Warn("export failed",
				zap.String("execution_id", exec.ID.String()), zap.Error(expErr))
		} else {
			exportURL = &url
		}
	}

	elapsed := s.now().Sub(started)
	final, err := s.executions.Complete(ctx, exec.ID, len(rows), elapsed, exportURL)
	if err != nil {
		return Result{}, fmt.Errorf("record execution completion: %w", err)
	}

	s.logger.Info("report executed",
		zap.String("tenant_id", space.TenantID.String()),
		zap.String("execution_id", exec.ID.String()),
		zap.Int("row_count", len(rows)),
		zap.Int64("elapsed_ms", elapsed.Milliseconds()))

	return Result{Execution: final, Columns: columns, Rows: rows}, nil
}

// collectRows drains a result set into ordered column names and one map per
// row. Values pass through pgx's native decoding untouched.
func collectRows(ctx context.Context, conn persistence.Querier, sql string) ([]map[string]any, []string, error) {
	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return out, columns, nil
}

// assertTableExists verifies the definition's data source resolves inside
// the tenant schema before a run is recorded, short-circuiting the common
// misconfiguration instead of surfacing it as a failed execution. Lookups
// are cached per schema.table with a short TTL.
func (s *Service) assertTableExists(ctx context.Context, schemaName, table string) error {
	if err := persistence.AssertValidIdentifier(table); err != nil {
		return err
	}

	key := schemaName + "." + table
	if exists, ok := s.tableCache.Get(key); ok {
		if !exists {
			return ErrTableNotFound
		}
		return nil
	}

	var exists bool
	err := s.db.WithTenant(ctx, schemaName, func(conn persistence.Querier) error {
		return conn.QueryRow(ctx,
			"SELECT to_regclass($1) IS NOT NULL", key).Scan(&exists)
	})
	if err != nil {
		return fmt.Errorf("check data source %s: %w", key, err)
	}

	s.tableCache.Put(key, exists, s.now().Add(s.tableTTL))
	if !exists {
		return ErrTableNotFound
	}
	return nil
}

// declaredColumns decodes the definition's column metadata. An empty or
// malformed value means the caller falls back to the result set's own field
// descriptors.
func declaredColumns(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil || len(names) == 0 {
		return nil
	}
	return names
}
