package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execution statuses. A row is inserted as running and mutated exactly once
// to a terminal status; executions are never deleted (audit trail).
const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

// ExecutionRecord is the audit row for one report run. Exactly one of
// ReportDefinitionID / CustomReportID is set, depending on the execution path.
type ExecutionRecord struct {
	ID                 uuid.UUID  `db:"id"`
	ReportDefinitionID *uuid.UUID `db:"report_definition_id"`
	CustomReportID     *uuid.UUID `db:"custom_report_id"`
	TenantID           uuid.UUID  `db:"tenant_id"`
	ExecutedBy         *uuid.UUID `db:"executed_by"`
	Parameters         []byte     `db:"parameters"`
	Status             string     `db:"status"`
	RowCount           int        `db:"row_count"`
	ExecutionTimeMs    int64      `db:"execution_time_ms"`
	StartedAt          time.Time  `db:"started_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	ErrorMessage       *string    `db:"error_message"`
	ExportURL          *string    `db:"export_url"`
}

// ExecutionStore provides access to the shared report_executions table.
type ExecutionStore struct {
	pool         *pgxpool.Pool
	sharedSchema string
}

func NewExecutionStore(pool *pgxpool.Pool, sharedSchema string) (*ExecutionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return nil, err
	}
	return &ExecutionStore{pool: pool, sharedSchema: sharedSchema}, nil
}

func (s *ExecutionStore) table() string { return s.sharedSchema + ".report_executions" }

const executionColumns = `id, report_definition_id, custom_report_id, tenant_id, executed_by,
        parameters, status, row_count, execution_time_ms, started_at, completed_at,
        error_message, export_url`

// Begin inserts the running execution row before any query runs, so failures
// are observable in the audit trail even when the process dies mid-query.
func (s *ExecutionStore) Begin(ctx context.Context, rec ExecutionRecord) (ExecutionRecord, error) {
	if rec.ID == uuid.Nil {
		return ExecutionRecord{}, errors.New("execution id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6, '%s', 0, 0, $7, NULL, NULL, NULL)
        RETURNING %s
    `, s.table(), executionColumns, ExecutionStatusRunning, executionColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.ReportDefinitionID, rec.CustomReportID, rec.TenantID, rec.ExecutedBy,
		rec.Parameters, rec.StartedAt,
	)
	return scanExecution(row)
}

// Complete marks the execution as completed with its result metadata.
func (s *ExecutionStore) Complete(ctx context.Context, id uuid.UUID, rowCount int, elapsed time.Duration, exportURL *string) (ExecutionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', row_count = $2, execution_time_ms = $3, completed_at = NOW(), export_url = $4
        WHERE id = $1
        RETURNING %s
    `, s.table(), ExecutionStatusCompleted, executionColumns)

	row := s.pool.QueryRow(ctx, query, id, rowCount, elapsed.Milliseconds(), exportURL)
	return scanExecution(row)
}

// Fail marks the execution as failed, recording the raw error message.
func (s *ExecutionStore) Fail(ctx context.Context, id uuid.UUID, elapsed time.Duration, message string) (ExecutionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', execution_time_ms = $2, completed_at = NOW(), error_message = $3
        WHERE id = $1
        RETURNING %s
    `, s.table(), ExecutionStatusFailed, executionColumns)

	row := s.pool.QueryRow(ctx, query, id, elapsed.Milliseconds(), message)
	return scanExecution(row)
}

// Get fetches one execution by ID.
func (s *ExecutionStore) Get(ctx context.Context, id uuid.UUID) (ExecutionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", executionColumns, s.table())
	return scanExecution(s.pool.QueryRow(ctx, query, id))
}

// ListByTenant returns a tenant's executions, newest first. Out-of-range
// paging values are clamped so they never reach the SQL.
func (s *ExecutionStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1
        ORDER BY started_at DESC
        LIMIT %d OFFSET %d`, executionColumns, s.table(), limit, offset)

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanExecution(row pgx.Row) (ExecutionRecord, error) {
	var rec ExecutionRecord
	if err := row.Scan(&rec.ID, &rec.ReportDefinitionID, &rec.CustomReportID, &rec.TenantID,
		&rec.ExecutedBy, &rec.Parameters, &rec.Status, &rec.RowCount, &rec.ExecutionTimeMs,
		&rec.StartedAt, &rec.CompletedAt, &rec.ErrorMessage, &rec.ExportURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExecutionRecord{}, ErrNotFound
		}
		return ExecutionRecord{}, err
	}
	return rec, nil
}
