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

// ReportDefinitionRecord is an admin-authored, reusable parameterized report.
// TenantID is nil for platform-wide definitions available to every school.
// The query template is immutable after creation; rows are only ever
// deactivated, never deleted, because executions keep referencing them.
type ReportDefinitionRecord struct {
	ID            uuid.UUID  `db:"id"`
	TenantID      *uuid.UUID `db:"tenant_id"`
	Name          string     `db:"name"`
	ReportType    string     `db:"report_type"`
	DataSource    string     `db:"data_source"`
	QueryTemplate string     `db:"query_template"`
	Parameters    []byte     `db:"parameters"`
	Columns       []byte     `db:"columns"`
	Filters       []byte     `db:"filters"`
	RolePerms     []byte     `db:"role_permissions"`
	IsActive      bool       `db:"is_active"`
	CreatedAt     time.Time  `db:"created_at"`
}

// CustomReportRecord is an end-user-authored declarative report. Spec holds
// the JSON wire shape compiled on demand by the query compiler.
type CustomReportRecord struct {
	ID                uuid.UUID `db:"id"`
	TenantID          uuid.UUID `db:"tenant_id"`
	Name              string    `db:"name"`
	Spec              []byte    `db:"spec"`
	VisualizationType string    `db:"visualization_type"`
	IsShared          bool      `db:"is_shared"`
	CreatedBy         uuid.UUID `db:"created_by"`
	CreatedAt         time.Time `db:"created_at"`
}

// ReportStore provides access to the shared report_definitions and
// custom_reports tables.
type ReportStore struct {
	pool         *pgxpool.Pool
	sharedSchema string
}

func NewReportStore(pool *pgxpool.Pool, sharedSchema string) (*ReportStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return nil, err
	}
	return &ReportStore{pool: pool, sharedSchema: sharedSchema}, nil
}

const reportDefinitionColumns = `id, tenant_id, name, report_type, data_source, query_template,
        parameters, columns, filters, role_permissions, is_active, created_at`

func (s *ReportStore) definitionsTable() string { return s.sharedSchema + ".report_definitions" }
func (s *ReportStore) customTable() string      { return s.sharedSchema + ".custom_reports" }

// CreateDefinition inserts a new report definition.
func (s *ReportStore) CreateDefinition(ctx context.Context, rec ReportDefinitionRecord) (ReportDefinitionRecord, error) {
	if rec.ID == uuid.Nil {
		return ReportDefinitionRecord{}, errors.New("definition id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
        RETURNING %s
    `, s.definitionsTable(), reportDefinitionColumns, reportDefinitionColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.Name, rec.ReportType, rec.DataSource, rec.QueryTemplate,
		rec.Parameters, rec.Columns, rec.Filters, rec.RolePerms, rec.CreatedAt,
	)
	return scanReportDefinition(row)
}

// GetDefinition fetches an active report definition by ID.
func (s *ReportStore) GetDefinition(ctx context.Context, id uuid.UUID) (ReportDefinitionRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 AND is_active = TRUE",
		reportDefinitionColumns, s.definitionsTable())
	return scanReportDefinition(s.pool.QueryRow(ctx, query, id))
}

// ListDefinitions returns active definitions visible to a tenant: its own
// plus platform-wide ones (tenant_id IS NULL).
func (s *ReportStore) ListDefinitions(ctx context.Context, tenantID uuid.UUID) ([]ReportDefinitionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE is_active = TRUE AND (tenant_id = $1 OR tenant_id IS NULL)
        ORDER BY created_at DESC`, reportDefinitionColumns, s.definitionsTable())

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ReportDefinitionRecord
	for rows.Next() {
		rec, err := scanReportDefinition(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeactivateDefinition performs the logical delete. The row stays because
// executions reference it.
func (s *ReportStore) DeactivateDefinition(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE WHERE id = $1", s.definitionsTable())
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const customReportColumns = "id, tenant_id, name, spec, visualization_type, is_shared, created_by, created_at"

// CreateCustomReport persists an end-user report spec.
func (s *ReportStore) CreateCustomReport(ctx context.Context, rec CustomReportRecord) (CustomReportRecord, error) {
	if rec.ID == uuid.Nil {
		return CustomReportRecord{}, errors.New("custom report id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, s.customTable(), customReportColumns, customReportColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.Name, rec.Spec, rec.VisualizationType,
		rec.IsShared, rec.CreatedBy, rec.CreatedAt,
	)
	return scanCustomReport(row)
}

// GetCustomReport fetches a custom report spec by ID, scoped to its tenant.
func (s *ReportStore) GetCustomReport(ctx context.Context, tenantID, id uuid.UUID) (CustomReportRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 AND tenant_id = $2",
		customReportColumns, s.customTable())
	return scanCustomReport(s.pool.QueryRow(ctx, query, id, tenantID))
}

// ListCustomReports returns a tenant's custom reports, shared ones first.
func (s *ReportStore) ListCustomReports(ctx context.Context, tenantID uuid.UUID) ([]CustomReportRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1
        ORDER BY is_shared DESC, created_at DESC`, customReportColumns, s.customTable())

	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CustomReportRecord
	for rows.Next() {
		rec, err := scanCustomReport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanReportDefinition(row pgx.Row) (ReportDefinitionRecord, error) {
	var rec ReportDefinitionRecord
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.ReportType, &rec.DataSource,
		&rec.QueryTemplate, &rec.Parameters, &rec.Columns, &rec.Filters, &rec.RolePerms,
		&rec.IsActive, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReportDefinitionRecord{}, ErrNotFound
		}
		return ReportDefinitionRecord{}, err
	}
	return rec, nil
}

func scanCustomReport(row pgx.Row) (CustomReportRecord, error) {
	var rec CustomReportRecord
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Name, &rec.Spec, &rec.VisualizationType,
		&rec.IsShared, &rec.CreatedBy, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomReportRecord{}, ErrNotFound
		}
		return CustomReportRecord{}, err
	}
	return rec, nil
}
