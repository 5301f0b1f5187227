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

// ScheduledReportRecord is a recurring report registration. NextRunAt is
// recomputed by the scheduling resolver whenever the schedule changes or
// after a run; this store never computes it.
type ScheduledReportRecord struct {
	ID                 uuid.UUID  `db:"id"`
	TenantID           uuid.UUID  `db:"tenant_id"`
	ReportDefinitionID uuid.UUID  `db:"report_definition_id"`
	ScheduleType       string     `db:"schedule_type"`
	ScheduleConfig     []byte     `db:"schedule_config"`
	Parameters         []byte     `db:"parameters"`
	ExportFormat       string     `db:"export_format"`
	Recipients         []string   `db:"recipients"`
	NextRunAt          time.Time  `db:"next_run_at"`
	LastRunAt          *time.Time `db:"last_run_at"`
	IsActive           bool       `db:"is_active"`
}

// ScheduleStore provides access to the shared scheduled_reports table. It
// exposes exactly the three operations the external trigger needs: fetch due
// rows, which the trigger follows with an execution, then update next run.
type ScheduleStore struct {
	pool         *pgxpool.Pool
	sharedSchema string
}

func NewScheduleStore(pool *pgxpool.Pool, sharedSchema string) (*ScheduleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return nil, err
	}
	return &ScheduleStore{pool: pool, sharedSchema: sharedSchema}, nil
}

func (s *ScheduleStore) table() string { return s.sharedSchema + ".scheduled_reports" }

const scheduledReportColumns = `id, tenant_id, report_definition_id, schedule_type, schedule_config,
        parameters, export_format, recipients, next_run_at, last_run_at, is_active`

// Create registers a new scheduled report.
func (s *ScheduleStore) Create(ctx context.Context, rec ScheduledReportRecord) (ScheduledReportRecord, error) {
	if rec.ID == uuid.Nil {
		return ScheduledReportRecord{}, errors.New("scheduled report id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, TRUE)
        RETURNING %s
    `, s.table(), scheduledReportColumns, scheduledReportColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ID, rec.TenantID, rec.ReportDefinitionID, rec.ScheduleType, rec.ScheduleConfig,
		rec.Parameters, rec.ExportFormat, rec.Recipients, rec.NextRunAt,
	)
	return scanScheduledReport(row)
}

// Get fetches one scheduled report by ID.
func (s *ScheduleStore) Get(ctx context.Context, id uuid.UUID) (ScheduledReportRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", scheduledReportColumns, s.table())
	return scanScheduledReport(s.pool.QueryRow(ctx, query, id))
}

// ListByTenant returns a tenant's scheduled reports.
func (s *ScheduleStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]ScheduledReportRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY next_run_at ASC`,
		scheduledReportColumns, s.table())
	return s.queryMany(ctx, query, tenantID)
}

// Due returns active scheduled reports whose next run is at or before now.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time) ([]ScheduledReportRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE is_active = TRUE AND next_run_at <= $1
        ORDER BY next_run_at ASC`, scheduledReportColumns, s.table())
	return s.queryMany(ctx, query, now)
}

// UpdateNextRun records a completed run and the recomputed next occurrence.
func (s *ScheduleStore) UpdateNextRun(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) (ScheduledReportRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET last_run_at = $2, next_run_at = $3 WHERE id = $1
        RETURNING %s
    `, s.table(), scheduledReportColumns)
	return scanScheduledReport(s.pool.QueryRow(ctx, query, id, lastRunAt, nextRunAt))
}

// SetActive flips the schedule on or off.
func (s *ScheduleStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := fmt.Sprintf("UPDATE %s SET is_active = $2 WHERE id = $1", s.table())
	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) queryMany(ctx context.Context, query string, args ...any) ([]ScheduledReportRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ScheduledReportRecord
	for rows.Next() {
		rec, err := scanScheduledReport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanScheduledReport(row pgx.Row) (ScheduledReportRecord, error) {
	var rec ScheduledReportRecord
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.ReportDefinitionID, &rec.ScheduleType,
		&rec.ScheduleConfig, &rec.Parameters, &rec.ExportFormat, &rec.Recipients,
		&rec.NextRunAt, &rec.LastRunAt, &rec.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScheduledReportRecord{}, ErrNotFound
		}
		return ScheduledReportRecord{}, err
	}
	return rec, nil
}
