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

// SnapshotRecord is one dated summary of a report's output. One row exists
// per (tenant, report definition, day); re-running the same report on the
// same day overwrites it, preserving latest-of-day semantics.
type SnapshotRecord struct {
	TenantID           uuid.UUID `db:"tenant_id"`
	ReportDefinitionID uuid.UUID `db:"report_definition_id"`
	ExecutionID        uuid.UUID `db:"execution_id"`
	SnapshotDate       time.Time `db:"snapshot_date"`
	Data               []byte    `db:"data"`
	SummaryMetrics     []byte    `db:"summary_metrics"`
}

// SnapshotStore provides access to the shared report_snapshots table.
type SnapshotStore struct {
	pool         *pgxpool.Pool
	sharedSchema string
}

func NewSnapshotStore(pool *pgxpool.Pool, sharedSchema string) (*SnapshotStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return nil, err
	}
	return &SnapshotStore{pool: pool, sharedSchema: sharedSchema}, nil
}

func (s *SnapshotStore) table() string { return s.sharedSchema + ".report_snapshots" }

const snapshotColumns = "tenant_id, report_definition_id, execution_id, snapshot_date, data, summary_metrics"

// Upsert writes the daily snapshot, overwriting any earlier run from the same day.
func (s *SnapshotStore) Upsert(ctx context.Context, rec SnapshotRecord) (SnapshotRecord, error) {
	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (tenant_id, report_definition_id, snapshot_date)
        DO UPDATE SET execution_id = EXCLUDED.execution_id,
                      data = EXCLUDED.data,
                      summary_metrics = EXCLUDED.summary_metrics
        RETURNING %s
    `, s.table(), snapshotColumns, snapshotColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.TenantID, rec.ReportDefinitionID, rec.ExecutionID, rec.SnapshotDate,
		rec.Data, rec.SummaryMetrics,
	)
	return scanSnapshot(row)
}

// ListSince returns snapshots on or after the cutoff date, ascending by date.
func (s *SnapshotStore) ListSince(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, since time.Time) ([]SnapshotRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE tenant_id = $1 AND report_definition_id = $2 AND snapshot_date >= $3
        ORDER BY snapshot_date ASC`, snapshotColumns, s.table())

	rows, err := s.pool.Query(ctx, query, tenantID, reportDefinitionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Latest returns the most recent snapshot in the half-open window
// [since, before). The exclusive upper bound lets comparison callers look at
// history without picking up the snapshot the current run just wrote.
func (s *SnapshotStore) Latest(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, since, before time.Time) (SnapshotRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE tenant_id = $1 AND report_definition_id = $2
          AND snapshot_date >= $3 AND snapshot_date < $4
        ORDER BY snapshot_date DESC
        LIMIT 1`, snapshotColumns, s.table())

	return scanSnapshot(s.pool.QueryRow(ctx, query, tenantID, reportDefinitionID, since, before))
}

func scanSnapshot(row pgx.Row) (SnapshotRecord, error) {
	var rec SnapshotRecord
	if err := row.Scan(&rec.TenantID, &rec.ReportDefinitionID, &rec.ExecutionID,
		&rec.SnapshotDate, &rec.Data, &rec.SummaryMetrics); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SnapshotRecord{}, ErrNotFound
		}
		return SnapshotRecord{}, err
	}
	return rec, nil
}
