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

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Tenant statuses tracked in the registry. A tenant starts as pending and
// moves to ready or failed during schema provisioning.
const (
	TenantStatusPending = "pending"
	TenantStatusReady   = "ready"
	TenantStatusFailed  = "failed"
)

// TenantRecord represents one school in the shared registry.
type TenantRecord struct {
	TenantID   uuid.UUID `db:"tenant_id"`
	Slug       string    `db:"slug"`
	Name       string    `db:"name"`
	SchemaName string    `db:"schema_name"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

// TenantStore provides access to the shared tenants table. It is the
// directory every request consults to resolve which schema to scope to.
type TenantStore struct {
	pool         *pgxpool.Pool
	sharedSchema string
}

// NewTenantStore creates a store; assumes migrations already created the table.
func NewTenantStore(pool *pgxpool.Pool, sharedSchema string) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if err := AssertValidIdentifier(sharedSchema); err != nil {
		return nil, err
	}
	return &TenantStore{pool: pool, sharedSchema: sharedSchema}, nil
}

func (s *TenantStore) table() string {
	return s.sharedSchema + ".tenants"
}

const tenantColumns = "tenant_id, slug, name, schema_name, status, created_at"

// Create inserts a new tenant registry row.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if err := AssertValidIdentifier(rec.SchemaName); err != nil {
		return TenantRecord{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, s.table(), tenantColumns, tenantColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.TenantID, rec.Slug, rec.Name, rec.SchemaName, rec.Status, rec.CreatedAt,
	)
	return scanTenantRecord(row)
}

// Get fetches a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = $1", tenantColumns, s.table())
	return scanTenantRecord(s.pool.QueryRow(ctx, query, id))
}

// GetBySchema resolves a tenant from its schema name.
func (s *TenantStore) GetBySchema(ctx context.Context, schemaName string) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE schema_name = $1", tenantColumns, s.table())
	return scanTenantRecord(s.pool.QueryRow(ctx, query, schemaName))
}

// GetBySlug resolves a tenant from its public slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE slug = $1", tenantColumns, s.table())
	return scanTenantRecord(s.pool.QueryRow(ctx, query, slug))
}

// List returns paginated tenants with an optional status filter.
func (s *TenantStore) List(ctx context.Context, status *string, limit, offset int) ([]TenantRecord, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, *status)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", s.table(), where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s
        ORDER BY created_at DESC
        LIMIT %d OFFSET %d`, tenantColumns, s.table(), where, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// UpdateStatus transitions a tenant's provisioning status.
func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (TenantRecord, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = $2 WHERE tenant_id = $1 RETURNING %s`,
		s.table(), tenantColumns)
	return scanTenantRecord(s.pool.QueryRow(ctx, query, id, status))
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(&rec.TenantID, &rec.Slug, &rec.Name, &rec.SchemaName, &rec.Status, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
