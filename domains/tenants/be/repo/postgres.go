package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/service"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
)

// PostgresRepository backs the tenant directory with the shared tenants table.
type PostgresRepository struct {
	store *persistence.TenantStore
}

func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Create(ctx, persistence.TenantRecord{
		TenantID:   t.ID,
		Slug:       t.Slug,
		Name:       t.Name,
		SchemaName: t.SchemaName,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
	})
	if err != nil {
		return service.Tenant{}, translateError(err)
	}
	return toDomain(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, translateError(err)
	}
	return toDomain(rec), nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	rec, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Tenant{}, translateError(err)
	}
	return toDomain(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	offset := (opts.Page - 1) * opts.PageSize
	records, total, err := r.store.List(ctx, opts.Status, opts.PageSize, offset)
	if err != nil {
		return service.ListResult{}, translateError(err)
	}

	tenants := make([]service.Tenant, 0, len(records))
	for _, rec := range records {
		tenants = append(tenants, toDomain(rec))
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PageSize - 1) / opts.PageSize
	}
	return service.ListResult{
		Tenants:    tenants,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (service.Tenant, error) {
	rec, err := r.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return service.Tenant{}, translateError(err)
	}
	return toDomain(rec), nil
}

func toDomain(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:         rec.TenantID,
		Slug:       rec.Slug,
		Name:       rec.Name,
		SchemaName: rec.SchemaName,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
	}
}

func translateError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return service.ErrConflictSlug
	}
	return err
}
