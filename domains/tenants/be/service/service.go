// Package service implements the tenant directory: registering schools,
// driving schema provisioning, and resolving request tenancy for the rest of
// the platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflictSlug = errors.New("tenant slug already exists")
	ErrNotReady     = errors.New("tenant is not ready")
	ErrInvalidSlug  = errors.New("tenant slug is invalid")
)

// Tenant is the directory entry for one school.
type Tenant struct {
	ID         uuid.UUID
	Slug       string
	Name       string
	SchemaName string
	Status     string
	CreatedAt  time.Time
}

// CreateInput is the request to register a school.
type CreateInput struct {
	Slug string
	Name string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *string
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Tenant, error)
}

// Provisioner prepares one aspect of a new tenant's environment (schema,
// object storage, ...). Provisioners run in registration order and the first
// failure marks the tenant failed.
type Provisioner interface {
	Name() string
	Provision(ctx context.Context, space tenant.Space) error
}

// Service provides tenant directory operations.
type Service struct {
	repo         Repository
	provisioners []Provisioner
	logger       *zap.Logger
}

// New constructs a Service. Provisioners may be empty, in which case created
// tenants go straight to ready.
func New(repo Repository, provisioners []Provisioner, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, provisioners: provisioners, logger: logger}
}

// Create registers a school and provisions its environment. The tenant row
// is written with status pending before any provisioning runs, so a crash
// mid-provisioning leaves an inspectable record rather than nothing.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrInvalidSlug, err)
	}

	schemaName := tenant.BuildSchemaName(tenant.ToSnake(slug))
	if err := persistence.AssertValidIdentifier(schemaName); err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrInvalidSlug, err)
	}

	t, err := s.repo.Create(ctx, Tenant{
		ID:         uuid.New(),
		Slug:       slug,
		Name:       input.Name,
		SchemaName: schemaName,
		Status:     persistence.TenantStatusPending,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return Tenant{}, err
	}

	space := tenant.Space{
		TenantID:   t.ID,
		Slug:       t.Slug,
		SchemaName: t.SchemaName,
		Status:     t.Status,
	}
	for _, p := range s.provisioners {
		if provErr := p.Provision(ctx, space); provErr != nil {
			s.logger.Error("tenant provisioning failed",
				zap.String("tenant_id", t.ID.String()),
				zap.String("provisioner", p.Name()),
				zap.Error(provErr))
			if failed, updErr := s.repo.UpdateStatus(ctx, t.ID, persistence.TenantStatusFailed); updErr == nil {
				t = failed
			}
			return t, fmt.Errorf("provision %s: %w", p.Name(), provErr)
		}
	}

	ready, err := s.repo.UpdateStatus(ctx, t.ID, persistence.TenantStatusReady)
	if err != nil {
		return t, err
	}

	s.logger.Info("tenant provisioned",
		zap.String("tenant_id", ready.ID.String()),
		zap.String("schema", ready.SchemaName))
	return ready, nil
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns a tenant by slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return s.repo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

// List tenants with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 20
	}
	return s.repo.List(ctx, opts)
}

// Retry re-runs provisioning for a tenant stuck in pending or failed.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if t.Status == persistence.TenantStatusReady {
		return t, nil
	}

	space := tenant.Space{TenantID: t.ID, Slug: t.Slug, SchemaName: t.SchemaName, Status: t.Status}
	for _, p := range s.provisioners {
		if provErr := p.Provision(ctx, space); provErr != nil {
			if failed, updErr := s.repo.UpdateStatus(ctx, t.ID, persistence.TenantStatusFailed); updErr == nil {
				t = failed
			}
			return t, fmt.Errorf("provision %s: %w", p.Name(), provErr)
		}
	}
	return s.repo.UpdateStatus(ctx, t.ID, persistence.TenantStatusReady)
}

// ResolveSpace returns the routing metadata middleware attaches to request
// contexts. Only ready tenants resolve; anything else is indistinguishable
// from absent to callers, so half-provisioned schemas never serve traffic.
func (s *Service) ResolveSpace(ctx context.Context, id uuid.UUID) (tenant.Space, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Space{}, err
	}
	if t.Status != persistence.TenantStatusReady {
		return tenant.Space{}, ErrNotReady
	}
	return tenant.Space{
		TenantID:   t.ID,
		Slug:       t.Slug,
		SchemaName: t.SchemaName,
		Status:     t.Status,
	}, nil
}
