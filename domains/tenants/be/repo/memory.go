package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/service"
)

// MemoryRepository is an in-memory Repository used by tests and local tools.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]service.Tenant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tenants: make(map[uuid.UUID]service.Tenant)}
}

func (r *MemoryRepository) Create(_ context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tenants {
		if existing.Slug == t.Slug {
			return service.Tenant{}, service.ErrConflictSlug
		}
	}
	r.tenants[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySlug(_ context.Context, slug string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (r *MemoryRepository) List(_ context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []service.Tenant
	for _, t := range r.tenants {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	start := (opts.Page - 1) * opts.PageSize
	if start > total {
		start = total
	}
	end := start + opts.PageSize
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PageSize - 1) / opts.PageSize
	}
	return service.ListResult{
		Tenants:    all[start:end],
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	t.Status = status
	r.tenants[id] = t
	return t, nil
}
