// Package handler exposes the tenant directory over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/tenants/be/service"
)

// Handler wires the tenant service to its HTTP routes.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the tenant directory router, mounted by the API server
// under a path reserved for platform operators.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{tenantID}", h.get)
	r.Post("/{tenantID}/retry", h.retry)
	return r
}

type tenantResponse struct {
	ID         uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	SchemaName string    `json:"schemaName"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:         t.ID,
		Slug:       t.Slug,
		Name:       t.Name,
		SchemaName: t.SchemaName,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
	}
}

type createRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{Slug: req.Slug, Name: req.Name})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSlug):
			writeError(w, http.StatusBadRequest, "invalid slug")
		case errors.Is(err, service.ErrConflictSlug):
			writeError(w, http.StatusConflict, "slug already exists")
		default:
			// Provisioning failures still created the record; report it with
			// its failed status so operators can retry.
			h.logger.Error("tenant create failed", zap.Error(err))
			if created.ID != uuid.Nil {
				writeJSON(w, http.StatusInternalServerError, toResponse(created))
				return
			}
			writeError(w, http.StatusInternalServerError, "tenant creation failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{
		Page:     intQuery(r, "page", 1),
		PageSize: intQuery(r, "pageSize", 20),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("tenant list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if err != nil {
		h.logger.Error("tenant get failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	t, err := h.svc.Retry(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	if err != nil {
		h.logger.Error("tenant retry failed", zap.String("tenant_id", id.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, toResponse(t))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(t))
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
