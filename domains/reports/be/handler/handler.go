// Package handler exposes report definitions, custom reports, executions,
// trends, and schedules over HTTP. All routes expect tenant middleware to
// have attached the school's Space to the request context.
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

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/query"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/schedule"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/domains/reports/be/service"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// Handler wires the reporting stack to its HTTP routes.
type Handler struct {
	reports   *persistence.ReportStore
	execs     *persistence.ExecutionStore
	schedules *persistence.ScheduleStore
	runner    *service.Service
	snapshots *service.Snapshots
	logger    *zap.Logger
}

func New(reports *persistence.ReportStore, execs *persistence.ExecutionStore, schedules *persistence.ScheduleStore, runner *service.Service, snapshots *service.Snapshots, logger *zap.Logger) *Handler {
	if reports == nil || execs == nil || schedules == nil || runner == nil {
		panic("reports handler requires stores and runner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		reports:   reports,
		execs:     execs,
		schedules: schedules,
		runner:    runner,
		snapshots: snapshots,
		logger:    logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/definitions", func(r chi.Router) {
		r.Post("/", h.createDefinition)
		r.Get("/", h.listDefinitions)
		r.Delete("/{definitionID}", h.deactivateDefinition)
		r.Post("/{definitionID}/run", h.runDefinition)
		r.Get("/{definitionID}/trend", h.trend)
		r.Post("/{definitionID}/compare", h.compare)
	})

	r.Route("/custom", func(r chi.Router) {
		r.Post("/", h.createCustomReport)
		r.Get("/", h.listCustomReports)
		r.Get("/{customReportID}", h.getCustomReport)
		r.Post("/{customReportID}/run", h.runCustomReport)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Get("/", h.listExecutions)
		r.Get("/{executionID}", h.getExecution)
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.createSchedule)
		r.Get("/", h.listSchedules)
		r.Post("/{scheduleID}/active", h.setScheduleActive)
	})

	return r
}

// ---- report definitions ----

type createDefinitionRequest struct {
	Name          string          `json:"name"`
	ReportType    string          `json:"reportType"`
	DataSource    string          `json:"dataSource"`
	QueryTemplate string          `json:"queryTemplate"`
	Parameters    json.RawMessage `json:"parameters"`
	Columns       json.RawMessage `json:"columns"`
	Filters       json.RawMessage `json:"filters"`
	RolePerms     json.RawMessage `json:"rolePermissions"`
	PlatformWide  bool            `json:"platformWide"`
}

func (h *Handler) createDefinition(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}

	var req createDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.QueryTemplate == "" {
		writeError(w, http.StatusBadRequest, "name and queryTemplate are required")
		return
	}
	if req.DataSource != "" {
		if err := persistence.AssertValidIdentifier(req.DataSource); err != nil {
			writeError(w, http.StatusBadRequest, "invalid dataSource")
			return
		}
	}

	rec := persistence.ReportDefinitionRecord{
		ID:            uuid.New(),
		Name:          req.Name,
		ReportType:    req.ReportType,
		DataSource:    req.DataSource,
		QueryTemplate: req.QueryTemplate,
		Parameters:    req.Parameters,
		Columns:       req.Columns,
		Filters:       req.Filters,
		RolePerms:     req.RolePerms,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if !req.PlatformWide {
		tenantID := space.TenantID
		rec.TenantID = &tenantID
	}

	created, err := h.reports.CreateDefinition(r.Context(), rec)
	if err != nil {
		h.logger.Error("create definition failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}

	defs, err := h.reports.ListDefinitions(r.Context(), space.TenantID)
	if err != nil {
		h.logger.Error("list definitions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *Handler) deactivateDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "definitionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}
	if err := h.reports.DeactivateDefinition(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "definition not found")
			return
		}
		h.logger.Error("deactivate definition failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "deactivate failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- execution ----

type runRequest struct {
	Parameters   map[string]any `json:"parameters"`
	ExportFormat string         `json:"exportFormat"`
}

type runResponse struct {
	ExecutionID uuid.UUID        `json:"executionId"`
	Status      string           `json:"status"`
	RowCount    int              `json:"rowCount"`
	ElapsedMs   int64            `json:"elapsedMs"`
	ExportURL   *string          `json:"exportUrl,omitempty"`
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
}

func (h *Handler) runDefinition(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "definitionID", func(space tenant.Space, id uuid.UUID, opts service.ExecuteOptions) (service.Result, error) {
		return h.runner.ExecuteReport(r.Context(), space, id, opts)
	})
}

func (h *Handler) runCustomReport(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "customReportID", func(space tenant.Space, id uuid.UUID, opts service.ExecuteOptions) (service.Result, error) {
		return h.runner.ExecuteCustomReport(r.Context(), space, id, opts)
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, param string, execute func(tenant.Space, uuid.UUID, service.ExecuteOptions) (service.Result, error)) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	opts := service.ExecuteOptions{
		Parameters:   req.Parameters,
		ExportFormat: req.ExportFormat,
	}
	if raw := r.Header.Get("X-User-ID"); raw != "" {
		if userID, err := uuid.Parse(raw); err == nil {
			opts.ExecutedBy = &userID
		}
	}

	result, err := execute(space, id, opts)
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		ExecutionID: result.Execution.ID,
		Status:      result.Execution.Status,
		RowCount:    result.Execution.RowCount,
		ElapsedMs:   result.Execution.ExecutionTimeMs,
		ExportURL:   result.Execution.ExportURL,
		Columns:     result.Columns,
		Rows:        result.Rows,
	})
}

func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	var invalidIdent *persistence.InvalidIdentifierError
	var missingSource *query.MissingDataSourceError
	var unsupported *query.UnsupportedOperatorError
	var execErr *service.QueryExecutionError

	switch {
	case errors.Is(err, service.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "report belongs to another tenant")
	case errors.Is(err, service.ErrTableNotFound):
		writeError(w, http.StatusBadRequest, "data source table not found")
	case errors.As(err, &invalidIdent),
		errors.As(err, &missingSource),
		errors.As(err, &unsupported),
		errors.Is(err, query.ErrNoSelectedColumns):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &execErr):
		h.logger.Error("report execution failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":       "query execution failed",
			"executionId": execErr.ExecutionID.String(),
		})
	default:
		h.logger.Error("report run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "execution failed")
	}
}

// ---- custom reports ----

type createCustomReportRequest struct {
	Name              string          `json:"name"`
	Spec              json.RawMessage `json:"spec"`
	VisualizationType string          `json:"visualizationType"`
	IsShared          bool            `json:"isShared"`
}

func (h *Handler) createCustomReport(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}

	var req createCustomReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := query.ValidateSpecJSON(req.Spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var createdBy uuid.UUID
	if raw := r.Header.Get("X-User-ID"); raw != "" {
		createdBy, _ = uuid.Parse(raw)
	}

	created, err := h.reports.CreateCustomReport(r.Context(), persistence.CustomReportRecord{
		ID:                uuid.New(),
		TenantID:          space.TenantID,
		Name:              req.Name,
		Spec:              req.Spec,
		VisualizationType: req.VisualizationType,
		IsShared:          req.IsShared,
		CreatedBy:         createdBy,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("create custom report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listCustomReports(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	reports, err := h.reports.ListCustomReports(r.Context(), space.TenantID)
	if err != nil {
		h.logger.Error("list custom reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) getCustomReport(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "customReportID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	rec, err := h.reports.GetCustomReport(r.Context(), space.TenantID, id)
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.logger.Error("get custom report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ---- executions ----

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}

	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)
	execs, err := h.execs.ListByTenant(r.Context(), space.TenantID, limit, offset)
	if err != nil {
		h.logger.Error("list executions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution id")
		return
	}

	rec, err := h.execs.Get(r.Context(), id)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && rec.TenantID != space.TenantID) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		h.logger.Error("get execution failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ---- trends ----

func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, "trend history is not enabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "definitionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	days := intQuery(r, "days", 30)
	records, err := h.snapshots.HistoricalTrend(r.Context(), space.TenantID, id, days)
	if err != nil {
		h.logger.Error("trend failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "trend failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// compare executes the definition now and diffs the fresh result against the
// most recent prior snapshot in the window (today's own snapshot excluded).
func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, "trend history is not enabled")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "definitionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid definition id")
		return
	}

	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.runner.ExecuteReport(r.Context(), space, id, service.ExecuteOptions{Parameters: req.Parameters})
	if err != nil {
		h.writeRunError(w, err)
		return
	}

	days := intQuery(r, "days", 30)
	cmp, err := h.snapshots.CompareWithHistory(r.Context(), space.TenantID, id, result.Rows, days)
	if err != nil {
		h.logger.Error("compare failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "compare failed")
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// ---- schedules ----

type createScheduleRequest struct {
	ReportDefinitionID uuid.UUID       `json:"reportDefinitionId"`
	ScheduleType       string          `json:"scheduleType"`
	ScheduleConfig     json.RawMessage `json:"scheduleConfig"`
	Parameters         json.RawMessage `json:"parameters"`
	ExportFormat       string          `json:"exportFormat"`
	Recipients         []string        `json:"recipients"`
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportDefinitionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "reportDefinitionId is required")
		return
	}

	cfg, err := schedule.ParseConfig(req.ScheduleConfig)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nextRun, err := schedule.NextRun(req.ScheduleType, cfg, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.schedules.Create(r.Context(), persistence.ScheduledReportRecord{
		ID:                 uuid.New(),
		TenantID:           space.TenantID,
		ReportDefinitionID: req.ReportDefinitionID,
		ScheduleType:       req.ScheduleType,
		ScheduleConfig:     req.ScheduleConfig,
		Parameters:         req.Parameters,
		ExportFormat:       req.ExportFormat,
		Recipients:         req.Recipients,
		NextRunAt:          nextRun,
		IsActive:           true,
	})
	if err != nil {
		h.logger.Error("create schedule failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	space, ok := tenant.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "tenant required")
		return
	}
	schedules, err := h.schedules.ListByTenant(r.Context(), space.TenantID)
	if err != nil {
		h.logger.Error("list schedules failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

func (h *Handler) setScheduleActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.schedules.SetActive(r.Context(), id, req.IsActive); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		h.logger.Error("set schedule active failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

// intQuery reads a non-negative integer query parameter. Anything
// unparseable or negative yields the fallback.
func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
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
