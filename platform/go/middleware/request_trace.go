package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformlogging "github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/logging"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/requesttrace"
	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

// HeaderUserID carries the acting user's id, set by the upstream gateway
// after authentication.
const HeaderUserID = "X-User-ID"

// RequestTrace populates the context with request-scoped AuditInfo so
// services can stamp audit fields. It should run after tenant resolution so
// the audit record carries the tenant when one is bound.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		var tenantID *string
		if space, ok := tenant.FromContext(r.Context()); ok {
			id := space.TenantID.String()
			tenantID = &id
		}

		var audit requesttrace.AuditInfo
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			audit = requesttrace.ForUser(userID, tenantID, requestID)
		} else {
			audit = requesttrace.Anonymous(requestID)
			audit.TenantID = tenantID
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.UserID != nil && *audit.UserID != "" {
				fields = append(fields, zap.String("user_id", *audit.UserID))
			}
			if tenantID != nil {
				fields = append(fields, zap.String("tenant_id", *tenantID))
			}
			logger = logger.With(fields...)
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
