package tenant

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Space captures the resolved tenant routing metadata for a request.
// It is intended to be attached to the context by middleware once the school
// has been resolved from the request headers or token claims.
type Space struct {
	TenantID   uuid.UUID
	Slug       string
	SchemaName string
	Status     string
}

type ctxKey string

const spaceKey ctxKey = "SCHOOLADMIN_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}

// BuildSchemaName returns the canonical PostgreSQL schema name for a school
// given the tenant slug transformed to snake_case. Format: school_<slugSnake>.
// The fixed prefix keeps tenant schemas visually separated from "shared" and
// "public" in the same database cluster.
func BuildSchemaName(slugSnake string) string {
	return "school_" + strings.TrimSpace(slugSnake)
}
