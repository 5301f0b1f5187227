package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/tenant"
)

type fakeResolver struct {
	spaces map[uuid.UUID]tenant.Space
	calls  int
}

func (r *fakeResolver) ResolveSpace(_ context.Context, id uuid.UUID) (tenant.Space, error) {
	r.calls++
	space, ok := r.spaces[id]
	if !ok {
		return tenant.Space{}, errors.New("not found")
	}
	return space, nil
}

func newEcho(t *testing.T, got *tenant.Space) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		space, ok := tenant.FromContext(r.Context())
		if !ok {
			t.Fatal("space missing from context")
		}
		*got = space
		w.WriteHeader(http.StatusOK)
	})
}

func TestWithTenantSpaceAttachesSpace(t *testing.T) {
	id := uuid.New()
	resolver := &fakeResolver{spaces: map[uuid.UUID]tenant.Space{
		id: {TenantID: id, Slug: "acme", SchemaName: "school_acme"},
	}}

	var got tenant.Space
	handler := WithTenantSpace(resolver, Config{})(newEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set(HeaderTenantID, id.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if got.SchemaName != "school_acme" {
		t.Fatalf("unexpected space %+v", got)
	}
}

func TestWithTenantSpaceRejectsBadRequests(t *testing.T) {
	resolver := &fakeResolver{spaces: map[uuid.UUID]tenant.Space{}}
	handler := WithTenantSpace(resolver, Config{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]string{
		"missing header": "",
		"malformed id":   "not-a-uuid",
		"unknown tenant": uuid.NewString(),
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/reports", nil)
			if value != "" {
				req.Header.Set(HeaderTenantID, value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status %d, want 401", rec.Code)
			}
		})
	}
}

func TestWithTenantSpaceCachesResolutions(t *testing.T) {
	id := uuid.New()
	resolver := &fakeResolver{spaces: map[uuid.UUID]tenant.Space{
		id: {TenantID: id, SchemaName: "school_acme"},
	}}

	var got tenant.Space
	handler := WithTenantSpace(resolver, Config{CacheTTL: time.Minute})(newEcho(t, &got))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req.Header.Set(HeaderTenantID, id.String())
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if resolver.calls != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls)
	}
}
