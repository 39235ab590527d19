package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// DefaultTenantID is the tenant every request belongs to when no
// X-Tenant-ID header is sent. Single-tenant deployments never set the
// header at all.
const DefaultTenantID = "00000000-0000-0000-0000-000000000000"

const headerTenantID = "X-Tenant-ID"

type tenantCtxKey struct{}

// TenantID resolves the request's tenant from the X-Tenant-ID header
// into the context. Tenant IDs are uuid columns all the way down, so a
// malformed header is rejected here with a 400 instead of surfacing as
// a cast error deep inside a store call.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tid := r.Header.Get(headerTenantID)
		switch {
		case tid == "":
			tid = DefaultTenantID
		case uuid.Validate(tid) != nil:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"X-Tenant-ID must be a UUID"}`))
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey{}, tid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantIDFromContext returns the tenant scoping ctx, or
// DefaultTenantID outside an HTTP request (admin commands, tests).
func TenantIDFromContext(ctx context.Context) string {
	if tid, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return tid
	}
	return DefaultTenantID
}
