package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"gorm.io/gorm"
)

// Gate resource types.
const (
	// ResourceRFQ covers RFQs, their negotiations and approvals.
	ResourceRFQ      = "rfq"
	ResourceSupplier = "tedarikci"
	ResourceSettings = "ayarlar"
)

// AuthGate holds the configured Gate with caching.
// Use this as a central authorization point in the application.
type AuthGate struct {
	Gate          *gate.Gate[uint]
	CacheResolver *gate.CachedResolver[uint]
	DBResolver    *DBProfileResolver
}

// NewAuthGate creates a gate with a cached DB resolver and tenant isolation
// (bypassed for super-admins) registered for RFQs and suppliers.
func NewAuthGate(db *gorm.DB, cacheTTL time.Duration) *AuthGate {
	dbResolver := NewDBProfileResolver(db)
	cachedResolver := gate.NewCachedResolver[uint](dbResolver, cacheTTL)

	ag := &AuthGate{
		Gate:          gate.New[uint](cachedResolver),
		CacheResolver: cachedResolver,
		DBResolver:    dbResolver,
	}
	tenancy := NewAdminBypassPolicy(NewTenantPolicy(dbResolver.TenantOf), ag.isSuperAdmin)
	ag.RegisterPolicy(ResourceRFQ, tenancy)
	ag.RegisterPolicy(ResourceSupplier, tenancy)
	return ag
}

// RegisterPolicy adds a resource policy.
func (ag *AuthGate) RegisterPolicy(resourceType string, p gate.Policy[uint]) {
	ag.Gate.Register(resourceType, p)
}

// translate maps gate errors to the HTTP error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gate.ErrUnauthenticated):
		return apperr.ErrUnauthorized
	case errors.Is(err, gate.ErrForbidden):
		return apperr.ErrForbidden
	}
	return err
}

// Authorize checks the profile permission and the resource policy for the
// user in ctx.
func (ag *AuthGate) Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return apperr.ErrUnauthorized
	}
	return translate(ag.Gate.Authorize(ctx, userID, action, resourceType, resource))
}

// AuthorizeResource runs only the resource policy, for routes whose profile
// permission was already checked by RequirePermission.
func (ag *AuthGate) AuthorizeResource(ctx context.Context, action gate.Action, resourceType string, resource any) error {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return apperr.ErrUnauthorized
	}
	return translate(ag.Gate.AuthorizeResource(ctx, userID, action, resourceType, resource))
}

// Can is a convenience method that returns bool instead of error.
func (ag *AuthGate) Can(ctx context.Context, action gate.Action, resourceType string, resource any) bool {
	return ag.Authorize(ctx, action, resourceType, resource) == nil
}

func (ag *AuthGate) isSuperAdmin(ctx context.Context, userID uint) bool {
	p, err := ag.CacheResolver.Resolve(ctx, userID)
	return err == nil && gate.IsSuperAdmin(p)
}

// IsSuperAdmin reports whether the user in ctx holds "*:*".
func (ag *AuthGate) IsSuperAdmin(ctx context.Context) bool {
	userID, ok := auth.UserIDFromContext(ctx)
	return ok && ag.isSuperAdmin(ctx, userID)
}

// TenantScope is the tenant list queries of the user in ctx are limited to.
// Super-admins get 0, meaning every tenant.
func (ag *AuthGate) TenantScope(ctx context.Context) (uint, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return 0, apperr.ErrUnauthorized
	}
	if ag.isSuperAdmin(ctx, userID) {
		return 0, nil
	}
	tenantID, err := ag.DBResolver.TenantOf(ctx, userID)
	return tenantID, translate(err)
}

// TenantOf is the tenant of the user in ctx.
func (ag *AuthGate) TenantOf(ctx context.Context) (uint, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return 0, apperr.ErrUnauthorized
	}
	tenantID, err := ag.DBResolver.TenantOf(ctx, userID)
	return tenantID, translate(err)
}

// InvalidateUser clears the cache for a specific user.
// Call this when a user's profile is changed.
func (ag *AuthGate) InvalidateUser(userID uint) {
	ag.CacheResolver.Invalidate(userID)
}

// InvalidateAll clears the entire profile cache.
// Call this when profile permissions are modified.
func (ag *AuthGate) InvalidateAll() {
	ag.CacheResolver.InvalidateAll()
}

// RequirePermission returns middleware that checks the profile permission
// "resourceType:action" and answers 401/403 JSON otherwise.
func (ag *AuthGate) RequirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				httpx.Error(w, r, apperr.ErrUnauthorized)
				return
			}
			if err := ag.Gate.AuthorizeProfile(r.Context(), userID, action, resourceType); err != nil {
				httpx.Error(w, r, translate(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that only allows super-admins.
func (ag *AuthGate) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				httpx.Error(w, r, apperr.ErrUnauthorized)
				return
			}
			if !ag.isSuperAdmin(r.Context(), userID) {
				httpx.Error(w, r, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
