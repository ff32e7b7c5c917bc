package policy

import (
	"context"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
)

// TenantLookup returns the tenant a user belongs to.
type TenantLookup func(ctx context.Context, userID uint) (uint, error)

// TenantPolicy allows access only to resources of the user's own tenant.
// Works with any model that implements models.TenantScoped.
type TenantPolicy struct {
	tenantOf TenantLookup
}

// NewTenantPolicy creates a tenant isolation policy.
func NewTenantPolicy(tenantOf TenantLookup) *TenantPolicy {
	return &TenantPolicy{tenantOf: tenantOf}
}

// Check returns apperr.ErrTenantMismatch when the resource belongs to another tenant.
func (p *TenantPolicy) Check(ctx context.Context, userID uint, _ gate.Action, resource any) error {
	// For list/create, there's no specific resource to check
	if resource == nil {
		return nil
	}
	scoped, ok := resource.(models.TenantScoped)
	if !ok {
		// Unscoped resources are denied so a missing interface never leaks rows
		return gate.ErrForbidden
	}
	tenantID, err := p.tenantOf(ctx, userID)
	if err != nil {
		return err
	}
	if scoped.GetTenantID() != tenantID {
		return apperr.ErrTenantMismatch
	}
	return nil
}

// AdminBypassPolicy wraps another policy and always allows super-admins.
type AdminBypassPolicy struct {
	inner   gate.Policy[uint]
	isAdmin func(ctx context.Context, userID uint) bool
}

// NewAdminBypassPolicy creates a policy that skips inner for super-admins.
func NewAdminBypassPolicy(inner gate.Policy[uint], isAdmin func(ctx context.Context, userID uint) bool) *AdminBypassPolicy {
	return &AdminBypassPolicy{inner: inner, isAdmin: isAdmin}
}

func (p *AdminBypassPolicy) Check(ctx context.Context, userID uint, action gate.Action, resource any) error {
	if p.isAdmin(ctx, userID) {
		return nil
	}
	return p.inner.Check(ctx, userID, action, resource)
}
