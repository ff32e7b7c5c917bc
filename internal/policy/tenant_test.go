package policy_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/policy"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// mockScoped is a test resource that implements models.TenantScoped.
type mockScoped struct {
	tenantID uint
}

func (m *mockScoped) GetTenantID() uint { return m.tenantID }

// mockUnscoped is a test resource that does NOT implement TenantScoped.
type mockUnscoped struct {
	ID uint
}

func tenantOf(tenants map[uint]uint) policy.TenantLookup {
	return func(_ context.Context, userID uint) (uint, error) {
		t, ok := tenants[userID]
		if !ok {
			return 0, errors.New("unknown user")
		}
		return t, nil
	}
}

func TestTenantPolicy_NilResource(t *testing.T) {
	p := policy.NewTenantPolicy(tenantOf(nil))
	if err := p.Check(context.Background(), 1, gate.ActionRead, nil); err != nil {
		t.Errorf("expected nil resource to be allowed, got %v", err)
	}
}

func TestTenantPolicy_SameTenantAllowed(t *testing.T) {
	p := policy.NewTenantPolicy(tenantOf(map[uint]uint{42: 7}))
	if err := p.Check(context.Background(), 42, gate.ActionWrite, &mockScoped{tenantID: 7}); err != nil {
		t.Errorf("expected same tenant to be allowed, got %v", err)
	}
}

func TestTenantPolicy_OtherTenantDenied(t *testing.T) {
	p := policy.NewTenantPolicy(tenantOf(map[uint]uint{42: 7}))
	err := p.Check(context.Background(), 42, gate.ActionWrite, &mockScoped{tenantID: 8})
	if !errors.Is(err, apperr.ErrTenantMismatch) {
		t.Errorf("expected tenant_mismatch, got %v", err)
	}
}

func TestTenantPolicy_UnscopedResourceDenied(t *testing.T) {
	p := policy.NewTenantPolicy(tenantOf(map[uint]uint{1: 1}))
	if err := p.Check(context.Background(), 1, gate.ActionRead, &mockUnscoped{ID: 1}); !errors.Is(err, gate.ErrForbidden) {
		t.Errorf("expected forbidden for unscoped resource, got %v", err)
	}
}

func TestTenantPolicy_LookupErrorPropagates(t *testing.T) {
	p := policy.NewTenantPolicy(tenantOf(nil))
	if err := p.Check(context.Background(), 5, gate.ActionRead, &mockScoped{tenantID: 1}); err == nil {
		t.Error("expected lookup error")
	}
}

func TestAdminBypassPolicy(t *testing.T) {
	inner := policy.NewTenantPolicy(tenantOf(map[uint]uint{1: 1, 42: 7}))
	isAdmin := func(_ context.Context, userID uint) bool {
		return userID == 1 // User 1 is admin
	}
	p := policy.NewAdminBypassPolicy(inner, isAdmin)
	ctx := context.Background()
	resource := &mockScoped{tenantID: 7}

	if err := p.Check(ctx, 1, gate.ActionWrite, resource); err != nil {
		t.Errorf("expected admin to bypass tenant check, got %v", err)
	}
	if err := p.Check(ctx, 42, gate.ActionWrite, resource); err != nil {
		t.Errorf("expected same-tenant user to pass, got %v", err)
	}
	if err := p.Check(ctx, 42, gate.ActionWrite, &mockScoped{tenantID: 9}); !errors.Is(err, apperr.ErrTenantMismatch) {
		t.Errorf("expected tenant_mismatch for non-admin, got %v", err)
	}
}

func setupGateDB(t *testing.T) (*gorm.DB, *policy.AuthGate) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Tenant{}, &models.Permission{}, &models.Profile{}, &models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, policy.NewAuthGate(db, time.Minute)
}

func createUser(t *testing.T, db *gorm.DB, email string, tenantID uint, codes ...string) models.User {
	t.Helper()
	perms := make([]models.Permission, 0, len(codes))
	for _, c := range codes {
		res, act := gate.Permission(c).Parse()
		p := models.Permission{ResourceType: res, Action: string(act)}
		if err := db.Where("resource_type = ? AND action = ?", res, string(act)).FirstOrCreate(&p).Error; err != nil {
			t.Fatal(err)
		}
		perms = append(perms, p)
	}
	profile := models.Profile{Name: "p-" + email, Permissions: perms}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatal(err)
	}
	u := models.User{Email: email, Password: "x", TenantID: tenantID, ProfileID: &profile.ID}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

func TestAuthGate_TenantIsolationOnRFQ(t *testing.T) {
	db, ag := setupGateDB(t)
	buyer := createUser(t, db, "buyer@a.test", 1, "rfq:write", "rfq:approve")
	admin := createUser(t, db, "root@b.test", 2, "*:*")

	own := &models.Rfq{TenantID: 1}
	foreign := &models.Rfq{TenantID: 3}

	ctx := auth.WithUserID(context.Background(), buyer.ID)
	if err := ag.Authorize(ctx, gate.ActionApprove, policy.ResourceRFQ, own); err != nil {
		t.Fatalf("expected own tenant allowed, got %v", err)
	}
	if err := ag.AuthorizeResource(ctx, gate.ActionWrite, policy.ResourceRFQ, foreign); !errors.Is(err, apperr.ErrTenantMismatch) {
		t.Fatalf("expected tenant_mismatch, got %v", err)
	}
	if err := ag.Authorize(ctx, gate.ActionRead, "ayarlar", nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	adminCtx := auth.WithUserID(context.Background(), admin.ID)
	if err := ag.AuthorizeResource(adminCtx, gate.ActionWrite, policy.ResourceRFQ, foreign); err != nil {
		t.Fatalf("expected super-admin bypass, got %v", err)
	}
	if !ag.IsSuperAdmin(adminCtx) || ag.IsSuperAdmin(ctx) {
		t.Fatal("IsSuperAdmin mismatch")
	}

	if err := ag.Authorize(context.Background(), gate.ActionRead, policy.ResourceRFQ, own); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without user, got %v", err)
	}
}

func TestAuthGate_RequirePermission(t *testing.T) {
	db, ag := setupGateDB(t)
	viewer := createUser(t, db, "viewer@a.test", 1, "ayarlar:read")
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := ag.RequirePermission("ayarlar", gate.ActionWrite)(next)

	cases := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"anonymous", context.Background(), http.StatusUnauthorized},
		{"missing permission", auth.WithUserID(context.Background(), viewer.ID), http.StatusForbidden},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/workflows", nil).WithContext(c.ctx)
			h.ServeHTTP(rr, req)
			if rr.Code != c.want {
				t.Fatalf("status = %d, want %d", rr.Code, c.want)
			}
		})
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil).WithContext(auth.WithUserID(context.Background(), viewer.ID))
	ag.RequirePermission("ayarlar", gate.ActionRead)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}
}

func TestAuthGate_TenantScope(t *testing.T) {
	db, ag := setupGateDB(t)
	buyer := createUser(t, db, "buyer@a.test", 4, "tedarikci:read")
	admin := createUser(t, db, "root@b.test", 2, "*:*")

	scope, err := ag.TenantScope(auth.WithUserID(context.Background(), buyer.ID))
	if err != nil || scope != 4 {
		t.Fatalf("buyer scope = %d, %v", scope, err)
	}
	scope, err = ag.TenantScope(auth.WithUserID(context.Background(), admin.ID))
	if err != nil || scope != 0 {
		t.Fatalf("admin scope = %d, %v", scope, err)
	}
	if tenant, _ := ag.TenantOf(auth.WithUserID(context.Background(), admin.ID)); tenant != 2 {
		t.Fatalf("admin tenant = %d", tenant)
	}
	if _, err := ag.TenantScope(context.Background()); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := ag.TenantOf(auth.WithUserID(context.Background(), 999)); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}

	foreign := &models.Supplier{TenantID: 9}
	ctx := auth.WithUserID(context.Background(), buyer.ID)
	if err := ag.AuthorizeResource(ctx, gate.ActionRead, policy.ResourceSupplier, foreign); !errors.Is(err, apperr.ErrTenantMismatch) {
		t.Fatalf("expected tenant_mismatch on supplier, got %v", err)
	}
}
