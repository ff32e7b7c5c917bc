package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid cross-test collisions.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeAccess applies tenant isolation for a single user of tenant, or lets
// everything through when admin is set.
type fakeAccess struct {
	tenant uint
	admin  bool
}

func (a fakeAccess) AuthorizeResource(_ context.Context, _ gate.Action, _ string, resource any) error {
	if a.admin || resource == nil {
		return nil
	}
	scoped, ok := resource.(models.TenantScoped)
	if !ok {
		return apperr.ErrForbidden
	}
	if scoped.GetTenantID() != a.tenant {
		return apperr.ErrTenantMismatch
	}
	return nil
}

func (a fakeAccess) TenantScope(context.Context) (uint, error) {
	if a.admin {
		return 0, nil
	}
	return a.tenant, nil
}

func (a fakeAccess) TenantOf(context.Context) (uint, error) { return a.tenant, nil }

// call runs h with a JSON body, the session user and path values given as
// alternating name, value pairs.
func call(t *testing.T, h http.HandlerFunc, method, target, body string, userID uint, path ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	for i := 0; i+1 < len(path); i += 2 {
		req.SetPathValue(path[i], path[i+1])
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

// expectError checks the status and the error code of a JSON error body.
func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rr, &body)
	if body.Error != code {
		t.Fatalf("error = %q, want %q", body.Error, code)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, status, rr.Body.String())
	}
}

func seedRfq(t *testing.T, db *gorm.DB, tenantID uint, status string) *models.Rfq {
	t.Helper()
	rfq := models.Rfq{TenantID: tenantID, Title: "Office chairs", RfxCode: "RFQ-1", Status: status}
	if err := db.Create(&rfq).Error; err != nil {
		t.Fatalf("rfq: %v", err)
	}
	return &rfq
}

func seedSupplier(t *testing.T, db *gorm.DB, tenantID uint, name, email string) *models.Supplier {
	t.Helper()
	s := models.Supplier{TenantID: tenantID, Name: name, Email: email, Active: true}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("supplier: %v", err)
	}
	return &s
}

func itoa(id uint) string { return fmt.Sprint(id) }
