package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open db")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...), "migrate")
	return db
}

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seedRfq(t *testing.T, db *gorm.DB, rfq models.Rfq) *models.Rfq {
	t.Helper()
	if rfq.TenantID == 0 {
		rfq.TenantID = 1
	}
	if rfq.Status == "" {
		rfq.Status = models.RfqOpen
	}
	if rfq.Title == "" {
		rfq.Title = "Office chairs"
	}
	require.NoError(t, db.Create(&rfq).Error)
	return &rfq
}

func seedSupplier(t *testing.T, db *gorm.DB, name, email string) *models.Supplier {
	t.Helper()
	s := models.Supplier{TenantID: 1, Name: name, Email: email, Active: true}
	require.NoError(t, db.Create(&s).Error)
	return &s
}

func invite(t *testing.T, db *gorm.DB, rfq *models.Rfq, sup *models.Supplier) *models.RfqSupplier {
	t.Helper()
	inv := models.RfqSupplier{RfqID: rfq.ID, SupplierID: sup.ID, Email: sup.Email}
	require.NoError(t, db.Create(&inv).Error)
	return &inv
}

// fakeNotifier records notifications and fails for addresses in failFor.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []Notification
	failFor map[string]bool
}

func (f *fakeNotifier) Notify(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[n.To] {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}
