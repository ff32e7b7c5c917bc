package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupplierListPagesAndSearches(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSupplierService(db)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		seedSupplier(t, db, fmt.Sprintf("Supplier %02d", i), "")
	}
	other := models.Supplier{TenantID: 2, Name: "Acme Steel", TaxNumber: "TR123", Active: true}
	require.NoError(t, db.Create(&other).Error)

	page, err := svc.List(ctx, 1, "", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	require.Len(t, page.Suppliers, 5)
	assert.Equal(t, "Supplier 20", page.Suppliers[0].Name)

	page, err = svc.List(ctx, 0, "tr12", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Suppliers, 1)
	assert.Equal(t, other.ID, page.Suppliers[0].ID)

	page, err = svc.List(ctx, 1, "ACME", 1)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Suppliers)
}

func TestSupplierCreateUpdateDelete(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSupplierService(db)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, SupplierInput{Email: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	sup, err := svc.Create(ctx, 1, SupplierInput{Name: "  Acme  ", Email: "sales@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", sup.Name)
	assert.True(t, sup.Active)

	sup, err = svc.Update(ctx, sup, SupplierInput{Name: "Acme Ltd", Active: ptr(false)})
	require.NoError(t, err)
	got, err := svc.Get(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", got.Name)
	assert.False(t, got.Active)
	assert.Empty(t, got.Email)

	require.NoError(t, svc.Delete(ctx, got))
	_, err = svc.Get(ctx, sup.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
