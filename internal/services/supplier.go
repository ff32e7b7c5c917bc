package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"gorm.io/gorm"
)

const SupplierPageSize = 20

type SupplierInput struct {
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email" validate:"omitempty,email,max=255"`
	TaxNumber string `json:"taxNumber" validate:"max=50"`
	Active    *bool  `json:"active"`
}

type SupplierPage struct {
	Suppliers []models.Supplier `json:"suppliers"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

type SupplierService struct{ DB *gorm.DB }

func NewSupplierService(db *gorm.DB) *SupplierService { return &SupplierService{DB: db} }

// List pages through suppliers by name. tenantID 0 lists every tenant; query
// matches name or tax number case-insensitively.
func (s *SupplierService) List(ctx context.Context, tenantID uint, query string, page int) (*SupplierPage, error) {
	if page < 1 {
		page = 1
	}
	db := s.DB.WithContext(ctx).Model(&models.Supplier{})
	if tenantID != 0 {
		db = db.Where("tenant_id = ?", tenantID)
	}
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(tax_number) LIKE ?", like, like)
	}

	out := &SupplierPage{Page: page, Limit: SupplierPageSize, Suppliers: []models.Supplier{}}
	if err := db.Count(&out.Total).Error; err != nil {
		return nil, err
	}
	err := db.Order("name").Limit(SupplierPageSize).Offset((page - 1) * SupplierPageSize).Find(&out.Suppliers).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SupplierService) Create(ctx context.Context, tenantID uint, in SupplierInput) (*models.Supplier, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	sup := models.Supplier{
		TenantID:  tenantID,
		Name:      strings.TrimSpace(in.Name),
		Email:     in.Email,
		TaxNumber: in.TaxNumber,
		Active:    in.Active == nil || *in.Active,
	}
	if err := s.DB.WithContext(ctx).Create(&sup).Error; err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *SupplierService) Get(ctx context.Context, id uint) (*models.Supplier, error) {
	var sup models.Supplier
	err := s.DB.WithContext(ctx).First(&sup, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("supplier not found")
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

// Update overwrites the editable fields of sup. Active is kept when omitted.
func (s *SupplierService) Update(ctx context.Context, sup *models.Supplier, in SupplierInput) (*models.Supplier, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	sup.Name = strings.TrimSpace(in.Name)
	sup.Email = in.Email
	sup.TaxNumber = in.TaxNumber
	if in.Active != nil {
		sup.Active = *in.Active
	}
	if err := s.DB.WithContext(ctx).Save(sup).Error; err != nil {
		return nil, err
	}
	return sup, nil
}

// Delete soft-deletes sup. Its scores, metrics and CAPAs are kept.
func (s *SupplierService) Delete(ctx context.Context, sup *models.Supplier) error {
	return s.DB.WithContext(ctx).Delete(sup).Error
}

// scopedSupplier loads a supplier for a caller limited to tenantID. tenantID 0
// is unrestricted. Soft-deleted suppliers still resolve so their history stays
// reachable.
func scopedSupplier(tx *gorm.DB, tenantID, id uint) (*models.Supplier, error) {
	var sup models.Supplier
	err := tx.Unscoped().Select("id", "tenant_id", "deleted_at").First(&sup, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage(fmt.Sprintf("supplier %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	if tenantID != 0 && sup.TenantID != tenantID {
		return nil, apperr.ErrTenantMismatch
	}
	return &sup, nil
}

// inTenant limits rows carrying a supplier_id to suppliers of tenantID.
func inTenant(q *gorm.DB, tenantID uint) *gorm.DB {
	if tenantID == 0 {
		return q
	}
	return q.Where("supplier_id IN (?)", q.Session(&gorm.Session{NewDB: true}).
		Unscoped().Model(&models.Supplier{}).Select("id").Where("tenant_id = ?", tenantID))
}
