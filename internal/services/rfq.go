package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// FindRfq loads an RFQ by id or returns not_found.
func FindRfq(ctx context.Context, db *gorm.DB, id uint) (*models.Rfq, error) {
	var rfq models.Rfq
	err := db.WithContext(ctx).First(&rfq, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("rfq not found")
	}
	if err != nil {
		return nil, err
	}
	return &rfq, nil
}

type RfqItemInput struct {
	Name     string          `json:"name" validate:"required,max=255"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit" validate:"max=20"`
}

type RfqInput struct {
	RfxCode  string         `json:"rfxCode" validate:"max=50"`
	Title    string         `json:"title" validate:"required,max=255"`
	Deadline *time.Time     `json:"deadline"`
	Items    []RfqItemInput `json:"items" validate:"dive"`
}

type InviteInput struct {
	SupplierID uint   `json:"supplierId" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
}

// RfqService manages RFQs and their supplier invitations.
type RfqService struct {
	DB *gorm.DB
	// TokenTTL bounds portal tokens; zero means tokens never expire.
	TokenTTL time.Duration
	Now      Clock
}

func NewRfqService(db *gorm.DB, tokenTTL time.Duration) *RfqService {
	return &RfqService{DB: db, TokenTTL: tokenTTL}
}

// Create opens an RFQ for tenantID.
func (s *RfqService) Create(ctx context.Context, tenantID uint, in RfqInput) (*models.Rfq, error) {
	v := validation.Struct(in)
	for i, it := range in.Items {
		if !it.Quantity.IsPositive() {
			v[fmt.Sprintf("items[%d].quantity", i)] = "out_of_range"
		}
	}
	if !v.Empty() {
		return nil, apperr.ErrValidation.WithDetails(v)
	}
	rfq := models.Rfq{
		TenantID: tenantID,
		RfxCode:  in.RfxCode,
		Title:    in.Title,
		Status:   models.RfqOpen,
		Deadline: in.Deadline,
	}
	for _, it := range in.Items {
		rfq.Items = append(rfq.Items, models.RfqItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit})
	}
	if err := s.DB.WithContext(ctx).Create(&rfq).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, rfq.ID)
}

// List returns RFQs newest first. tenantID 0 lists every tenant.
func (s *RfqService) List(ctx context.Context, tenantID uint, status string) ([]models.Rfq, error) {
	q := s.DB.WithContext(ctx).Order("id DESC")
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Rfq
	err := q.Find(&out).Error
	return out, err
}

// Get loads an RFQ with its items and invitations.
func (s *RfqService) Get(ctx context.Context, id uint) (*models.Rfq, error) {
	var rfq models.Rfq
	err := s.DB.WithContext(ctx).
		Preload("Items").
		Preload("Suppliers.Supplier").
		First(&rfq, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("rfq not found")
	}
	if err != nil {
		return nil, err
	}
	return &rfq, nil
}

// Invite adds a supplier of the RFQ's tenant to it and issues a portal token.
// A supplier is invited at most once per RFQ.
func (s *RfqService) Invite(ctx context.Context, rfq *models.Rfq, in InviteInput) (*models.RfqSupplier, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	var inv models.RfqSupplier
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sup models.Supplier
		err := tx.Where("id = ? AND tenant_id = ?", in.SupplierID, rfq.TenantID).First(&sup).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound.WithMessage("supplier not found")
		}
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.RfqSupplier{}).
			Where("rfq_id = ? AND supplier_id = ?", rfq.ID, sup.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.ErrConflict.WithMessage("supplier already invited")
		}
		email := in.Email
		if email == "" {
			email = sup.Email
		}
		inv = models.RfqSupplier{RfqID: rfq.ID, SupplierID: sup.ID, Email: email}
		if s.TokenTTL > 0 {
			exp := s.Now.now().Add(s.TokenTTL)
			inv.TokenExpiry = &exp
		}
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		inv.Supplier = &sup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
