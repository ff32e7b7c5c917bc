package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OfferItemInput is one priced line. VatRate is a percentage.
type OfferItemInput struct {
	RfqItemID   *uint           `json:"rfqItemId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	VatRate     decimal.Decimal `json:"vatRate"`
}

type OfferInput struct {
	Currency   string           `json:"currency" validate:"omitempty,len=3"`
	ValidUntil *time.Time       `json:"validUntil"`
	Note       string           `json:"note" validate:"max=1000"`
	Items      []OfferItemInput `json:"items" validate:"required,min=1"`
}

// DefaultCurrency applies when an offer names none.
const DefaultCurrency = "TRY"

// PortalView is what a supplier sees behind their magic link.
type PortalView struct {
	Rfq        *models.Rfq         `json:"rfq"`
	Invitation *models.RfqSupplier `json:"invitation"`
	Offers     []models.Offer      `json:"offers"`
	CanOffer   bool                `json:"canOffer"`
}

// OfferService serves the token-authenticated supplier portal.
type OfferService struct {
	DB  *gorm.DB
	Now Clock
}

func NewOfferService(db *gorm.DB) *OfferService { return &OfferService{DB: db} }

// Invitation resolves a portal token. Unknown tokens are not_found and
// expired ones token_expired.
func (s *OfferService) Invitation(ctx context.Context, token string) (*models.RfqSupplier, error) {
	if token == "" {
		return nil, apperr.ErrNotFound.WithMessage("invitation not found")
	}
	var inv models.RfqSupplier
	err := s.DB.WithContext(ctx).Preload("Rfq").Preload("Supplier").Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.Rfq == nil) {
		return nil, apperr.ErrNotFound.WithMessage("invitation not found")
	}
	if err != nil {
		return nil, err
	}
	if inv.TokenExpired(s.Now.now()) {
		return nil, apperr.ErrTokenExpired
	}
	return &inv, nil
}

func (s *OfferService) canOffer(inv *models.RfqSupplier) bool {
	return inv.Stage != models.StageDeclined && inv.Rfq.AcceptsOffers(s.Now.now())
}

// View returns the RFQ, its items and the supplier's own offers, and marks a
// freshly sent invitation as VIEWED.
func (s *OfferService) View(ctx context.Context, token string) (*PortalView, error) {
	inv, err := s.Invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Stage == models.StageSent {
		if err := s.DB.WithContext(ctx).Model(&models.RfqSupplier{}).Where("id = ?", inv.ID).
			Update("stage", models.StageViewed).Error; err != nil {
			return nil, err
		}
		inv.Stage = models.StageViewed
	}
	var rfq models.Rfq
	if err := s.DB.WithContext(ctx).Preload("Items").First(&rfq, inv.RfqID).Error; err != nil {
		return nil, err
	}
	var offers []models.Offer
	if err := s.DB.WithContext(ctx).Preload("Items").
		Where("rfq_supplier_id = ?", inv.ID).Order("round ASC").Find(&offers).Error; err != nil {
		return nil, err
	}
	inv.Rfq = &rfq
	return &PortalView{Rfq: &rfq, Invitation: inv, Offers: offers, CanOffer: s.canOffer(inv)}, nil
}

func validateOffer(in OfferInput) error {
	v := validation.Struct(in)
	for i, it := range in.Items {
		if !it.Quantity.IsPositive() {
			v[fmt.Sprintf("items[%d].quantity", i)] = "out_of_range"
		}
		if it.UnitPrice.IsNegative() {
			v[fmt.Sprintf("items[%d].unitPrice", i)] = "out_of_range"
		}
		if it.VatRate.IsNegative() || it.VatRate.GreaterThan(hundredPct) {
			v[fmt.Sprintf("items[%d].vatRate", i)] = "out_of_range"
		}
	}
	if !v.Empty() {
		return apperr.ErrValidation.WithDetails(v)
	}
	return nil
}

var hundredPct = decimal.NewFromInt(100)

// Submit stores the supplier's offer for the RFQ's current round. A second
// submission in the same round replaces the first; earlier rounds are kept.
func (s *OfferService) Submit(ctx context.Context, token string, in OfferInput) (*models.Offer, error) {
	if err := validateOffer(in); err != nil {
		return nil, err
	}
	inv, err := s.Invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Stage == models.StageDeclined {
		return nil, apperr.ErrInvalidState.WithMessage("invitation was declined")
	}
	if !inv.Rfq.AcceptsOffers(s.Now.now()) {
		return nil, apperr.ErrInvalidState.WithMessage("rfq is not accepting offers")
	}

	items := make([]models.OfferItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = models.OfferItem{
			RfqItemID:   it.RfqItemID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			VatRate:     it.VatRate,
		}
	}
	total := models.ComputeTotals(items)
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	now := s.Now.now()
	round := inv.Rfq.NegotiationRound

	var offerID uint
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer models.Offer
		err := tx.Where("rfq_supplier_id = ? AND round = ?", inv.ID, round).First(&offer).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			offer = models.Offer{RfqSupplierID: inv.ID, Round: round}
		case err != nil:
			return err
		default:
			if err := tx.Where("offer_id = ?", offer.ID).Delete(&models.OfferItem{}).Error; err != nil {
				return err
			}
		}
		offer.TotalAmount = total
		offer.Currency = currency
		offer.ValidUntil = in.ValidUntil
		offer.Note = in.Note
		offer.SubmittedAt = now
		if err := tx.Omit("Items").Save(&offer).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OfferID = offer.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		offerID = offer.ID
		return tx.Model(&models.RfqSupplier{}).Where("id = ?", inv.ID).Update("stage", models.StageOffered).Error
	})
	if err != nil {
		return nil, err
	}
	var offer models.Offer
	if err := s.DB.WithContext(ctx).Preload("Items").First(&offer, offerID).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// Decline records that the supplier will not bid.
func (s *OfferService) Decline(ctx context.Context, token string) (*models.RfqSupplier, error) {
	inv, err := s.Invitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Stage == models.StageDeclined {
		return inv, nil
	}
	if !inv.Rfq.AcceptsOffers(s.Now.now()) {
		return nil, apperr.ErrInvalidState.WithMessage("rfq is closed")
	}
	if err := s.DB.WithContext(ctx).Model(&models.RfqSupplier{}).Where("id = ?", inv.ID).
		Update("stage", models.StageDeclined).Error; err != nil {
		return nil, err
	}
	inv.Stage = models.StageDeclined
	return inv, nil
}
