package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RFQ statuses.
const (
	RfqOpen            = "OPEN"
	RfqWaitingApproval = "WAITING_APPROVAL"
	RfqApproved        = "APPROVED"
	RfqOrdered         = "ORDERED"
	RfqPassive         = "PASSIVE"
	RfqCancelled       = "CANCELLED"
)

// Negotiation statuses. The zero value means no negotiation has started.
const (
	NegotiationInactive = ""
	NegotiationActive   = "ACTIVE"
	NegotiationFinished = "FINISHED"
)

// Invitation stages.
const (
	StageSent     = "SENT"
	StageViewed   = "VIEWED"
	StageOffered  = "OFFERED"
	StageDeclined = "DECLINED"
)

// Rfq is a request for quotation sent to invited suppliers.
type Rfq struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID            uint           `gorm:"index;not null" json:"tenantId"`
	RfxCode             string         `gorm:"size:50;index" json:"rfxCode"`
	Title               string         `gorm:"size:255;not null" json:"title"`
	Status              string         `gorm:"size:30;not null;index" json:"status"`
	Deadline            *time.Time     `json:"deadline"`
	NegotiationRound    int            `gorm:"not null" json:"negotiationRound"`
	NegotiationStatus   string         `gorm:"size:20" json:"negotiationStatus"`
	NegotiationDeadline *time.Time     `json:"negotiationDeadline"`
	Items               []RfqItem      `gorm:"foreignKey:RfqID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Suppliers           []RfqSupplier  `gorm:"foreignKey:RfqID;constraint:OnDelete:CASCADE" json:"suppliers,omitempty"`
}

func (r *Rfq) GetTenantID() uint { return r.TenantID }

// AcceptsOffers reports whether suppliers may still submit offers, given now.
// While a negotiation is active its deadline applies, otherwise the RFQ deadline.
func (r *Rfq) AcceptsOffers(now time.Time) bool {
	switch r.Status {
	case RfqCancelled, RfqPassive, RfqOrdered:
		return false
	}
	if r.NegotiationStatus == NegotiationFinished {
		return false
	}
	deadline := r.Deadline
	if r.NegotiationStatus == NegotiationActive {
		deadline = r.NegotiationDeadline
	}
	return deadline == nil || now.Before(*deadline)
}

// RfqItem is a requested line.
type RfqItem struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	RfqID    uint            `gorm:"index;not null" json:"rfqId"`
	Name     string          `gorm:"size:255;not null" json:"name"`
	Quantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit     string          `gorm:"size:20" json:"unit"`
}

// RfqSupplier is one supplier's invitation to an RFQ. Token gives
// unauthenticated access to the supplier portal.
type RfqSupplier struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	RfqID       uint       `gorm:"index;not null" json:"rfqId"`
	SupplierID  uint       `gorm:"index;not null" json:"supplierId"`
	Email       string     `gorm:"size:255" json:"email"`
	Token       string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	TokenExpiry *time.Time `json:"tokenExpiry,omitempty"`
	Stage       string     `gorm:"size:20;not null" json:"stage"`
	Rfq         *Rfq       `gorm:"foreignKey:RfqID" json:"-"`
	Supplier    *Supplier  `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Offers      []Offer    `gorm:"foreignKey:RfqSupplierID;constraint:OnDelete:CASCADE" json:"offers,omitempty"`
}

// BeforeCreate issues a random token and the initial stage.
func (s *RfqSupplier) BeforeCreate(tx *gorm.DB) error {
	if s.Token == "" {
		s.Token = uuid.NewString()
	}
	if s.Stage == "" {
		s.Stage = StageSent
	}
	return nil
}

// TokenExpired reports whether the invitation token is no longer valid at now.
func (s *RfqSupplier) TokenExpired(now time.Time) bool {
	return s.TokenExpiry != nil && !now.Before(*s.TokenExpiry)
}

// Offer is a supplier's priced answer for one negotiation round.
// At most one row exists per (RfqSupplierID, Round).
type Offer struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	RfqSupplierID uint            `gorm:"not null;uniqueIndex:idx_offer_round" json:"rfqSupplierId"`
	Round         int             `gorm:"not null;uniqueIndex:idx_offer_round" json:"round"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"totalAmount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	ValidUntil    *time.Time      `json:"validUntil,omitempty"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	IsWinner      bool            `json:"isWinner"`
	Note          string          `gorm:"size:1000" json:"note,omitempty"`
	Items         []OfferItem     `gorm:"foreignKey:OfferID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// OfferItem is a priced line. VatRate is a percentage (18 means 18%).
type OfferItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OfferID     uint            `gorm:"index;not null" json:"offerId"`
	RfqItemID   *uint           `json:"rfqItemId,omitempty"`
	Description string          `gorm:"size:255" json:"description,omitempty"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unitPrice"`
	VatRate     decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"vatRate"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"lineTotal"`
}

var hundred = decimal.NewFromInt(100)

// GrossTotal returns quantity * unitPrice * (1 + vatRate/100).
func (i OfferItem) GrossTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice).Mul(decimal.NewFromInt(1).Add(i.VatRate.Div(hundred)))
}

// ComputeTotals fills each item's LineTotal and returns the offer total,
// rounded to 2 decimals.
func ComputeTotals(items []OfferItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		items[i].LineTotal = items[i].GrossTotal().Round(2)
		total = total.Add(items[i].GrossTotal())
	}
	return total.Round(2)
}
