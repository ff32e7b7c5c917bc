package handlers

import (
	"net/http"
	"testing"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func seedInvitation(t *testing.T, db *gorm.DB, rfq *models.Rfq, name string) *models.RfqSupplier {
	t.Helper()
	sup := seedSupplier(t, db, rfq.TenantID, name, name+"@sup.test")
	inv := models.RfqSupplier{RfqID: rfq.ID, SupplierID: sup.ID, Email: sup.Email}
	if err := db.Create(&inv).Error; err != nil {
		t.Fatalf("invitation: %v", err)
	}
	return &inv
}

func TestPortalHandler_SubmitAndStats(t *testing.T) {
	db := setupTestDB(t)
	h := NewPortalHandler(services.NewOfferService(db))
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	mine := seedInvitation(t, db, rfq, "mine")
	other := seedInvitation(t, db, rfq, "other")

	rr := call(t, h.View, http.MethodGet, "/api/portal/rfq/"+mine.Token, "", 0, "token", mine.Token)
	expectStatus(t, rr, http.StatusOK)
	var view services.PortalView
	decode(t, rr, &view)
	if !view.CanOffer || view.Invitation.Stage != models.StageViewed {
		t.Fatalf("unexpected view: canOffer=%v stage=%s", view.CanOffer, view.Invitation.Stage)
	}

	rr = call(t, h.Submit, http.MethodPost, "/api/portal/rfq/"+mine.Token,
		`{"items":[{"description":"Chair","quantity":"2","unitPrice":"100","vatRate":"18"}]}`, 0, "token", mine.Token)
	expectStatus(t, rr, http.StatusOK)
	var offer models.Offer
	decode(t, rr, &offer)
	if !offer.TotalAmount.Equal(decimal.NewFromInt(236)) {
		t.Fatalf("total = %s, want 236", offer.TotalAmount)
	}
	if offer.Currency != services.DefaultCurrency {
		t.Fatalf("currency = %s", offer.Currency)
	}

	rr = call(t, h.Submit, http.MethodPost, "/api/portal/rfq/"+other.Token,
		`{"currency":"USD","items":[{"quantity":"1","unitPrice":"300","vatRate":"0"}]}`, 0, "token", other.Token)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, h.Negotiation, http.MethodGet, "/api/portal/rfq/"+mine.Token+"/negotiation", "", 0, "token", mine.Token)
	expectStatus(t, rr, http.StatusOK)
	var stats services.NegotiationStats
	decode(t, rr, &stats)
	if stats.MyRank == nil || *stats.MyRank != 1 {
		t.Fatalf("myRank = %v, want 1", stats.MyRank)
	}
	if stats.MarketAverage != 268 || stats.OfferCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rr = call(t, h.Submit, http.MethodPost, "/api/portal/rfq/"+mine.Token, `{"items":[]}`, 0, "token", mine.Token)
	expectError(t, rr, http.StatusBadRequest, "validation_failed")
}

func TestPortalHandler_TokenAndDecline(t *testing.T) {
	db := setupTestDB(t)
	h := NewPortalHandler(services.NewOfferService(db))
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	inv := seedInvitation(t, db, rfq, "acme")

	rr := call(t, h.View, http.MethodGet, "/api/portal/rfq/nope", "", 0, "token", "nope")
	expectError(t, rr, http.StatusNotFound, "not_found")

	rr = call(t, h.Decline, http.MethodPost, "/api/portal/rfq/"+inv.Token+"/decline", "", 0, "token", inv.Token)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, h.Submit, http.MethodPost, "/api/portal/rfq/"+inv.Token,
		`{"items":[{"quantity":"1","unitPrice":"5","vatRate":"0"}]}`, 0, "token", inv.Token)
	expectError(t, rr, http.StatusBadRequest, "invalid_state")

	rr = call(t, h.Negotiation, http.MethodGet, "/api/portal/rfq/"+inv.Token+"/negotiation", "", 0, "token", inv.Token)
	expectStatus(t, rr, http.StatusOK)
	var stats services.NegotiationStats
	decode(t, rr, &stats)
	if stats.MyRank != nil || stats.MarketAverage != 0 {
		t.Fatalf("unexpected stats without offers: %+v", stats)
	}
}
