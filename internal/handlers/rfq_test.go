package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	sent []services.Notification
	fail string
}

func (n *recordingNotifier) Notify(_ context.Context, msg services.Notification) error {
	if msg.To == n.fail {
		return errors.New("mailbox unavailable")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func newRfqHandler(db *gorm.DB, access Access, notifier services.Notifier) *RfqHandler {
	return NewRfqHandler(
		services.NewRfqService(db, 0),
		services.NewApprovalService(db),
		services.NewNegotiationService(db, notifier, "https://buy.example.com", zerolog.New(io.Discard)),
		access,
	)
}

func TestRfqHandler_ApproveWithoutWorkflow(t *testing.T) {
	db := setupTestDB(t)
	h := newRfqHandler(db, fakeAccess{tenant: 1}, nil)
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	id := itoa(rfq.ID)

	rr := call(t, h.Approve, http.MethodPost, "/api/rfq/"+id+"/approve", "", 7, "id", id)
	expectStatus(t, rr, http.StatusOK)
	var out services.ApprovalOutcome
	decode(t, rr, &out)
	if out.Status != models.RfqApproved || out.Record != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	var records int64
	db.Model(&models.ApprovalRecord{}).Count(&records)
	if records != 0 {
		t.Fatalf("records = %d, want 0", records)
	}

	rr = call(t, h.Approve, http.MethodPost, "/api/rfq/"+id+"/approve", "", 7, "id", id)
	expectError(t, rr, http.StatusBadRequest, "invalid_state")

	rr = call(t, h.Approve, http.MethodPost, "/api/rfq/999/approve", "", 7, "id", "999")
	expectError(t, rr, http.StatusNotFound, "not_found")
}

func TestRfqHandler_TenantMismatch(t *testing.T) {
	db := setupTestDB(t)
	h := newRfqHandler(db, fakeAccess{tenant: 2}, nil)
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	id := itoa(rfq.ID)

	for name, fn := range map[string]http.HandlerFunc{
		"approve": h.Approve,
		"start":   h.StartNegotiation,
		"stop":    h.StopNegotiation,
		"get":     h.Get,
	} {
		t.Run(name, func(t *testing.T) {
			rr := call(t, fn, http.MethodPost, "/api/rfq/"+id, `{}`, 7, "id", id)
			expectError(t, rr, http.StatusForbidden, "tenant_mismatch")
		})
	}

	var stored models.Rfq
	db.First(&stored, rfq.ID)
	if stored.Status != models.RfqOpen || stored.NegotiationRound != 0 {
		t.Fatalf("rfq changed despite mismatch: %+v", stored)
	}

	admin := newRfqHandler(db, fakeAccess{tenant: 2, admin: true}, nil)
	rr := call(t, admin.StopNegotiation, http.MethodDelete, "/api/rfq/"+id+"/negotiation", "", 1, "id", id)
	expectStatus(t, rr, http.StatusOK)
}

func TestRfqHandler_Negotiation(t *testing.T) {
	db := setupTestDB(t)
	notifier := &recordingNotifier{fail: "down@b.test"}
	h := newRfqHandler(db, fakeAccess{tenant: 1}, notifier)
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	id := itoa(rfq.ID)
	for _, email := range []string{"a@a.test", "down@b.test"} {
		sup := seedSupplier(t, db, 1, email, email)
		rr := call(t, h.Invite, http.MethodPost, "/api/rfq/"+id+"/suppliers", `{"supplierId":`+itoa(sup.ID)+`}`, 7, "id", id)
		expectStatus(t, rr, http.StatusCreated)
	}

	deadline := time.Date(2030, 1, 2, 15, 0, 0, 0, time.UTC)
	rr := call(t, h.StartNegotiation, http.MethodPost, "/api/rfq/"+id+"/negotiation",
		`{"deadline":"`+deadline.Format(time.RFC3339)+`"}`, 7, "id", id)
	expectStatus(t, rr, http.StatusOK)
	var out struct {
		Rfq           models.Rfq            `json:"rfq"`
		Notifications services.NotifyReport `json:"notifications"`
	}
	decode(t, rr, &out)
	if out.Rfq.NegotiationRound != 1 || out.Rfq.NegotiationStatus != models.NegotiationActive {
		t.Fatalf("unexpected rfq: %+v", out.Rfq)
	}
	if out.Notifications.Sent != 1 || out.Notifications.Failed != 1 {
		t.Fatalf("unexpected report: %+v", out.Notifications)
	}
	if out.Rfq.Deadline == nil || !out.Rfq.Deadline.Equal(deadline) {
		t.Fatalf("rfq deadline not coupled: %v", out.Rfq.Deadline)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].Body, "https://buy.example.com/portal/rfq/") {
		t.Fatalf("unexpected notifications: %+v", notifier.sent)
	}

	rr = call(t, h.StartNegotiation, http.MethodPost, "/api/rfq/"+id+"/negotiation", `{"status":"PAUSED"}`, 7, "id", id)
	expectError(t, rr, http.StatusBadRequest, "validation_failed")

	for i := 0; i < 2; i++ {
		rr = call(t, h.StopNegotiation, http.MethodDelete, "/api/rfq/"+id+"/negotiation", "", 7, "id", id)
		expectStatus(t, rr, http.StatusOK)
	}
	var stored models.Rfq
	db.First(&stored, rfq.ID)
	if stored.NegotiationStatus != models.NegotiationFinished || stored.NegotiationRound != 1 {
		t.Fatalf("unexpected stored rfq: %+v", stored)
	}
}

func TestRfqHandler_CreateListInvite(t *testing.T) {
	db := setupTestDB(t)
	h := newRfqHandler(db, fakeAccess{tenant: 3}, nil)
	seedRfq(t, db, 1, models.RfqOpen)

	rr := call(t, h.Create, http.MethodPost, "/api/rfq",
		`{"title":"Laptops","items":[{"name":"Laptop","quantity":"12","unit":"pcs"}]}`, 7)
	expectStatus(t, rr, http.StatusCreated)
	var created models.Rfq
	decode(t, rr, &created)
	if created.TenantID != 3 || len(created.Items) != 1 {
		t.Fatalf("unexpected rfq: %+v", created)
	}

	rr = call(t, h.List, http.MethodGet, "/api/rfq", "", 7)
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Rfqs []models.Rfq `json:"rfqs"`
	}
	decode(t, rr, &list)
	if len(list.Rfqs) != 1 || list.Rfqs[0].ID != created.ID {
		t.Fatalf("list not tenant scoped: %+v", list.Rfqs)
	}

	sup := seedSupplier(t, db, 3, "Acme", "sales@acme.test")
	id := itoa(created.ID)
	rr = call(t, h.Invite, http.MethodPost, "/api/rfq/"+id+"/suppliers", `{"supplierId":`+itoa(sup.ID)+`}`, 7, "id", id)
	expectStatus(t, rr, http.StatusCreated)
	var inv struct {
		Link string `json:"link"`
	}
	decode(t, rr, &inv)
	if !strings.HasPrefix(inv.Link, "https://buy.example.com/portal/rfq/") {
		t.Fatalf("unexpected link %q", inv.Link)
	}
	rr = call(t, h.Invite, http.MethodPost, "/api/rfq/"+id+"/suppliers", `{"supplierId":`+itoa(sup.ID)+`}`, 7, "id", id)
	expectError(t, rr, http.StatusConflict, "conflict")
}

func TestApprovalHandler_Flow(t *testing.T) {
	db := setupTestDB(t)
	access := fakeAccess{tenant: 1}
	wf := NewWorkflowHandler(services.NewWorkflowService(db))
	call(t, wf.Create, http.MethodPost, "/api/workflows", purchaseFlow, 1)

	rh := newRfqHandler(db, access, nil)
	ah := NewApprovalHandler(services.NewApprovalService(db), services.NewRfqService(db, 0), access)
	rfq := seedRfq(t, db, 1, models.RfqOpen)
	id := itoa(rfq.ID)

	rr := call(t, rh.Approve, http.MethodPost, "/api/rfq/"+id+"/approve", "", 7, "id", id)
	expectStatus(t, rr, http.StatusOK)
	var out services.ApprovalOutcome
	decode(t, rr, &out)
	if out.Status != models.RfqWaitingApproval || out.Record == nil || out.Record.StepOrder != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	rr = call(t, ah.List, http.MethodGet, "/api/approvals", "", 7)
	expectError(t, rr, http.StatusBadRequest, "validation_failed")

	first := itoa(out.Record.ID)
	rr = call(t, ah.Approve, http.MethodPost, "/api/approvals/"+first+"/approve", `{"comment":"ok"}`, 7, "id", first)
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &out)
	if out.Record == nil || out.Record.StepOrder != 2 {
		t.Fatalf("expected step 2 pending, got %+v", out)
	}

	rr = call(t, ah.Approve, http.MethodPost, "/api/approvals/"+first+"/approve", "", 7, "id", first)
	expectError(t, rr, http.StatusBadRequest, "invalid_state")

	second := itoa(out.Record.ID)
	rr = call(t, ah.Reject, http.MethodPost, "/api/approvals/"+second+"/reject", "", 7, "id", second)
	expectStatus(t, rr, http.StatusOK)
	var stored models.Rfq
	db.First(&stored, rfq.ID)
	if stored.Status != models.RfqOpen {
		t.Fatalf("rfq status = %s, want OPEN", stored.Status)
	}

	rr = call(t, ah.List, http.MethodGet, "/api/approvals?entityType=RFQ&entityId="+id, "", 7)
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Records []models.ApprovalRecord `json:"records"`
	}
	decode(t, rr, &list)
	if len(list.Records) != 2 || list.Records[1].Status != models.ApprovalRejected {
		t.Fatalf("unexpected records: %+v", list.Records)
	}

	foreign := NewApprovalHandler(services.NewApprovalService(db), services.NewRfqService(db, 0), fakeAccess{tenant: 9})
	rr = call(t, foreign.List, http.MethodGet, "/api/approvals?entityType=RFQ&entityId="+id, "", 7)
	expectError(t, rr, http.StatusForbidden, "tenant_mismatch")
}
