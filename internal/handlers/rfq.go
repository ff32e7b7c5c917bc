package handlers

import (
	"net/http"

	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
)

// RfqHandler serves RFQs, their approval entry point and negotiation rounds.
// Every handler that touches a single RFQ checks its tenant first.
type RfqHandler struct {
	Rfqs         *services.RfqService
	Approvals    *services.ApprovalService
	Negotiations *services.NegotiationService
	Access       Access
}

func NewRfqHandler(rfqs *services.RfqService, approvals *services.ApprovalService, negotiations *services.NegotiationService, access Access) *RfqHandler {
	return &RfqHandler{Rfqs: rfqs, Approvals: approvals, Negotiations: negotiations, Access: access}
}

// load fetches the RFQ named by the {id} path value and authorizes action on it.
func (h *RfqHandler) load(r *http.Request, action gate.Action) (*models.Rfq, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	rfq, err := h.Rfqs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := h.Access.AuthorizeResource(r.Context(), action, resourceRFQ, rfq); err != nil {
		return nil, err
	}
	return rfq, nil
}

func (h *RfqHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.Rfqs.List(r.Context(), tenantID, r.URL.Query().Get("status"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rfqs": list})
}

func (h *RfqHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.RfqInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	tenantID, err := h.Access.TenantOf(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	rfq, err := h.Rfqs.Create(r.Context(), tenantID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rfq)
}

func (h *RfqHandler) Get(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.load(r, gate.ActionRead)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

// Invite adds a supplier to the RFQ and returns the invitation with its
// portal link.
func (h *RfqHandler) Invite(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.load(r, gate.ActionWrite)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.InviteInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	inv, err := h.Rfqs.Invite(r.Context(), rfq, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"invitation": inv,
		"link":       h.Negotiations.MagicLink(inv.Token),
	})
}

// Approve sends the RFQ into the active RFQ workflow, or approves it
// directly when there is none.
func (h *RfqHandler) Approve(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.load(r, gate.ActionApprove)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	out, err := h.Approvals.InitiateRfq(r.Context(), rfq.ID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// StartNegotiation opens the next round and notifies invited suppliers.
func (h *RfqHandler) StartNegotiation(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.load(r, gate.ActionWrite)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.StartNegotiationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	updated, report, err := h.Negotiations.Start(r.Context(), rfq.ID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rfq":           updated,
		"notifications": report,
	})
}

func (h *RfqHandler) StopNegotiation(w http.ResponseWriter, r *http.Request) {
	rfq, err := h.load(r, gate.ActionWrite)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	updated, err := h.Negotiations.Stop(r.Context(), rfq.ID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}
