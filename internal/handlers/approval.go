package handlers

import (
	"net/http"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/diewo77/go-procurement/internal/validation"
)

// ApprovalHandler lists approval trails and settles pending records.
type ApprovalHandler struct {
	Approvals *services.ApprovalService
	Rfqs      *services.RfqService
	Access    Access
}

func NewApprovalHandler(approvals *services.ApprovalService, rfqs *services.RfqService, access Access) *ApprovalHandler {
	return &ApprovalHandler{Approvals: approvals, Rfqs: rfqs, Access: access}
}

// List returns the records of one entity. RFQ trails are tenant checked.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entityType")
	entityID, err := queryID(r, "entityId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	if entityType == "" {
		v["entityType"] = "required"
	}
	if entityID == 0 {
		v["entityId"] = "required"
	}
	if !v.Empty() {
		httpx.Error(w, r, apperr.ErrValidation.WithDetails(v))
		return
	}
	if entityType == models.EntityRFQ {
		rfq, err := h.Rfqs.Get(r.Context(), entityID)
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		if err := h.Access.AuthorizeResource(r.Context(), gate.ActionRead, resourceRFQ, rfq); err != nil {
			httpx.Error(w, r, err)
			return
		}
	}
	records, err := h.Approvals.Records(r.Context(), entityType, entityID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *ApprovalHandler) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in struct {
		Comment *string `json:"comment"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	_, rfq, err := h.Approvals.Record(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if rfq != nil {
		if err := h.Access.AuthorizeResource(r.Context(), gate.ActionApprove, resourceRFQ, rfq); err != nil {
			httpx.Error(w, r, err)
			return
		}
	}
	out, err := h.Approvals.Decide(r.Context(), id, services.Decision{
		Approve: approve,
		UserID:  currentUser(r),
		Comment: in.Comment,
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
