package handlers

import (
	"net/http"

	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/services"
)

// CAPAHandler manages corrective and preventive actions of the caller's
// tenant. Every mutation is recorded in the CAPA history under the session user.
type CAPAHandler struct {
	CAPAs  *services.CAPAService
	Access Access
}

func NewCAPAHandler(capas *services.CAPAService, access Access) *CAPAHandler {
	return &CAPAHandler{CAPAs: capas, Access: access}
}

// target returns the caller's tenant scope and the {id} path value.
func (h *CAPAHandler) target(r *http.Request) (scope, id uint, err error) {
	if id, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	scope, err = h.Access.TenantScope(r.Context())
	return scope, id, err
}

func (h *CAPAHandler) List(w http.ResponseWriter, r *http.Request) {
	supplierID, err := queryID(r, "supplierId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.CAPAs.List(r.Context(), scope, supplierID, r.URL.Query().Get("status"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capas": list})
}

func (h *CAPAHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.CAPAInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.CAPAs.Create(r.Context(), scope, in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *CAPAHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.CAPAs.Get(r.Context(), scope, id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *CAPAHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.CAPAStatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.CAPAs.SetStatus(r.Context(), scope, id, in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// ReplaceWhys swaps the 5-why chain; blank entries are dropped.
func (h *CAPAHandler) ReplaceWhys(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in struct {
		Whys []string `json:"whys"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	c, err := h.CAPAs.ReplaceWhys(r.Context(), scope, id, in.Whys, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *CAPAHandler) AddAction(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.CAPAActionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	a, err := h.CAPAs.AddAction(r.Context(), scope, id, in, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *CAPAHandler) CompleteAction(w http.ResponseWriter, r *http.Request) {
	scope, id, err := h.target(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	actionID, err := pathID(r, "actionId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	a, err := h.CAPAs.CompleteAction(r.Context(), scope, id, actionID, currentUser(r))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}
