package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
)

// SupplierHandler manages the supplier register of the user's tenant.
type SupplierHandler struct {
	Suppliers *services.SupplierService
	Access    Access
}

func NewSupplierHandler(suppliers *services.SupplierService, access Access) *SupplierHandler {
	return &SupplierHandler{Suppliers: suppliers, Access: access}
}

func (h *SupplierHandler) load(r *http.Request, action gate.Action) (*models.Supplier, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	sup, err := h.Suppliers.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := h.Access.AuthorizeResource(r.Context(), action, resourceSupplier, sup); err != nil {
		return nil, err
	}
	return sup, nil
}

// List pages through suppliers by name; ?q= searches name and tax number.
func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	out, err := h.Suppliers.List(r.Context(), tenantID, r.URL.Query().Get("q"), page)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	tenantID, err := h.Access.TenantOf(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	sup, err := h.Suppliers.Create(r.Context(), tenantID, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sup)
}

func (h *SupplierHandler) Get(w http.ResponseWriter, r *http.Request) {
	sup, err := h.load(r, gate.ActionRead)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *SupplierHandler) Update(w http.ResponseWriter, r *http.Request) {
	sup, err := h.load(r, gate.ActionWrite)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	sup, err = h.Suppliers.Update(r.Context(), sup, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *SupplierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sup, err := h.load(r, gate.ActionWrite)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.Suppliers.Delete(r.Context(), sup); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": sup.ID})
}
