package handlers

import (
	"net/http"

	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/services"
)

// PortalHandler is the supplier side. The {token} path value is the only
// credential; there is no session.
type PortalHandler struct {
	Offers *services.OfferService
}

func NewPortalHandler(offers *services.OfferService) *PortalHandler {
	return &PortalHandler{Offers: offers}
}

func (h *PortalHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.Offers.View(r.Context(), r.PathValue("token"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

// Submit creates or replaces the supplier's offer for the current round.
func (h *PortalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in services.OfferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	offer, err := h.Offers.Submit(r.Context(), r.PathValue("token"), in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, offer)
}

func (h *PortalHandler) Decline(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Offers.Decline(r.Context(), r.PathValue("token"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Negotiation returns rank and market statistics computed on read.
func (h *PortalHandler) Negotiation(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Offers.Stats(r.Context(), r.PathValue("token"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
