package handlers

import (
	"net/http"

	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/services"
)

// WorkflowHandler manages approval workflow definitions. Permission checks
// (ayarlar:read / ayarlar:write) are applied by the router.
type WorkflowHandler struct {
	Workflows *services.WorkflowService
}

func NewWorkflowHandler(workflows *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{Workflows: workflows}
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Workflows.List(r.Context(), r.URL.Query().Get("entityType"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"workflows": list})
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	wf, err := h.Workflows.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wf)
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.WorkflowInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	wf, err := h.Workflows.Create(r.Context(), in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, wf)
}

// Update overwrites the workflow and replaces its steps wholesale.
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in services.WorkflowInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	wf, err := h.Workflows.Update(r.Context(), id, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wf)
}

// ReplaceSteps swaps only the step list.
func (h *WorkflowHandler) ReplaceSteps(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in struct {
		Steps []services.StepInput `json:"steps"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	steps, err := h.Workflows.ReplaceSteps(r.Context(), id, in.Steps)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := h.Workflows.Delete(r.Context(), id); err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}
