package handlers

import (
	"net/http"
	"testing"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
)

const purchaseFlow = `{"name":"rfq-flow","displayName":"RFQ approval","entityType":"RFQ",
	"steps":[{"name":"Manager","approverRole":"manager"},{"name":"Finance","approverRole":"finance"}]}`

func TestWorkflowHandler_CreateAndDuplicate(t *testing.T) {
	db := setupTestDB(t)
	h := NewWorkflowHandler(services.NewWorkflowService(db))

	rr := call(t, h.Create, http.MethodPost, "/api/workflows", purchaseFlow, 1)
	expectStatus(t, rr, http.StatusCreated)
	var wf models.WorkflowDefinition
	decode(t, rr, &wf)
	if len(wf.Steps) != 2 || wf.Steps[0].StepOrder != 1 || wf.Steps[1].StepOrder != 2 {
		t.Fatalf("unexpected steps: %+v", wf.Steps)
	}

	rr = call(t, h.Create, http.MethodPost, "/api/workflows", purchaseFlow, 1)
	expectError(t, rr, http.StatusConflict, "duplicate_name")
	var n int64
	db.Model(&models.WorkflowDefinition{}).Count(&n)
	if n != 1 {
		t.Fatalf("workflows = %d, want 1", n)
	}

	rr = call(t, h.Create, http.MethodPost, "/api/workflows", `{"name":""}`, 1)
	expectError(t, rr, http.StatusBadRequest, "validation_failed")

	rr = call(t, h.Create, http.MethodPost, "/api/workflows", `{"name":`, 1)
	expectError(t, rr, http.StatusBadRequest, "invalid_json")
}

func TestWorkflowHandler_UpdateGetDelete(t *testing.T) {
	db := setupTestDB(t)
	h := NewWorkflowHandler(services.NewWorkflowService(db))

	rr := call(t, h.Create, http.MethodPost, "/api/workflows", purchaseFlow, 1)
	var wf models.WorkflowDefinition
	decode(t, rr, &wf)
	id := itoa(wf.ID)

	rr = call(t, h.Update, http.MethodPut, "/api/workflows/"+id,
		`{"name":"rfq-flow","entityType":"RFQ","steps":[{"name":"Director","approverRole":"director"}]}`, 1, "id", id)
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &wf)
	if len(wf.Steps) != 1 || wf.Steps[0].Name != "Director" || wf.Steps[0].StepOrder != 1 {
		t.Fatalf("steps not replaced: %+v", wf.Steps)
	}

	rr = call(t, h.ReplaceSteps, http.MethodPut, "/api/workflows/"+id+"/steps",
		`{"steps":[{"name":"A","approverRole":"a"},{"name":"B","approverRole":"b"},{"name":"C","approverRole":"c"}]}`, 1, "id", id)
	expectStatus(t, rr, http.StatusOK)
	var steps struct {
		Steps []models.ApprovalStep `json:"steps"`
	}
	decode(t, rr, &steps)
	if len(steps.Steps) != 3 || steps.Steps[2].StepOrder != 3 {
		t.Fatalf("unexpected steps: %+v", steps.Steps)
	}

	rr = call(t, h.List, http.MethodGet, "/api/workflows?entityType=RFQ", "", 1)
	expectStatus(t, rr, http.StatusOK)

	rr = call(t, h.Get, http.MethodGet, "/api/workflows/abc", "", 1, "id", "abc")
	expectError(t, rr, http.StatusBadRequest, "validation_failed")

	rr = call(t, h.Delete, http.MethodDelete, "/api/workflows/"+id, "", 1, "id", id)
	expectStatus(t, rr, http.StatusOK)
	var left int64
	db.Model(&models.ApprovalStep{}).Count(&left)
	if left != 0 {
		t.Fatalf("steps left after delete: %d", left)
	}

	rr = call(t, h.Get, http.MethodGet, "/api/workflows/"+id, "", 1, "id", id)
	expectError(t, rr, http.StatusNotFound, "not_found")
}
