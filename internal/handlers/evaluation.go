package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/services"
)

// EvaluationHandler serves supplier scoring, metric ingestion and alerts.
// Reads and metric writes are limited to the caller's tenant. Runs and
// reports span every tenant and are left to super-admins.
type EvaluationHandler struct {
	Scoring  *services.ScoringService
	Metrics  *services.MetricsService
	AlertSvc *services.AlertService
	Access   Access
}

func NewEvaluationHandler(scoring *services.ScoringService, metrics *services.MetricsService, alerts *services.AlertService, access Access) *EvaluationHandler {
	return &EvaluationHandler{Scoring: scoring, Metrics: metrics, AlertSvc: alerts, Access: access}
}

// allTenants fails unless the caller is unrestricted by tenant.
func (h *EvaluationHandler) allTenants(r *http.Request) error {
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		return err
	}
	if scope != 0 {
		return apperr.ErrForbidden.WithMessage("cross-tenant evaluation runs need a super-admin")
	}
	return nil
}

// AutoScore rescores every active supplier for ?period= and appends a report.
func (h *EvaluationHandler) AutoScore(w http.ResponseWriter, r *http.Request) {
	if err := h.allTenants(r); err != nil {
		httpx.Error(w, r, err)
		return
	}
	period, err := queryPeriod(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	run, err := h.Scoring.RunPeriod(r.Context(), period)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *EvaluationHandler) Summaries(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.Scoring.Summaries(r.Context(), scope, period)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period, "summaries": list})
}

func (h *EvaluationHandler) Reports(w http.ResponseWriter, r *http.Request) {
	if err := h.allTenants(r); err != nil {
		httpx.Error(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	list, err := h.Scoring.Reports(r.Context(), r.URL.Query().Get("period"), limit)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": list})
}

// metricBatch accepts either a single metric object or an array of them.
type metricBatch []services.MetricInput

func (b *metricBatch) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var one services.MetricInput
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*b = metricBatch{one}
		return nil
	}
	return json.Unmarshal(data, (*[]services.MetricInput)(b))
}

// UpsertMetrics stores raw metrics keyed by (supplier, period, source).
func (h *EvaluationHandler) UpsertMetrics(w http.ResponseWriter, r *http.Request) {
	var in metricBatch
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	rows, err := h.Metrics.Upsert(r.Context(), scope, in)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

func (h *EvaluationHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	period, err := queryPeriod(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
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
	rows, err := h.Metrics.List(r.Context(), scope, period, supplierID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

// Alerts evaluates and stores alerts for ?period=, with optional
// ?threshold= (default 60) and ?drop= (default 15).
func (h *EvaluationHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	if err := h.allTenants(r); err != nil {
		httpx.Error(w, r, err)
		return
	}
	period, err := queryPeriod(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	threshold, err := queryInt(r, "threshold", services.DefaultAlertThreshold)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	drop, err := queryInt(r, "drop", services.DefaultAlertDrop)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	alerts, err := h.AlertSvc.Evaluate(r.Context(), period, threshold, drop)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period":    period,
		"threshold": threshold,
		"drop":      drop,
		"alerts":    alerts,
	})
}

func (h *EvaluationHandler) StoredAlerts(w http.ResponseWriter, r *http.Request) {
	scope, err := h.Access.TenantScope(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	alerts, err := h.AlertSvc.Stored(r.Context(), scope, r.URL.Query().Get("period"))
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}
