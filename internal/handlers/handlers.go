// Package handlers exposes the services over HTTP JSON. Handlers decode and
// validate the request shape, run resource-level authorization and map
// service errors through httpx.Error.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/validation"
)

// Access is the authorization surface handlers need once a resource is
// loaded. policy.AuthGate implements it.
type Access interface {
	AuthorizeResource(ctx context.Context, action gate.Action, resourceType string, resource any) error
	TenantScope(ctx context.Context) (uint, error)
	TenantOf(ctx context.Context) (uint, error)
}

// Gate resource types, mirrored from policy to keep handlers free of it.
const (
	resourceRFQ      = "rfq"
	resourceSupplier = "tedarikci"
)

func invalidParam(name string) error {
	return apperr.ErrValidation.WithDetails(validation.Violations{name: "invalid"})
}

// pathID parses a positive numeric path value.
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		return 0, invalidParam(name)
	}
	return uint(id), nil
}

// queryID parses an optional positive numeric query value; absent is 0.
func queryID(r *http.Request, name string) (uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidParam(name)
	}
	return uint(id), nil
}

// queryInt parses an optional integer query value, falling back to def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name)
	}
	return n, nil
}

// queryPeriod returns the required YYYY-MM period query value.
func queryPeriod(r *http.Request) (string, error) {
	period := r.URL.Query().Get("period")
	if !validation.ValidPeriod(period) {
		return "", apperr.ErrValidation.WithDetails(validation.Violations{"period": "invalid_period"})
	}
	return period, nil
}

func currentUser(r *http.Request) uint {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

// Healthz answers liveness checks.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
