package main

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/handlers"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/policy"
	"github.com/rs/zerolog"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	routerCfg *policy.RouterConfig
	log       zerolog.Logger
}

// NewApp creates a new application with all routes configured.
func NewApp(routerCfg *policy.RouterConfig, log zerolog.Logger) *App {
	app := &App{
		mux:       http.NewServeMux(),
		routerCfg: routerCfg,
		log:       log,
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Apply global middleware: request logging, panic recovery + session user
	handler := a.withLogging(a.recoverPanics(auth.Middleware(a.mux)))
	handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	ah := a.routerCfg.AuthHandler
	loginLimit := a.routerCfg.LoginLimiter.Middleware(a.routerCfg.ClientIP)

	a.mux.HandleFunc("GET /healthz", handlers.Healthz)
	a.mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(ah.Login)))
	a.mux.HandleFunc("POST /api/auth/logout", ah.Logout)
	a.mux.Handle("GET /api/auth/me", a.requireAuth(http.HandlerFunc(ah.Me)))

	// Supplier portal: the invitation token is the credential
	pth := a.routerCfg.PortalHandler
	a.mux.Handle("GET /api/portal/rfq/{token}", a.portal(pth.View))
	a.mux.Handle("POST /api/portal/rfq/{token}", a.portal(pth.Submit))
	a.mux.Handle("POST /api/portal/rfq/{token}/decline", a.portal(pth.Decline))
	a.mux.Handle("GET /api/portal/rfq/{token}/negotiation", a.portal(pth.Negotiation))

	// ─────────────────────────────────────────────────────────────────────────
	// Protected resource routes (require auth + specific permissions)
	// ─────────────────────────────────────────────────────────────────────────
	wh := a.routerCfg.WorkflowHandler
	settingsRead := a.requirePermission(policy.ResourceSettings, gate.ActionRead)
	settingsWrite := a.requirePermission(policy.ResourceSettings, gate.ActionWrite)

	// Approval workflows - require ayarlar:read / ayarlar:write
	a.mux.Handle("GET /api/workflows", settingsRead(http.HandlerFunc(wh.List)))
	a.mux.Handle("POST /api/workflows", settingsWrite(http.HandlerFunc(wh.Create)))
	a.mux.Handle("GET /api/workflows/{id}", settingsRead(http.HandlerFunc(wh.Get)))
	a.mux.Handle("PUT /api/workflows/{id}", settingsWrite(http.HandlerFunc(wh.Update)))
	a.mux.Handle("DELETE /api/workflows/{id}", settingsWrite(http.HandlerFunc(wh.Delete)))
	a.mux.Handle("PUT /api/workflows/{id}/steps", settingsWrite(http.HandlerFunc(wh.ReplaceSteps)))

	// RFQs - tenant isolation is checked in the handler on every loaded RFQ
	rh := a.routerCfg.RfqHandler
	rfqRead := a.requirePermission(policy.ResourceRFQ, gate.ActionRead)
	rfqWrite := a.requirePermission(policy.ResourceRFQ, gate.ActionWrite)
	rfqApprove := a.requirePermission(policy.ResourceRFQ, gate.ActionApprove)

	a.mux.Handle("GET /api/rfq", rfqRead(http.HandlerFunc(rh.List)))
	a.mux.Handle("POST /api/rfq", rfqWrite(http.HandlerFunc(rh.Create)))
	a.mux.Handle("GET /api/rfq/{id}", rfqRead(http.HandlerFunc(rh.Get)))
	a.mux.Handle("POST /api/rfq/{id}/suppliers", rfqWrite(http.HandlerFunc(rh.Invite)))
	a.mux.Handle("POST /api/rfq/{id}/approve", rfqApprove(http.HandlerFunc(rh.Approve)))
	a.mux.Handle("POST /api/rfq/{id}/negotiation", a.requireAuth(http.HandlerFunc(rh.StartNegotiation)))
	a.mux.Handle("DELETE /api/rfq/{id}/negotiation", a.requireAuth(http.HandlerFunc(rh.StopNegotiation)))

	// Approval records
	aprh := a.routerCfg.ApprovalHandler
	a.mux.Handle("GET /api/approvals", rfqRead(http.HandlerFunc(aprh.List)))
	a.mux.Handle("POST /api/approvals/{id}/approve", rfqApprove(http.HandlerFunc(aprh.Approve)))
	a.mux.Handle("POST /api/approvals/{id}/reject", rfqApprove(http.HandlerFunc(aprh.Reject)))

	// Supplier register - require tedarikci:read / tedarikci:write
	sh := a.routerCfg.SupplierHandler
	supplierRead := a.requirePermission(policy.ResourceSupplier, gate.ActionRead)
	supplierWrite := a.requirePermission(policy.ResourceSupplier, gate.ActionWrite)

	a.mux.Handle("GET /api/tedarikci/suppliers", supplierRead(http.HandlerFunc(sh.List)))
	a.mux.Handle("POST /api/tedarikci/suppliers", supplierWrite(http.HandlerFunc(sh.Create)))
	a.mux.Handle("GET /api/tedarikci/suppliers/{id}", supplierRead(http.HandlerFunc(sh.Get)))
	a.mux.Handle("PUT /api/tedarikci/suppliers/{id}", supplierWrite(http.HandlerFunc(sh.Update)))
	a.mux.Handle("DELETE /api/tedarikci/suppliers/{id}", supplierWrite(http.HandlerFunc(sh.Delete)))

	// ─────────────────────────────────────────────────────────────────────────
	// Supplier evaluation and CAPA (authenticated session)
	// ─────────────────────────────────────────────────────────────────────────
	eh := a.routerCfg.EvaluationHandler
	a.mux.Handle("GET /api/tedarikci/degerlendirme/otomatik", a.requireAuth(http.HandlerFunc(eh.AutoScore)))
	a.mux.Handle("GET /api/tedarikci/degerlendirme", a.requireAuth(http.HandlerFunc(eh.Summaries)))
	a.mux.Handle("GET /api/tedarikci/raporlar", a.requireAuth(http.HandlerFunc(eh.Reports)))
	a.mux.Handle("GET /api/tedarikci/metrikler", a.requireAuth(http.HandlerFunc(eh.ListMetrics)))
	a.mux.Handle("POST /api/tedarikci/metrikler", a.requireAuth(http.HandlerFunc(eh.UpsertMetrics)))
	a.mux.Handle("GET /api/tedarikci/uyarilar", a.requireAuth(http.HandlerFunc(eh.Alerts)))
	a.mux.Handle("GET /api/tedarikci/uyarilar/kayitli", a.requireAuth(http.HandlerFunc(eh.StoredAlerts)))

	ch := a.routerCfg.CAPAHandler
	a.mux.Handle("GET /api/tedarikci/capa", a.requireAuth(http.HandlerFunc(ch.List)))
	a.mux.Handle("POST /api/tedarikci/capa", a.requireAuth(http.HandlerFunc(ch.Create)))
	a.mux.Handle("GET /api/tedarikci/capa/{id}", a.requireAuth(http.HandlerFunc(ch.Get)))
	a.mux.Handle("POST /api/tedarikci/capa/{id}/status", a.requireAuth(http.HandlerFunc(ch.SetStatus)))
	a.mux.Handle("PUT /api/tedarikci/capa/{id}/whys", a.requireAuth(http.HandlerFunc(ch.ReplaceWhys)))
	a.mux.Handle("POST /api/tedarikci/capa/{id}/actions", a.requireAuth(http.HandlerFunc(ch.AddAction)))
	a.mux.Handle("POST /api/tedarikci/capa/{id}/actions/{actionId}/complete", a.requireAuth(http.HandlerFunc(ch.CompleteAction)))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin routes (require a super-admin profile)
	// ─────────────────────────────────────────────────────────────────────────
	aph := a.routerCfg.AdminProfileHandler
	auph := a.routerCfg.AdminUserProfileHandler

	// Profile management
	a.mux.Handle("GET /api/admin/profiles", a.requireAdmin(http.HandlerFunc(aph.List)))
	a.mux.Handle("POST /api/admin/profiles", a.requireAdmin(http.HandlerFunc(aph.Create)))
	a.mux.Handle("PUT /api/admin/profiles/{id}", a.requireAdmin(http.HandlerFunc(aph.Update)))
	a.mux.Handle("DELETE /api/admin/profiles/{id}", a.requireAdmin(http.HandlerFunc(aph.Delete)))
	a.mux.Handle("PUT /api/admin/profiles/{id}/permissions", a.requireAdmin(http.HandlerFunc(aph.SetPermissions)))
	a.mux.Handle("GET /api/admin/permissions", a.requireAdmin(http.HandlerFunc(aph.ListPermissions)))

	// User profile assignment
	a.mux.Handle("GET /api/admin/users", a.requireAdmin(http.HandlerFunc(auph.List)))
	a.mux.Handle("PUT /api/admin/users/{id}/profile", a.requireAdmin(http.HandlerFunc(auph.AssignProfile)))
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

// requireAuth wraps a handler to require a valid session.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return auth.RequireAuth(next)
}

// requireAdmin wraps a handler to require admin permissions.
func (a *App) requireAdmin(next http.Handler) http.Handler {
	return a.requireAuth(a.routerCfg.AuthGate.RequireAdmin()(next))
}

// requirePermission wraps a handler to require a session and a specific
// resource permission.
func (a *App) requirePermission(resourceType string, action gate.Action) func(http.Handler) http.Handler {
	check := a.routerCfg.AuthGate.RequirePermission(resourceType, action)
	return func(next http.Handler) http.Handler {
		return a.requireAuth(check(next))
	}
}

// portal rate limits the token endpoints per client IP.
func (a *App) portal(h http.HandlerFunc) http.Handler {
	return a.routerCfg.PortalLimiter.Middleware(a.routerCfg.ClientIP)(h)
}

// recoverPanics answers a panicking handler with a logged server_error.
func (a *App) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			zerolog.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			httpx.Error(w, r, apperr.ErrServer)
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withLogging puts the logger in the request context and writes one access
// line per request.
func (a *App) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(a.log.WithContext(r.Context()))
		next.ServeHTTP(rec, r)

		ev := a.log.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = a.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Str("ip", a.routerCfg.ClientIP(r)).
			Msg("request")
	})
}
