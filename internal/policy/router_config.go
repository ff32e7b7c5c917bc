package policy

import (
	"net/http"
	"time"

	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/handlers"
	"github.com/diewo77/go-procurement/internal/mailer"
	"github.com/diewo77/go-procurement/internal/ratelimit"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RouterConfig holds the configured services, handlers and middleware of the
// application.
type RouterConfig struct {
	// AuthGate provides authorization checks and middleware
	AuthGate *AuthGate

	// Admin handlers
	AdminProfileHandler     *handlers.AdminProfileHandler
	AdminUserProfileHandler *handlers.AdminUserProfileHandler

	// Auth handler
	AuthHandler *handlers.AuthHandler

	// Business handlers
	WorkflowHandler   *handlers.WorkflowHandler
	RfqHandler        *handlers.RfqHandler
	ApprovalHandler   *handlers.ApprovalHandler
	PortalHandler     *handlers.PortalHandler
	SupplierHandler   *handlers.SupplierHandler
	EvaluationHandler *handlers.EvaluationHandler
	CAPAHandler       *handlers.CAPAHandler

	// Services
	Workflows    *services.WorkflowService
	Rfqs         *services.RfqService
	Approvals    *services.ApprovalService
	Negotiations *services.NegotiationService
	Offers       *services.OfferService
	Suppliers    *services.SupplierService
	Scoring      *services.ScoringService
	Metrics      *services.MetricsService
	Alerts       *services.AlertService
	CAPAs        *services.CAPAService

	// Outbox queues supplier emails; the jobs scheduler delivers them.
	Outbox *mailer.Outbox

	PortalLimiter *ratelimit.Limiter
	LoginLimiter  *ratelimit.Limiter
	// ClientIP keys rate limits and access logs by client address.
	ClientIP func(*http.Request) string
}

// NewRouterConfig wires the authorization gate, the services and their
// handlers.
func NewRouterConfig(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *RouterConfig {
	// Create authorization gate with 5-minute cache
	authGate := NewAuthGate(db, 5*time.Minute)

	outbox := mailer.NewOutbox(db, mailer.NewSender(cfg.SMTP, log), cfg.SMTP.MaxAttempts, log)

	workflows := services.NewWorkflowService(db)
	rfqs := services.NewRfqService(db, time.Duration(cfg.Portal.TokenTTLDays)*24*time.Hour)
	approvals := services.NewApprovalService(db)
	negotiations := services.NewNegotiationService(db, outbox, cfg.Portal.BaseURL, log)
	offers := services.NewOfferService(db)
	suppliers := services.NewSupplierService(db)
	scoring := services.NewScoringService(db, log)
	metrics := services.NewMetricsService(db)
	alerts := services.NewAlertService(db, log)
	capas := services.NewCAPAService(db)

	return &RouterConfig{
		AuthGate:                authGate,
		AdminProfileHandler:     handlers.NewAdminProfileHandler(db, authGate.CacheResolver),
		AdminUserProfileHandler: handlers.NewAdminUserProfileHandler(db, authGate.CacheResolver),
		AuthHandler:             handlers.NewAuthHandler(db),

		WorkflowHandler:   handlers.NewWorkflowHandler(workflows),
		RfqHandler:        handlers.NewRfqHandler(rfqs, approvals, negotiations, authGate),
		ApprovalHandler:   handlers.NewApprovalHandler(approvals, rfqs, authGate),
		PortalHandler:     handlers.NewPortalHandler(offers),
		SupplierHandler:   handlers.NewSupplierHandler(suppliers, authGate),
		EvaluationHandler: handlers.NewEvaluationHandler(scoring, metrics, alerts, authGate),
		CAPAHandler:       handlers.NewCAPAHandler(capas, authGate),

		Workflows:    workflows,
		Rfqs:         rfqs,
		Approvals:    approvals,
		Negotiations: negotiations,
		Offers:       offers,
		Suppliers:    suppliers,
		Scoring:      scoring,
		Metrics:      metrics,
		Alerts:       alerts,
		CAPAs:        capas,
		Outbox:       outbox,

		PortalLimiter: ratelimit.New(db, "portal", cfg.RateLimit.PortalLimit, cfg.RateLimit.Window),
		LoginLimiter:  ratelimit.New(db, "login", cfg.RateLimit.LoginLimit, cfg.RateLimit.Window),
		ClientIP:      ratelimit.ClientIPBehind(cfg.Server.TrustedProxies),
	}
}
