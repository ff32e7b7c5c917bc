package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Notification is an email addressed to one recipient.
type Notification struct {
	To        string
	Subject   string
	Body      string
	Reference string
}

// Notifier delivers or queues notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type StartNegotiationInput struct {
	Deadline *time.Time `json:"deadline"`
	Status   string     `json:"status" validate:"omitempty,oneof=ACTIVE FINISHED"`
}

// NotifyReport counts the outcome of a fan-out.
type NotifyReport struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type NegotiationService struct {
	DB            *gorm.DB
	Notifier      Notifier
	PortalBaseURL string
	Log           zerolog.Logger
}

func NewNegotiationService(db *gorm.DB, notifier Notifier, portalBaseURL string, log zerolog.Logger) *NegotiationService {
	return &NegotiationService{DB: db, Notifier: notifier, PortalBaseURL: portalBaseURL, Log: log}
}

// MagicLink is the portal URL for an invitation token.
func (s *NegotiationService) MagicLink(token string) string {
	return strings.TrimRight(s.PortalBaseURL, "/") + "/portal/rfq/" + token
}

// Start opens a new round: the counter is incremented in the database, the
// status and negotiation deadline are set, and the RFQ deadline follows only
// when a deadline is supplied. Suppliers are notified after the commit; a
// failed notification is logged and never undoes the round.
func (s *NegotiationService) Start(ctx context.Context, rfqID uint, in StartNegotiationInput) (*models.Rfq, NotifyReport, error) {
	var report NotifyReport
	status := in.Status
	if status == "" {
		status = models.NegotiationActive
	}
	if status != models.NegotiationActive && status != models.NegotiationFinished {
		return nil, report, apperr.ErrValidation.WithDetails(map[string]string{"status": "must_be_one_of:ACTIVE FINISHED"})
	}

	var rfq models.Rfq
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"negotiation_round":    gorm.Expr("negotiation_round + ?", 1),
			"negotiation_status":   status,
			"negotiation_deadline": in.Deadline,
		}
		if in.Deadline != nil {
			updates["deadline"] = in.Deadline
		}
		res := tx.Model(&models.Rfq{}).Where("id = ?", rfqID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound.WithMessage("rfq not found")
		}
		return tx.Preload("Suppliers.Supplier").First(&rfq, rfqID).Error
	})
	if err != nil {
		return nil, report, err
	}

	report = s.notifySuppliers(ctx, &rfq)
	s.Log.Info().
		Uint("rfq_id", rfq.ID).
		Int("round", rfq.NegotiationRound).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("negotiation round started")
	return &rfq, report, nil
}

func (s *NegotiationService) notifySuppliers(ctx context.Context, rfq *models.Rfq) NotifyReport {
	var report NotifyReport
	if s.Notifier == nil {
		return report
	}
	for _, inv := range rfq.Suppliers {
		to := inv.Email
		if to == "" && inv.Supplier != nil {
			to = inv.Supplier.Email
		}
		if to == "" {
			report.Skipped++
			s.Log.Warn().Uint("rfq_supplier_id", inv.ID).Msg("invitation has no email, skipping")
			continue
		}
		n := Notification{
			To:        to,
			Subject:   fmt.Sprintf("%s: negotiation round %d", rfq.RfxCode, rfq.NegotiationRound),
			Body:      s.roundBody(rfq, inv.Token),
			Reference: fmt.Sprintf("rfq:%d:round:%d:supplier:%d", rfq.ID, rfq.NegotiationRound, inv.ID),
		}
		if err := s.Notifier.Notify(ctx, n); err != nil {
			report.Failed++
			s.Log.Error().Err(err).
				Uint("rfq_id", rfq.ID).
				Uint("rfq_supplier_id", inv.ID).
				Str("to", to).
				Msg("negotiation notification failed")
			continue
		}
		report.Sent++
	}
	return report
}

func (s *NegotiationService) roundBody(rfq *models.Rfq, token string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new negotiation round (%d) has opened for %q.\n", rfq.NegotiationRound, rfq.Title)
	if rfq.NegotiationDeadline != nil {
		fmt.Fprintf(&b, "Please submit your updated offer before %s.\n", rfq.NegotiationDeadline.Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "\n%s\n", s.MagicLink(token))
	return b.String()
}

// Stop finishes the negotiation. Stopping twice is not an error.
func (s *NegotiationService) Stop(ctx context.Context, rfqID uint) (*models.Rfq, error) {
	if _, err := FindRfq(ctx, s.DB, rfqID); err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Rfq{}).Where("id = ?", rfqID).
		Update("negotiation_status", models.NegotiationFinished).Error; err != nil {
		return nil, err
	}
	return FindRfq(ctx, s.DB, rfqID)
}
