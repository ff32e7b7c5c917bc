// Package mailer queues outgoing email in the database and delivers it in the
// background, so a notification survives restarts and slow SMTP servers.
package mailer

import (
	"context"
	"time"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Sender delivers one queued message.
type Sender interface {
	Send(ctx context.Context, msg models.EmailOutbox) error
}

// DefaultMaxAttempts applies when Outbox.MaxAttempts is not set.
const DefaultMaxAttempts = 5

// claimLease keeps a claimed row away from other dispatchers while it is sent.
const claimLease = 5 * time.Minute

// Outbox implements services.Notifier by inserting rows into email_outbox.
// Dispatch drains due rows through Sender.
type Outbox struct {
	DB          *gorm.DB
	Sender      Sender
	MaxAttempts int
	// Backoff returns the wait before the next try after attempt failed.
	Backoff func(attempt int) time.Duration
	Now     func() time.Time
	Log     zerolog.Logger
}

func NewOutbox(db *gorm.DB, sender Sender, maxAttempts int, log zerolog.Logger) *Outbox {
	return &Outbox{DB: db, Sender: sender, MaxAttempts: maxAttempts, Log: log}
}

var _ services.Notifier = (*Outbox)(nil)

func (o *Outbox) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Outbox) maxAttempts() int {
	if o.MaxAttempts > 0 {
		return o.MaxAttempts
	}
	return DefaultMaxAttempts
}

// ExponentialBackoff waits 30s, 1m, 2m, ... capped at one hour.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 30 * time.Second
	for i := 1; i < attempt && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

func (o *Outbox) backoff(attempt int) time.Duration {
	if o.Backoff != nil {
		return o.Backoff(attempt)
	}
	return ExponentialBackoff(attempt)
}

// Notify queues n. The message is due immediately.
func (o *Outbox) Notify(ctx context.Context, n services.Notification) error {
	row := models.EmailOutbox{
		Recipient:     n.To,
		Subject:       n.Subject,
		Body:          n.Body,
		Reference:     n.Reference,
		Status:        models.OutboxPending,
		NextAttemptAt: o.now(),
	}
	return o.DB.WithContext(ctx).Create(&row).Error
}

// DispatchReport counts the outcome of one Dispatch call.
type DispatchReport struct {
	Sent     int
	Retrying int
	Failed   int
	Skipped  int
}

// Dispatch sends up to batch due messages. A row is claimed with a
// conditional update on its attempt counter; a row claimed by another
// dispatcher in the meantime is skipped.
func (o *Outbox) Dispatch(ctx context.Context, batch int) (DispatchReport, error) {
	var report DispatchReport
	if batch <= 0 {
		batch = 50
	}
	now := o.now()
	db := o.DB.WithContext(ctx)

	var due []models.EmailOutbox
	if err := db.Where("status = ? AND next_attempt_at <= ?", models.OutboxPending, now).
		Order("next_attempt_at ASC, id ASC").Limit(batch).Find(&due).Error; err != nil {
		return report, err
	}

	for _, msg := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res := db.Model(&models.EmailOutbox{}).
			Where("id = ? AND status = ? AND attempts = ?", msg.ID, models.OutboxPending, msg.Attempts).
			Updates(map[string]any{
				"attempts":        msg.Attempts + 1,
				"next_attempt_at": now.Add(claimLease),
			})
		if res.Error != nil {
			return report, res.Error
		}
		if res.RowsAffected == 0 {
			report.Skipped++
			continue
		}
		msg.Attempts++

		sendErr := o.Sender.Send(ctx, msg)
		if err := o.settle(ctx, msg, sendErr, &report); err != nil {
			return report, err
		}
	}
	if len(due) > 0 {
		o.Log.Info().
			Int("sent", report.Sent).
			Int("retrying", report.Retrying).
			Int("failed", report.Failed).
			Msg("outbox dispatched")
	}
	return report, nil
}

func (o *Outbox) settle(ctx context.Context, msg models.EmailOutbox, sendErr error, report *DispatchReport) error {
	now := o.now()
	updates := map[string]any{}
	switch {
	case sendErr == nil:
		updates["status"] = models.OutboxSent
		updates["sent_at"] = &now
		updates["last_error"] = ""
		report.Sent++
	case msg.Attempts >= o.maxAttempts():
		updates["status"] = models.OutboxFailed
		updates["last_error"] = truncate(sendErr.Error(), 1000)
		report.Failed++
		o.Log.Error().Err(sendErr).
			Uint("outbox_id", msg.ID).
			Str("to", msg.Recipient).
			Int("attempts", msg.Attempts).
			Msg("email given up")
	default:
		updates["next_attempt_at"] = now.Add(o.backoff(msg.Attempts))
		updates["last_error"] = truncate(sendErr.Error(), 1000)
		report.Retrying++
		o.Log.Warn().Err(sendErr).
			Uint("outbox_id", msg.ID).
			Str("to", msg.Recipient).
			Int("attempts", msg.Attempts).
			Msg("email send failed, will retry")
	}
	return o.DB.WithContext(ctx).Model(&models.EmailOutbox{}).Where("id = ?", msg.ID).Updates(updates).Error
}

// Purge deletes sent messages older than before.
func (o *Outbox) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := o.DB.WithContext(ctx).
		Where("status = ? AND sent_at < ?", models.OutboxSent, before).
		Delete(&models.EmailOutbox{})
	return res.RowsAffected, res.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
