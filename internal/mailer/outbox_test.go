package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.EmailOutbox{}))
	return db
}

type fakeSender struct {
	sent  []string
	fails map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg models.EmailOutbox) error {
	if f.fails[msg.Recipient] {
		return errors.New("421 try again later")
	}
	f.sent = append(f.sent, msg.Recipient)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newOutbox(t *testing.T, sender Sender) (*Outbox, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	o := NewOutbox(setupTestDB(t), sender, 3, zerolog.New(io.Discard))
	o.Now = c.now
	o.Backoff = func(int) time.Duration { return time.Minute }
	return o, c
}

func status(t *testing.T, db *gorm.DB, to string) models.EmailOutbox {
	t.Helper()
	var row models.EmailOutbox
	require.NoError(t, db.Where("recipient = ?", to).First(&row).Error)
	return row
}

func TestNotifyQueuesRow(t *testing.T) {
	o, _ := newOutbox(t, &fakeSender{})
	err := o.Notify(context.Background(), services.Notification{To: "a@sup.test", Subject: "Round 2", Body: "link", Reference: "rfq:1"})
	require.NoError(t, err)

	row := status(t, o.DB, "a@sup.test")
	assert.Equal(t, models.OutboxPending, row.Status)
	assert.Equal(t, "rfq:1", row.Reference)
	assert.Zero(t, row.Attempts)
}

func TestDispatchSendsAndRetries(t *testing.T) {
	sender := &fakeSender{fails: map[string]bool{"down@sup.test": true}}
	o, c := newOutbox(t, sender)
	ctx := context.Background()
	for _, to := range []string{"a@sup.test", "down@sup.test"} {
		require.NoError(t, o.Notify(ctx, services.Notification{To: to, Subject: "s", Body: "b"}))
	}

	report, err := o.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Sent: 1, Retrying: 1}, report)
	assert.Equal(t, []string{"a@sup.test"}, sender.sent)
	sent := status(t, o.DB, "a@sup.test")
	assert.Equal(t, models.OutboxSent, sent.Status)
	require.NotNil(t, sent.SentAt)

	down := status(t, o.DB, "down@sup.test")
	assert.Equal(t, models.OutboxPending, down.Status)
	assert.Equal(t, 1, down.Attempts)
	assert.Contains(t, down.LastError, "421")

	// not due yet
	report, err = o.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{}, report)

	for i := 0; i < 2; i++ {
		c.t = c.t.Add(2 * time.Minute)
		_, err = o.Dispatch(ctx, 10)
		require.NoError(t, err)
	}
	down = status(t, o.DB, "down@sup.test")
	assert.Equal(t, models.OutboxFailed, down.Status)
	assert.Equal(t, 3, down.Attempts)

	c.t = c.t.Add(time.Hour)
	report, err = o.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{}, report)
}

func TestDispatchRecoversAfterFailure(t *testing.T) {
	sender := &fakeSender{fails: map[string]bool{"flaky@sup.test": true}}
	o, c := newOutbox(t, sender)
	ctx := context.Background()
	require.NoError(t, o.Notify(ctx, services.Notification{To: "flaky@sup.test", Subject: "s", Body: "b"}))

	_, err := o.Dispatch(ctx, 10)
	require.NoError(t, err)
	delete(sender.fails, "flaky@sup.test")
	c.t = c.t.Add(2 * time.Minute)
	report, err := o.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	row := status(t, o.DB, "flaky@sup.test")
	assert.Equal(t, models.OutboxSent, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Empty(t, row.LastError)
}

func TestPurgeRemovesOldSentRows(t *testing.T) {
	o, c := newOutbox(t, &fakeSender{})
	ctx := context.Background()
	require.NoError(t, o.Notify(ctx, services.Notification{To: "a@sup.test", Subject: "s", Body: "b"}))
	_, err := o.Dispatch(ctx, 10)
	require.NoError(t, err)

	n, err := o.Purge(ctx, c.t.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = o.Purge(ctx, c.t.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, ExponentialBackoff(1))
	assert.Equal(t, time.Minute, ExponentialBackoff(2))
	assert.Equal(t, 4*time.Minute, ExponentialBackoff(4))
	assert.Equal(t, time.Hour, ExponentialBackoff(20))
}

func TestNewSenderFallsBackToLog(t *testing.T) {
	_, ok := NewSender(config.SMTPConfig{}, zerolog.New(io.Discard)).(LogSender)
	assert.True(t, ok)
	_, ok = NewSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587}, zerolog.New(io.Discard)).(*SMTPSender)
	assert.True(t, ok)
}
