package models

import "time"

// Outbox statuses.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// EmailOutbox is a queued email. Rows survive restarts and are shared by all
// instances; a dispatcher claims due rows and sends them.
type EmailOutbox struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Recipient     string     `gorm:"size:255;not null" json:"recipient"`
	Subject       string     `gorm:"size:255;not null" json:"subject"`
	Body          string     `gorm:"type:text;not null" json:"body"`
	Reference     string     `gorm:"size:100;index" json:"reference,omitempty"`
	Status        string     `gorm:"size:20;not null;index:idx_outbox_due" json:"status"`
	Attempts      int        `gorm:"not null" json:"attempts"`
	LastError     string     `gorm:"size:1000" json:"lastError,omitempty"`
	NextAttemptAt time.Time  `gorm:"index:idx_outbox_due" json:"nextAttemptAt"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
}

func (EmailOutbox) TableName() string { return "email_outbox" }

// RateLimitBucket counts hits for one key in one fixed window.
type RateLimitBucket struct {
	Key       string    `gorm:"primaryKey;size:191"`
	Hits      int       `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}
