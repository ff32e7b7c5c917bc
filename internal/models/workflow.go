package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity types that can run through an approval workflow.
const (
	EntityRequest = "Request"
	EntityOrder   = "Order"
	EntityRFQ     = "RFQ"
)

// Approval record statuses.
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// WorkflowDefinition is an ordered list of approval steps for one entity type.
// At most one active definition applies per entity type.
type WorkflowDefinition struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Name        string         `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DisplayName string         `gorm:"size:255" json:"displayName"`
	EntityType  string         `gorm:"size:30;index;not null" json:"entityType"`
	Active      bool           `gorm:"index" json:"active"`
	Steps       []ApprovalStep `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE" json:"steps"`
}

// ApprovalStep is one position in a workflow. StepOrder is 1-based and
// contiguous; the whole list is replaced on every edit.
type ApprovalStep struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	WorkflowID   uint                `gorm:"not null;uniqueIndex:idx_step_order" json:"workflowId"`
	StepOrder    int                 `gorm:"not null;uniqueIndex:idx_step_order" json:"stepOrder"`
	Name         string              `gorm:"size:255;not null" json:"name"`
	ApproverRole string              `gorm:"size:100;not null" json:"approverRole"`
	ApproverUnit *string             `gorm:"size:100" json:"approverUnit,omitempty"`
	Required     bool                `json:"required"`
	AutoApprove  bool                `json:"autoApprove"`
	BudgetLimit  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"budgetLimit"`
}

// ApprovalRecord says "entity is awaiting (or passed) this step".
// StepName is a copy; records are not fixed up when steps are replaced.
type ApprovalRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	WorkflowID uint       `gorm:"index" json:"workflowId"`
	EntityType string     `gorm:"size:30;not null;index:idx_approval_entity" json:"entityType"`
	EntityID   uint       `gorm:"not null;index:idx_approval_entity" json:"entityId"`
	StepOrder  int        `gorm:"not null" json:"stepOrder"`
	StepName   string     `gorm:"size:255" json:"stepName"`
	Status     string     `gorm:"size:20;not null;index" json:"status"`
	Comment    *string    `gorm:"size:1000" json:"comment,omitempty"`
	DecidedBy  *uint      `json:"decidedBy,omitempty"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
}

// IsPending reports whether the record still awaits a decision.
func (r *ApprovalRecord) IsPending() bool { return r.Status == ApprovalPending }
