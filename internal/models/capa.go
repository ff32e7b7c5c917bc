package models

import (
	"time"

	"gorm.io/datatypes"
)

// CAPA statuses.
const (
	CAPAOpen       = "open"
	CAPAInProgress = "in_progress"
	CAPAClosed     = "closed"
)

// CAPA is a corrective/preventive action raised against a supplier.
type CAPA struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	SupplierID     uint          `gorm:"not null;index" json:"supplierId"`
	OrderID        *uint         `json:"orderId,omitempty"`
	EvaluationID   *uint         `json:"evaluationId,omitempty"`
	Title          string        `gorm:"size:255;not null" json:"title"`
	Description    string        `gorm:"type:text" json:"description"`
	Status         string        `gorm:"size:20;not null;index" json:"status"`
	ProblemWhat    string        `gorm:"size:1000" json:"problemWhat,omitempty"`
	ProblemWhere   string        `gorm:"size:1000" json:"problemWhere,omitempty"`
	ProblemWhen    string        `gorm:"size:1000" json:"problemWhen,omitempty"`
	ProblemWho     string        `gorm:"size:1000" json:"problemWho,omitempty"`
	ProblemHow     string        `gorm:"size:1000" json:"problemHow,omitempty"`
	RootCause      string        `gorm:"type:text" json:"rootCause,omitempty"`
	Effectiveness  string        `gorm:"type:text" json:"effectiveness,omitempty"`
	VerifiedBy     *uint         `json:"verifiedBy,omitempty"`
	VerifiedAt     *time.Time    `json:"verifiedAt,omitempty"`
	ApprovalStatus *string       `gorm:"size:20" json:"approvalStatus,omitempty"`
	Actions        []CAPAAction  `gorm:"foreignKey:CAPAID;constraint:OnDelete:CASCADE" json:"actions,omitempty"`
	Whys           []CAPAWhy     `gorm:"foreignKey:CAPAID;constraint:OnDelete:CASCADE" json:"whys,omitempty"`
	History        []CAPAHistory `gorm:"foreignKey:CAPAID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

func (CAPA) TableName() string { return "capas" }

// CAPAAction is a remediation task.
type CAPAAction struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CAPAID      uint       `gorm:"column:capa_id;not null;index" json:"capaId"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Owner       string     `gorm:"size:255" json:"owner,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `gorm:"size:20;not null" json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (CAPAAction) TableName() string { return "capa_actions" }

// CAPAWhy is one entry of the "5 whys" root-cause chain. Idx is 1-based.
type CAPAWhy struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	CAPAID uint   `gorm:"column:capa_id;not null;uniqueIndex:idx_capa_why" json:"capaId"`
	Idx    int    `gorm:"not null;uniqueIndex:idx_capa_why" json:"idx"`
	Text   string `gorm:"size:1000;not null" json:"text"`
}

func (CAPAWhy) TableName() string { return "capa_whys" }

// CAPAHistory is the append-only event log of a CAPA.
type CAPAHistory struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	CAPAID    uint           `gorm:"column:capa_id;not null;index" json:"capaId"`
	Event     string         `gorm:"size:50;not null" json:"event"`
	UserID    *uint          `json:"userId,omitempty"`
	Data      datatypes.JSON `json:"data,omitempty"`
}

func (CAPAHistory) TableName() string { return "capa_histories" }
