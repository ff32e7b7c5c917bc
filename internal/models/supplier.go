package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evaluation decisions.
const (
	DecisionApproved     = "Onaylı"
	DecisionConditional  = "Şartlı"
	DecisionInsufficient = "Yetersiz"
)

// Alert types and severities.
const (
	AlertMissingData = "MissingData"
	AlertThreshold   = "Threshold"
	AlertDrop        = "Drop"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ReportScopeGlobal marks a report covering every active supplier.
const ReportScopeGlobal = "Global"

// Supplier is a vendor that can be invited to RFQs and evaluated.
type Supplier struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID  uint           `gorm:"index;not null" json:"tenantId"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Email     string         `gorm:"size:255" json:"email"`
	TaxNumber string         `gorm:"size:50" json:"taxNumber,omitempty"`
	Active    bool           `gorm:"index" json:"active"`
}

func (s *Supplier) GetTenantID() uint { return s.TenantID }

// SupplierPerformanceMetric is one producer's raw measurements for a period.
// Unique per (SupplierID, Period, Source). Nil fields were not measured.
type SupplierPerformanceMetric struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	SupplierID   uint      `gorm:"not null;uniqueIndex:idx_metric_key" json:"supplierId"`
	Period       string    `gorm:"size:7;not null;uniqueIndex:idx_metric_key" json:"period"`
	Source       string    `gorm:"size:50;not null;uniqueIndex:idx_metric_key" json:"source"`
	OnTimeRate   *float64  `json:"onTimeRate"`
	DefectRate   *float64  `json:"defectRate"`
	AvgLeadTime  *float64  `json:"avgLeadTime"`
	PriceIndex   *float64  `json:"priceIndex"`
	ServiceScore *float64  `json:"serviceScore"`
}

// SupplierEvaluationSummary is the computed score of a supplier for a period.
// Unique per (SupplierID, Period); overwritten on every scoring run.
type SupplierEvaluationSummary struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	SupplierID    uint      `gorm:"not null;uniqueIndex:idx_summary_key" json:"supplierId"`
	Period        string    `gorm:"size:7;not null;uniqueIndex:idx_summary_key" json:"period"`
	QualityScore  int       `gorm:"not null" json:"qualityScore"`
	DeliveryScore int       `gorm:"not null" json:"deliveryScore"`
	CostScore     int       `gorm:"not null" json:"costScore"`
	ServiceScore  int       `gorm:"not null" json:"serviceScore"`
	TotalScore    int       `gorm:"not null" json:"totalScore"`
	Decision      string    `gorm:"size:20;not null" json:"decision"`
}

// SupplierReport is an append-only snapshot of a scoring run.
type SupplierReport struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"createdAt"`
	Period        string         `gorm:"size:7;not null;index" json:"period"`
	Scope         string         `gorm:"size:30;not null" json:"scope"`
	SupplierCount int            `json:"supplierCount"`
	AverageScore  float64        `json:"averageScore"`
	Payload       datatypes.JSON `json:"payload"`
}

// SupplierAlert is a persisted alert. Rows are plain inserts; repeated runs
// may store the same condition twice.
type SupplierAlert struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"createdAt"`
	SupplierID uint           `gorm:"not null;index" json:"supplierId"`
	Period     string         `gorm:"size:7;not null;index" json:"period"`
	Type       string         `gorm:"size:20;not null" json:"type"`
	Severity   string         `gorm:"size:20;not null" json:"severity"`
	Message    string         `gorm:"size:500" json:"message"`
	Data       datatypes.JSON `json:"data,omitempty"`
}
