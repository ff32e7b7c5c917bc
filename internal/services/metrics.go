package services

import (
	"context"
	"fmt"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMetricSource names rows ingested without a source.
const DefaultMetricSource = "manual"

type MetricInput struct {
	SupplierID   uint     `json:"supplierId" validate:"required"`
	Period       string   `json:"period" validate:"required,period"`
	Source       string   `json:"source" validate:"max=50"`
	OnTimeRate   *float64 `json:"onTimeRate"`
	DefectRate   *float64 `json:"defectRate"`
	AvgLeadTime  *float64 `json:"avgLeadTime"`
	PriceIndex   *float64 `json:"priceIndex"`
	ServiceScore *float64 `json:"serviceScore"`
}

type MetricsService struct{ DB *gorm.DB }

func NewMetricsService(db *gorm.DB) *MetricsService { return &MetricsService{DB: db} }

// Upsert stores metric rows keyed by (supplier, period, source). A row for
// an existing key is overwritten, including fields now left null. Every
// supplier must belong to tenantID unless it is 0; one foreign supplier
// rejects the whole batch.
func (s *MetricsService) Upsert(ctx context.Context, tenantID uint, in []MetricInput) ([]models.SupplierPerformanceMetric, error) {
	v := validation.Violations{}
	for i, m := range in {
		for k, msg := range validation.Struct(m) {
			v[fmt.Sprintf("[%d].%s", i, k)] = msg
		}
	}
	if len(in) == 0 {
		v["_"] = "required"
	}
	if !v.Empty() {
		return nil, apperr.ErrValidation.WithDetails(v)
	}

	out := make([]models.SupplierPerformanceMetric, 0, len(in))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range in {
			if _, err := scopedSupplier(tx, tenantID, m.SupplierID); err != nil {
				return err
			}
			source := m.Source
			if source == "" {
				source = DefaultMetricSource
			}
			row := models.SupplierPerformanceMetric{
				SupplierID:   m.SupplierID,
				Period:       m.Period,
				Source:       source,
				OnTimeRate:   m.OnTimeRate,
				DefectRate:   m.DefectRate,
				AvgLeadTime:  m.AvgLeadTime,
				PriceIndex:   m.PriceIndex,
				ServiceScore: m.ServiceScore,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "supplier_id"}, {Name: "period"}, {Name: "source"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"on_time_rate", "defect_rate", "avg_lead_time", "price_index", "service_score", "updated_at",
				}),
			}).Create(&row).Error; err != nil {
				return err
			}
			var stored models.SupplierPerformanceMetric
			if err := tx.Where("supplier_id = ? AND period = ? AND source = ?", m.SupplierID, m.Period, source).
				First(&stored).Error; err != nil {
				return err
			}
			out = append(out, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns the metric rows of a period, optionally for one supplier,
// limited to suppliers of tenantID unless it is 0.
func (s *MetricsService) List(ctx context.Context, tenantID uint, period string, supplierID uint) ([]models.SupplierPerformanceMetric, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if supplierID != 0 {
		if _, err := scopedSupplier(db, tenantID, supplierID); err != nil {
			return nil, err
		}
	}
	q := inTenant(db.Where("period = ?", period), tenantID)
	if supplierID != 0 {
		q = q.Where("supplier_id = ?", supplierID)
	}
	var out []models.SupplierPerformanceMetric
	err := q.Order("supplier_id ASC, source ASC").Find(&out).Error
	return out, err
}
