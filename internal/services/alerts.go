package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Alert defaults.
const (
	DefaultAlertThreshold = 60
	DefaultAlertDrop      = 15
)

// PreviousPeriod returns the YYYY-MM period before period.
func PreviousPeriod(period string) (string, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, -1, 0).Format("2006-01"), nil
}

// PeriodOf formats t as a YYYY-MM period.
func PeriodOf(t time.Time) string { return t.Format("2006-01") }

// AlertCheck is the data one supplier's alerts are derived from.
type AlertCheck struct {
	SupplierID uint
	Period     string
	HasMetrics bool
	Current    *models.SupplierEvaluationSummary
	Previous   *models.SupplierEvaluationSummary
}

func alertData(v map[string]any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

// DeriveAlerts applies the alert rules to one supplier: missing metrics is a
// warning, a total below threshold is critical, and a fall of at least drop
// points since the previous period is a warning.
func DeriveAlerts(c AlertCheck, threshold, drop int) []models.SupplierAlert {
	var out []models.SupplierAlert
	if !c.HasMetrics {
		out = append(out, models.SupplierAlert{
			SupplierID: c.SupplierID,
			Period:     c.Period,
			Type:       models.AlertMissingData,
			Severity:   models.SeverityWarning,
			Message:    fmt.Sprintf("no performance metrics for %s", c.Period),
		})
	}
	if c.Current == nil {
		return out
	}
	curr := c.Current.TotalScore
	if curr < threshold {
		out = append(out, models.SupplierAlert{
			SupplierID: c.SupplierID,
			Period:     c.Period,
			Type:       models.AlertThreshold,
			Severity:   models.SeverityCritical,
			Message:    fmt.Sprintf("total score %d is below threshold %d", curr, threshold),
			Data:       alertData(map[string]any{"totalScore": curr, "threshold": threshold}),
		})
	}
	if c.Previous != nil {
		prev := c.Previous.TotalScore
		if diff := prev - curr; diff >= drop {
			out = append(out, models.SupplierAlert{
				SupplierID: c.SupplierID,
				Period:     c.Period,
				Type:       models.AlertDrop,
				Severity:   models.SeverityWarning,
				Message:    fmt.Sprintf("total score changed -%d (%d -> %d)", diff, prev, curr),
				Data:       alertData(map[string]any{"previous": prev, "current": curr, "drop": drop}),
			})
		}
	}
	return out
}

type AlertService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

func NewAlertService(db *gorm.DB, log zerolog.Logger) *AlertService {
	return &AlertService{DB: db, Log: log}
}

// Evaluate computes alerts for every active supplier and stores them. Stored
// rows are plain inserts; a failed insert is logged and the alert is still
// returned.
func (s *AlertService) Evaluate(ctx context.Context, period string, threshold, drop int) ([]models.SupplierAlert, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	prevPeriod, err := PreviousPeriod(period)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	var suppliers []models.Supplier
	if err := db.Where("active = ?", true).Order("id ASC").Find(&suppliers).Error; err != nil {
		return nil, err
	}

	alerts := []models.SupplierAlert{}
	for _, sup := range suppliers {
		var n int64
		if err := db.Model(&models.SupplierPerformanceMetric{}).
			Where("supplier_id = ? AND period = ?", sup.ID, period).Count(&n).Error; err != nil {
			return nil, err
		}
		curr, err := findSummary(db, sup.ID, period)
		if err != nil {
			return nil, err
		}
		prev, err := findSummary(db, sup.ID, prevPeriod)
		if err != nil {
			return nil, err
		}
		for _, a := range DeriveAlerts(AlertCheck{
			SupplierID: sup.ID,
			Period:     period,
			HasMetrics: n > 0,
			Current:    curr,
			Previous:   prev,
		}, threshold, drop) {
			if err := db.Create(&a).Error; err != nil {
				s.Log.Warn().Err(err).
					Uint("supplier_id", sup.ID).
					Str("type", a.Type).
					Msg("alert not persisted")
			}
			alerts = append(alerts, a)
		}
	}
	return alerts, nil
}

// Stored lists persisted alerts of tenantID's suppliers, newest first.
func (s *AlertService) Stored(ctx context.Context, tenantID uint, period string) ([]models.SupplierAlert, error) {
	q := inTenant(s.DB.WithContext(ctx).Order("id DESC"), tenantID)
	if period != "" {
		if err := checkPeriod(period); err != nil {
			return nil, err
		}
		q = q.Where("period = ?", period)
	}
	var out []models.SupplierAlert
	err := q.Find(&out).Error
	return out, err
}
