package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// metricRange is the raw interval mapped onto 0..100. Lower-is-better
// metrics are inverted.
type metricRange struct {
	min, max float64
	invert   bool
}

var (
	onTimeRange  = metricRange{0, 1, false}
	defectRange  = metricRange{0, 1, true}
	leadRange    = metricRange{1, 60, true}
	priceRange   = metricRange{0.5, 1.5, true}
	serviceRange = metricRange{0, 1, false}
)

// Score weights; they sum to 1.
const (
	weightQuality  = 0.40
	weightDelivery = 0.25
	weightCost     = 0.20
	weightService  = 0.15
)

// Decision thresholds on the total score.
const (
	approvedMin    = 80
	conditionalMin = 60
)

// MetricAverages holds the per-field mean over rows that have the field.
type MetricAverages struct {
	OnTimeRate   *float64 `json:"onTimeRate"`
	DefectRate   *float64 `json:"defectRate"`
	AvgLeadTime  *float64 `json:"avgLeadTime"`
	PriceIndex   *float64 `json:"priceIndex"`
	ServiceScore *float64 `json:"serviceScore"`
}

// Scores is the result of scoring one supplier for one period.
type Scores struct {
	Quality  int    `json:"qualityScore"`
	Delivery int    `json:"deliveryScore"`
	Cost     int    `json:"costScore"`
	Service  int    `json:"serviceScore"`
	Total    int    `json:"totalScore"`
	Decision string `json:"decision"`
}

func mean(rows []models.SupplierPerformanceMetric, field func(models.SupplierPerformanceMetric) *float64) *float64 {
	var sum float64
	var n int
	for _, r := range rows {
		if v := field(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// AverageMetrics averages every field independently, skipping nulls.
func AverageMetrics(rows []models.SupplierPerformanceMetric) MetricAverages {
	return MetricAverages{
		OnTimeRate:   mean(rows, func(m models.SupplierPerformanceMetric) *float64 { return m.OnTimeRate }),
		DefectRate:   mean(rows, func(m models.SupplierPerformanceMetric) *float64 { return m.DefectRate }),
		AvgLeadTime:  mean(rows, func(m models.SupplierPerformanceMetric) *float64 { return m.AvgLeadTime }),
		PriceIndex:   mean(rows, func(m models.SupplierPerformanceMetric) *float64 { return m.PriceIndex }),
		ServiceScore: mean(rows, func(m models.SupplierPerformanceMetric) *float64 { return m.ServiceScore }),
	}
}

// Normalize clamps x into r, scales it to 0..100 and rounds. A missing
// value scores 0.
func Normalize(x *float64, r metricRange) int {
	if x == nil {
		return 0
	}
	v := math.Min(math.Max(*x, r.min), r.max)
	v = (v - r.min) / (r.max - r.min)
	if r.invert {
		v = 1 - v
	}
	return int(math.Round(v * 100))
}

// DecisionFor labels a total score.
func DecisionFor(total int) string {
	switch {
	case total >= approvedMin:
		return models.DecisionApproved
	case total >= conditionalMin:
		return models.DecisionConditional
	default:
		return models.DecisionInsufficient
	}
}

// ScoreMetrics turns a supplier's metric rows for a period into scores. No
// rows means all zeros and an insufficient decision.
func ScoreMetrics(rows []models.SupplierPerformanceMetric) Scores {
	if len(rows) == 0 {
		return Scores{Decision: models.DecisionInsufficient}
	}
	avg := AverageMetrics(rows)
	onTime := Normalize(avg.OnTimeRate, onTimeRange)
	defect := Normalize(avg.DefectRate, defectRange)
	lead := Normalize(avg.AvgLeadTime, leadRange)

	s := Scores{
		Quality:  int(math.Round(float64(onTime+defect) / 2)),
		Delivery: int(math.Round(float64(onTime+lead) / 2)),
		Cost:     Normalize(avg.PriceIndex, priceRange),
		Service:  Normalize(avg.ServiceScore, serviceRange),
	}
	s.Total = int(math.Round(float64(s.Quality)*weightQuality +
		float64(s.Delivery)*weightDelivery +
		float64(s.Cost)*weightCost +
		float64(s.Service)*weightService))
	s.Decision = DecisionFor(s.Total)
	return s
}

// SupplierScore is one line of a scoring run.
type SupplierScore struct {
	SupplierID   uint   `json:"supplierId"`
	SupplierName string `json:"supplierName"`
	MetricRows   int    `json:"metricRows"`
	Scores
}

// SupplierFailure records a supplier that could not be scored.
type SupplierFailure struct {
	SupplierID uint   `json:"supplierId"`
	Error      string `json:"error"`
}

// ScoringRun is the outcome of scoring every active supplier for a period.
type ScoringRun struct {
	Period   string                 `json:"period"`
	Results  []SupplierScore        `json:"results"`
	Failures []SupplierFailure      `json:"failures"`
	Report   *models.SupplierReport `json:"report"`
}

type ScoringService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

func NewScoringService(db *gorm.DB, log zerolog.Logger) *ScoringService {
	return &ScoringService{DB: db, Log: log}
}

func checkPeriod(period string) error {
	if !validation.ValidPeriod(period) {
		return apperr.ErrValidation.WithDetails(validation.Violations{"period": "invalid_period"})
	}
	return nil
}

// ScoreSupplier recomputes and overwrites the summary of one supplier.
func (s *ScoringService) ScoreSupplier(ctx context.Context, supplierID uint, period string) (*models.SupplierEvaluationSummary, int, error) {
	db := s.DB.WithContext(ctx)
	var rows []models.SupplierPerformanceMetric
	if err := db.Where("supplier_id = ? AND period = ?", supplierID, period).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	sc := ScoreMetrics(rows)
	summary := models.SupplierEvaluationSummary{
		SupplierID:    supplierID,
		Period:        period,
		QualityScore:  sc.Quality,
		DeliveryScore: sc.Delivery,
		CostScore:     sc.Cost,
		ServiceScore:  sc.Service,
		TotalScore:    sc.Total,
		Decision:      sc.Decision,
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "supplier_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quality_score", "delivery_score", "cost_score", "service_score",
			"total_score", "decision", "updated_at",
		}),
	}).Create(&summary).Error
	if err != nil {
		return nil, 0, err
	}
	var stored models.SupplierEvaluationSummary
	if err := db.Where("supplier_id = ? AND period = ?", supplierID, period).First(&stored).Error; err != nil {
		return nil, 0, err
	}
	return &stored, len(rows), nil
}

// RunPeriod scores every active supplier one after another. A failing
// supplier is logged and skipped; the run is then snapshotted as a Global
// report.
func (s *ScoringService) RunPeriod(ctx context.Context, period string) (*ScoringRun, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	var suppliers []models.Supplier
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&suppliers).Error; err != nil {
		return nil, err
	}

	run := &ScoringRun{Period: period, Results: []SupplierScore{}, Failures: []SupplierFailure{}}
	var sum int
	for _, sup := range suppliers {
		summary, n, err := s.ScoreSupplier(ctx, sup.ID, period)
		if err != nil {
			s.Log.Error().Err(err).Uint("supplier_id", sup.ID).Str("period", period).Msg("supplier scoring failed")
			run.Failures = append(run.Failures, SupplierFailure{SupplierID: sup.ID, Error: err.Error()})
			continue
		}
		sum += summary.TotalScore
		run.Results = append(run.Results, SupplierScore{
			SupplierID:   sup.ID,
			SupplierName: sup.Name,
			MetricRows:   n,
			Scores: Scores{
				Quality:  summary.QualityScore,
				Delivery: summary.DeliveryScore,
				Cost:     summary.CostScore,
				Service:  summary.ServiceScore,
				Total:    summary.TotalScore,
				Decision: summary.Decision,
			},
		})
	}

	payload, err := json.Marshal(map[string]any{"results": run.Results, "failures": run.Failures})
	if err != nil {
		return nil, err
	}
	report := models.SupplierReport{
		Period:        period,
		Scope:         models.ReportScopeGlobal,
		SupplierCount: len(run.Results),
		Payload:       datatypes.JSON(payload),
	}
	if len(run.Results) > 0 {
		report.AverageScore = math.Round(float64(sum)/float64(len(run.Results))*100) / 100
	}
	if err := s.DB.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, err
	}
	run.Report = &report
	s.Log.Info().
		Str("period", period).
		Int("scored", len(run.Results)).
		Int("failed", len(run.Failures)).
		Msg("supplier scoring finished")
	return run, nil
}

// Summaries lists stored summaries for a period, limited to suppliers of
// tenantID unless it is 0.
func (s *ScoringService) Summaries(ctx context.Context, tenantID uint, period string) ([]models.SupplierEvaluationSummary, error) {
	if err := checkPeriod(period); err != nil {
		return nil, err
	}
	var out []models.SupplierEvaluationSummary
	err := inTenant(s.DB.WithContext(ctx).Where("period = ?", period), tenantID).Order("total_score DESC, supplier_id ASC").Find(&out).Error
	return out, err
}

// Reports lists report snapshots, newest first.
func (s *ScoringService) Reports(ctx context.Context, period string, limit int) ([]models.SupplierReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.DB.WithContext(ctx).Order("id DESC").Limit(limit)
	if period != "" {
		if err := checkPeriod(period); err != nil {
			return nil, err
		}
		q = q.Where("period = ?", period)
	}
	var out []models.SupplierReport
	err := q.Find(&out).Error
	return out, err
}

// Summary returns the stored summary of one supplier, nil when absent.
func (s *ScoringService) Summary(ctx context.Context, supplierID uint, period string) (*models.SupplierEvaluationSummary, error) {
	return findSummary(s.DB.WithContext(ctx), supplierID, period)
}

func findSummary(db *gorm.DB, supplierID uint, period string) (*models.SupplierEvaluationSummary, error) {
	var sum models.SupplierEvaluationSummary
	err := db.Where("supplier_id = ? AND period = ?", supplierID, period).First(&sum).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
