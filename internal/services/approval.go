package services

import (
	"context"
	"errors"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"gorm.io/gorm"
)

// ApprovalOutcome is the state of an entity after an approval action.
// Record is the PENDING record now awaiting a decision, nil when the entity
// was approved outright or the workflow finished.
type ApprovalOutcome struct {
	Status string                 `json:"status"`
	Record *models.ApprovalRecord `json:"record"`
}

type ApprovalService struct {
	DB  *gorm.DB
	Now Clock
}

func NewApprovalService(db *gorm.DB) *ApprovalService { return &ApprovalService{DB: db} }

// InitiateRfq sends an RFQ into the active RFQ workflow. Without one the RFQ
// is approved directly and no record is written; otherwise it waits on a
// single PENDING record for stepOrder 1.
func (s *ApprovalService) InitiateRfq(ctx context.Context, rfqID uint) (*ApprovalOutcome, error) {
	var out *ApprovalOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rfq, err := FindRfq(ctx, tx, rfqID)
		if err != nil {
			return err
		}
		switch rfq.Status {
		case models.RfqApproved, models.RfqOrdered:
			return apperr.ErrInvalidState.WithMessage("rfq is already " + rfq.Status)
		case models.RfqWaitingApproval:
			return apperr.ErrInvalidState.WithMessage("rfq is already waiting for approval")
		}

		wf, err := ActiveWorkflow(tx, models.EntityRFQ)
		if err != nil {
			return err
		}
		if wf == nil || len(wf.Steps) == 0 {
			if err := setRfqStatus(tx, rfq.ID, models.RfqApproved); err != nil {
				return err
			}
			out = &ApprovalOutcome{Status: models.RfqApproved}
			return nil
		}

		first := wf.Steps[0]
		rec := models.ApprovalRecord{
			WorkflowID: wf.ID,
			EntityType: models.EntityRFQ,
			EntityID:   rfq.ID,
			StepOrder:  first.StepOrder,
			StepName:   first.Name,
			Status:     models.ApprovalPending,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if err := setRfqStatus(tx, rfq.ID, models.RfqWaitingApproval); err != nil {
			return err
		}
		out = &ApprovalOutcome{Status: models.RfqWaitingApproval, Record: &rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func setRfqStatus(tx *gorm.DB, id uint, status string) error {
	return tx.Model(&models.Rfq{}).Where("id = ?", id).Update("status", status).Error
}

// Record loads an approval record and, for RFQ records, the RFQ it belongs to.
func (s *ApprovalService) Record(ctx context.Context, id uint) (*models.ApprovalRecord, *models.Rfq, error) {
	var rec models.ApprovalRecord
	err := s.DB.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.ErrNotFound.WithMessage("approval record not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if rec.EntityType != models.EntityRFQ {
		return &rec, nil, nil
	}
	rfq, err := FindRfq(ctx, s.DB, rec.EntityID)
	if err != nil {
		return nil, nil, err
	}
	return &rec, rfq, nil
}

// Decision is an approver's verdict on a pending record.
type Decision struct {
	Approve bool
	UserID  uint
	Comment *string
}

// Decide settles a PENDING record. Approving opens the next step's record,
// recording auto-approve steps as APPROVED on the way; approving the last
// step approves the entity. Rejecting sends an RFQ back to OPEN.
func (s *ApprovalService) Decide(ctx context.Context, recordID uint, d Decision) (*ApprovalOutcome, error) {
	var out *ApprovalOutcome
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.ApprovalRecord
		err := tx.First(&rec, recordID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound.WithMessage("approval record not found")
		}
		if err != nil {
			return err
		}
		if !rec.IsPending() {
			return apperr.ErrInvalidState.WithMessage("approval record is already " + rec.Status)
		}

		now := s.Now.now()
		status := models.ApprovalRejected
		if d.Approve {
			status = models.ApprovalApproved
		}
		decidedBy := d.UserID
		res := tx.Model(&models.ApprovalRecord{}).
			Where("id = ? AND status = ?", rec.ID, models.ApprovalPending).
			Updates(map[string]any{
				"status":     status,
				"comment":    d.Comment,
				"decided_by": &decidedBy,
				"decided_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrInvalidState.WithMessage("approval record was decided concurrently")
		}

		if !d.Approve {
			if rec.EntityType == models.EntityRFQ {
				if err := setRfqStatus(tx, rec.EntityID, models.RfqOpen); err != nil {
					return err
				}
			}
			out = &ApprovalOutcome{Status: models.RfqOpen}
			return nil
		}

		next, err := s.advance(tx, &rec)
		if err != nil {
			return err
		}
		if next == nil {
			if rec.EntityType == models.EntityRFQ {
				if err := setRfqStatus(tx, rec.EntityID, models.RfqApproved); err != nil {
					return err
				}
			}
			out = &ApprovalOutcome{Status: models.RfqApproved}
			return nil
		}
		out = &ApprovalOutcome{Status: models.RfqWaitingApproval, Record: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// advance creates the record for the first step after rec that needs a human
// decision. It returns nil when no such step remains.
func (s *ApprovalService) advance(tx *gorm.DB, rec *models.ApprovalRecord) (*models.ApprovalRecord, error) {
	wf, err := loadWorkflow(tx, rec.WorkflowID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidState.WithMessage("workflow no longer exists")
	}
	if err != nil {
		return nil, err
	}
	now := s.Now.now()
	for _, step := range wf.Steps {
		if step.StepOrder <= rec.StepOrder {
			continue
		}
		next := models.ApprovalRecord{
			WorkflowID: wf.ID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			StepOrder:  step.StepOrder,
			StepName:   step.Name,
			Status:     models.ApprovalPending,
		}
		if step.AutoApprove {
			next.Status = models.ApprovalApproved
			next.DecidedAt = &now
		}
		if err := tx.Create(&next).Error; err != nil {
			return nil, err
		}
		if !step.AutoApprove {
			return &next, nil
		}
	}
	return nil, nil
}

// Records lists the approval trail of an entity in step order.
func (s *ApprovalService) Records(ctx context.Context, entityType string, entityID uint) ([]models.ApprovalRecord, error) {
	var out []models.ApprovalRecord
	err := s.DB.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("step_order ASC, id ASC").
		Find(&out).Error
	return out, err
}
