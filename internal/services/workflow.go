package services

import (
	"context"
	"errors"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StepInput is one approval step as supplied by the client. Its position in
// the list becomes its stepOrder.
type StepInput struct {
	Name         string           `json:"name" validate:"required"`
	ApproverRole string           `json:"approverRole" validate:"required"`
	ApproverUnit *string          `json:"approverUnit"`
	Required     *bool            `json:"required"`
	AutoApprove  bool             `json:"autoApprove"`
	BudgetLimit  *decimal.Decimal `json:"budgetLimit"`
}

type WorkflowInput struct {
	Name        string      `json:"name" validate:"required,max=100"`
	DisplayName string      `json:"displayName"`
	EntityType  string      `json:"entityType" validate:"required,oneof=Request Order RFQ"`
	Active      *bool       `json:"active"`
	Steps       []StepInput `json:"steps" validate:"dive"`
}

type stepList struct {
	Steps []StepInput `json:"steps" validate:"dive"`
}

type WorkflowService struct{ DB *gorm.DB }

func NewWorkflowService(db *gorm.DB) *WorkflowService { return &WorkflowService{DB: db} }

func orderedSteps(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }

// List returns workflows with their steps, optionally filtered by entity type.
func (s *WorkflowService) List(ctx context.Context, entityType string) ([]models.WorkflowDefinition, error) {
	q := s.DB.WithContext(ctx).Preload("Steps", orderedSteps).Order("id ASC")
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	var out []models.WorkflowDefinition
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WorkflowService) Get(ctx context.Context, id uint) (*models.WorkflowDefinition, error) {
	return loadWorkflow(s.DB.WithContext(ctx), id)
}

func loadWorkflow(tx *gorm.DB, id uint) (*models.WorkflowDefinition, error) {
	var wf models.WorkflowDefinition
	err := tx.Preload("Steps", orderedSteps).First(&wf, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("workflow not found")
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func validateWorkflow(in WorkflowInput) error {
	if v := validation.Struct(in); !v.Empty() {
		return apperr.ErrValidation.WithDetails(v)
	}
	return nil
}

// nameTaken reports whether another workflow (other than exceptID) uses name.
func nameTaken(tx *gorm.DB, name string, exceptID uint) (bool, error) {
	var n int64
	err := tx.Model(&models.WorkflowDefinition{}).Where("name = ? AND id <> ?", name, exceptID).Count(&n).Error
	return n > 0, err
}

func duplicateName(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrDuplicateName.WithMessage("workflow name already exists")
	}
	return err
}

// deactivateOthers keeps at most one active workflow per entity type.
func deactivateOthers(tx *gorm.DB, entityType string, keepID uint) error {
	return tx.Model(&models.WorkflowDefinition{}).
		Where("entity_type = ? AND active = ? AND id <> ?", entityType, true, keepID).
		Update("active", false).Error
}

// Create inserts the workflow and its steps in one transaction. A taken name
// fails with duplicate_name and writes nothing.
func (s *WorkflowService) Create(ctx context.Context, in WorkflowInput) (*models.WorkflowDefinition, error) {
	if err := validateWorkflow(in); err != nil {
		return nil, err
	}
	wf := models.WorkflowDefinition{
		Name:        in.Name,
		DisplayName: in.DisplayName,
		EntityType:  in.EntityType,
		Active:      in.Active == nil || *in.Active,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, in.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrDuplicateName.WithMessage("workflow name already exists")
		}
		if err := tx.Omit("Steps").Create(&wf).Error; err != nil {
			return duplicateName(err)
		}
		if wf.Active {
			if err := deactivateOthers(tx, wf.EntityType, wf.ID); err != nil {
				return err
			}
		}
		return replaceSteps(tx, wf.ID, in.Steps)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, wf.ID)
}

// Update changes the workflow fields and replaces its steps wholesale.
func (s *WorkflowService) Update(ctx context.Context, id uint, in WorkflowInput) (*models.WorkflowDefinition, error) {
	if err := validateWorkflow(in); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wf, err := loadWorkflow(tx, id)
		if err != nil {
			return err
		}
		taken, err := nameTaken(tx, in.Name, id)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrDuplicateName.WithMessage("workflow name already exists")
		}
		active := wf.Active
		if in.Active != nil {
			active = *in.Active
		}
		if err := tx.Model(&models.WorkflowDefinition{}).Where("id = ?", id).Updates(map[string]any{
			"name":         in.Name,
			"display_name": in.DisplayName,
			"entity_type":  in.EntityType,
			"active":       active,
		}).Error; err != nil {
			return duplicateName(err)
		}
		if active {
			if err := deactivateOthers(tx, in.EntityType, id); err != nil {
				return err
			}
		}
		return replaceSteps(tx, id, in.Steps)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ReplaceSteps swaps the whole step list of a workflow atomically.
func (s *WorkflowService) ReplaceSteps(ctx context.Context, id uint, steps []StepInput) ([]models.ApprovalStep, error) {
	if v := validation.Struct(stepList{Steps: steps}); !v.Empty() {
		return nil, apperr.ErrValidation.WithDetails(v)
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadWorkflow(tx, id); err != nil {
			return err
		}
		return replaceSteps(tx, id, steps)
	})
	if err != nil {
		return nil, err
	}
	wf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return wf.Steps, nil
}

// replaceSteps deletes every step of the workflow and recreates them with
// stepOrder = position + 1. Existing approval records are left as they are.
func replaceSteps(tx *gorm.DB, workflowID uint, steps []StepInput) error {
	if err := tx.Where("workflow_id = ?", workflowID).Delete(&models.ApprovalStep{}).Error; err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	rows := make([]models.ApprovalStep, len(steps))
	for i, st := range steps {
		rows[i] = models.ApprovalStep{
			WorkflowID:   workflowID,
			StepOrder:    i + 1,
			Name:         st.Name,
			ApproverRole: st.ApproverRole,
			ApproverUnit: st.ApproverUnit,
			Required:     st.Required == nil || *st.Required,
			AutoApprove:  st.AutoApprove,
		}
		if st.BudgetLimit != nil {
			rows[i].BudgetLimit = decimal.NewNullDecimal(*st.BudgetLimit)
		}
	}
	return tx.Create(&rows).Error
}

// Delete removes the workflow and its steps. Approval records that point at
// it are kept.
func (s *WorkflowService) Delete(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadWorkflow(tx, id); err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&models.ApprovalStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.WorkflowDefinition{}, id).Error
	})
}

// ActiveWorkflow returns the active workflow for entityType with its steps,
// or nil when none applies.
func ActiveWorkflow(tx *gorm.DB, entityType string) (*models.WorkflowDefinition, error) {
	var wf models.WorkflowDefinition
	err := tx.Preload("Steps", orderedSteps).
		Where("entity_type = ? AND active = ?", entityType, true).
		Order("id DESC").First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}
