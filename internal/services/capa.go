package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CAPA history events.
const (
	CAPAEventCreated         = "created"
	CAPAEventStatusChanged   = "status_changed"
	CAPAEventWhysUpdated     = "whys_updated"
	CAPAEventActionAdded     = "action_added"
	CAPAEventActionCompleted = "action_completed"
)

// CAPA action statuses.
const (
	ActionOpen = "open"
	ActionDone = "done"
)

type CAPAInput struct {
	SupplierID   uint   `json:"supplierId" validate:"required"`
	OrderID      *uint  `json:"orderId"`
	EvaluationID *uint  `json:"evaluationId"`
	Title        string `json:"title" validate:"required,max=255"`
	Description  string `json:"description"`
	ProblemWhat  string `json:"problemWhat" validate:"max=1000"`
	ProblemWhere string `json:"problemWhere" validate:"max=1000"`
	ProblemWhen  string `json:"problemWhen" validate:"max=1000"`
	ProblemWho   string `json:"problemWho" validate:"max=1000"`
	ProblemHow   string `json:"problemHow" validate:"max=1000"`
	RootCause    string `json:"rootCause"`
}

type CAPAStatusInput struct {
	Status        string `json:"status" validate:"required,oneof=open in_progress closed"`
	Effectiveness string `json:"effectiveness"`
}

type CAPAActionInput struct {
	Title   string     `json:"title" validate:"required,max=255"`
	Owner   string     `json:"owner" validate:"max=255"`
	DueDate *time.Time `json:"dueDate"`
}

type CAPAService struct {
	DB  *gorm.DB
	Now Clock
}

func NewCAPAService(db *gorm.DB) *CAPAService { return &CAPAService{DB: db} }

func invalid(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return apperr.ErrValidation.WithDetails(v)
}

func appendHistory(tx *gorm.DB, capaID uint, event string, userID uint, data map[string]any) error {
	h := models.CAPAHistory{CAPAID: capaID, Event: event}
	if userID != 0 {
		h.UserID = &userID
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		h.Data = datatypes.JSON(b)
	}
	return tx.Create(&h).Error
}

// findCAPA loads a CAPA whose supplier belongs to tenantID (0: any tenant).
func findCAPA(tx *gorm.DB, tenantID, id uint) (*models.CAPA, error) {
	var c models.CAPA
	err := tx.First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("capa not found")
	}
	if err != nil {
		return nil, err
	}
	if _, err := scopedSupplier(tx, tenantID, c.SupplierID); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create opens a CAPA against a supplier of tenantID (0: any tenant).
func (s *CAPAService) Create(ctx context.Context, tenantID uint, in CAPAInput, userID uint) (*models.CAPA, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	c := models.CAPA{
		SupplierID:   in.SupplierID,
		OrderID:      in.OrderID,
		EvaluationID: in.EvaluationID,
		Title:        in.Title,
		Description:  in.Description,
		Status:       models.CAPAOpen,
		ProblemWhat:  in.ProblemWhat,
		ProblemWhere: in.ProblemWhere,
		ProblemWhen:  in.ProblemWhen,
		ProblemWho:   in.ProblemWho,
		ProblemHow:   in.ProblemHow,
		RootCause:    in.RootCause,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := scopedSupplier(tx, tenantID, in.SupplierID); err != nil {
			return err
		}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		return appendHistory(tx, c.ID, CAPAEventCreated, userID, map[string]any{"title": c.Title})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, c.ID)
}

// Get loads a CAPA with its actions, whys and history.
func (s *CAPAService) Get(ctx context.Context, tenantID, id uint) (*models.CAPA, error) {
	if _, err := findCAPA(s.DB.WithContext(ctx), tenantID, id); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *CAPAService) load(ctx context.Context, id uint) (*models.CAPA, error) {
	var c models.CAPA
	err := s.DB.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Whys", func(db *gorm.DB) *gorm.DB { return db.Order("idx ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("capa not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the CAPAs of tenantID's suppliers, optionally filtered by
// supplier and status.
func (s *CAPAService) List(ctx context.Context, tenantID, supplierID uint, status string) ([]models.CAPA, error) {
	q := inTenant(s.DB.WithContext(ctx).Order("id DESC"), tenantID)
	if supplierID != 0 {
		q = q.Where("supplier_id = ?", supplierID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.CAPA
	err := q.Find(&out).Error
	return out, err
}

// SetStatus moves a CAPA to a new status and logs the change. Closing stamps
// the verifier. A closed CAPA cannot be changed.
func (s *CAPAService) SetStatus(ctx context.Context, tenantID, id uint, in CAPAStatusInput, userID uint) (*models.CAPA, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := findCAPA(tx, tenantID, id)
		if err != nil {
			return err
		}
		if c.Status == models.CAPAClosed {
			return apperr.ErrInvalidState.WithMessage("capa is closed")
		}
		if c.Status == in.Status {
			return nil
		}
		updates := map[string]any{"status": in.Status}
		if in.Effectiveness != "" {
			updates["effectiveness"] = in.Effectiveness
		}
		if in.Status == models.CAPAClosed {
			now := s.Now.now()
			updates["verified_by"] = &userID
			updates["verified_at"] = &now
		}
		if err := tx.Model(&models.CAPA{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return appendHistory(tx, id, CAPAEventStatusChanged, userID, map[string]any{"from": c.Status, "to": in.Status})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// ReplaceWhys swaps the "5 whys" chain in one transaction; entries get idx
// 1..n in input order. Blank entries are dropped.
func (s *CAPAService) ReplaceWhys(ctx context.Context, tenantID, id uint, whys []string, userID uint) (*models.CAPA, error) {
	texts := make([]string, 0, len(whys))
	for _, w := range whys {
		if w = strings.TrimSpace(w); w != "" {
			texts = append(texts, w)
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findCAPA(tx, tenantID, id); err != nil {
			return err
		}
		if err := tx.Where("capa_id = ?", id).Delete(&models.CAPAWhy{}).Error; err != nil {
			return err
		}
		if len(texts) > 0 {
			rows := make([]models.CAPAWhy, len(texts))
			for i, t := range texts {
				rows[i] = models.CAPAWhy{CAPAID: id, Idx: i + 1, Text: t}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return appendHistory(tx, id, CAPAEventWhysUpdated, userID, map[string]any{"count": len(texts)})
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// AddAction adds a remediation task.
func (s *CAPAService) AddAction(ctx context.Context, tenantID, id uint, in CAPAActionInput, userID uint) (*models.CAPAAction, error) {
	if err := invalid(validation.Struct(in)); err != nil {
		return nil, err
	}
	a := models.CAPAAction{CAPAID: id, Title: in.Title, Owner: in.Owner, DueDate: in.DueDate, Status: ActionOpen}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := findCAPA(tx, tenantID, id)
		if err != nil {
			return err
		}
		if c.Status == models.CAPAClosed {
			return apperr.ErrInvalidState.WithMessage("capa is closed")
		}
		if err := tx.Create(&a).Error; err != nil {
			return err
		}
		return appendHistory(tx, id, CAPAEventActionAdded, userID, map[string]any{"actionId": a.ID, "title": a.Title})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CompleteAction marks a task of the CAPA as done.
func (s *CAPAService) CompleteAction(ctx context.Context, tenantID, id, actionID, userID uint) (*models.CAPAAction, error) {
	var a models.CAPAAction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findCAPA(tx, tenantID, id); err != nil {
			return err
		}
		err := tx.Where("id = ? AND capa_id = ?", actionID, id).First(&a).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound.WithMessage("action not found")
		}
		if err != nil {
			return err
		}
		if a.Status == ActionDone {
			return apperr.ErrInvalidState.WithMessage("action already completed")
		}
		now := s.Now.now()
		if err := tx.Model(&models.CAPAAction{}).Where("id = ?", a.ID).
			Updates(map[string]any{"status": ActionDone, "completed_at": &now}).Error; err != nil {
			return err
		}
		a.Status, a.CompletedAt = ActionDone, &now
		return appendHistory(tx, id, CAPAEventActionCompleted, userID, map[string]any{"actionId": a.ID})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
