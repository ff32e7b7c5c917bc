package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/db"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"gorm.io/gorm"
)

// AdminProfileHandler handles CRUD operations for profiles.
// It allows admins to create, edit, delete profiles and manage their permissions.
type AdminProfileHandler struct {
	DB            *gorm.DB
	CacheResolver *gate.CachedResolver[uint] // To invalidate cache on changes
}

// NewAdminProfileHandler creates a new admin profile handler.
func NewAdminProfileHandler(db *gorm.DB, cacheResolver *gate.CachedResolver[uint]) *AdminProfileHandler {
	return &AdminProfileHandler{DB: db, CacheResolver: cacheResolver}
}

type profileInput struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
}

type profileView struct {
	models.Profile
	Codes     []string `json:"codes"`
	UserCount int64    `json:"userCount"`
}

func (h *AdminProfileHandler) invalidate() {
	if h.CacheResolver != nil {
		h.CacheResolver.InvalidateAll()
	}
}

// parseCodes validates permission codes into a set.
func parseCodes(codes []string) (gate.Set, error) {
	v := validation.Violations{}
	set := gate.Set{}
	for _, c := range codes {
		p, err := gate.ParsePermission(c)
		if err != nil {
			v["permissions."+c] = "invalid_permission"
			continue
		}
		set.Add(p)
	}
	if !v.Empty() {
		return nil, apperr.ErrValidation.WithDetails(v)
	}
	return set, nil
}

func (h *AdminProfileHandler) find(r *http.Request) (*models.Profile, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	var profile models.Profile
	err = h.DB.WithContext(r.Context()).Preload("Permissions").First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound.WithMessage("profile not found")
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (h *AdminProfileHandler) nameTaken(r *http.Request, name string, exceptID uint) (bool, error) {
	var n int64
	err := h.DB.WithContext(r.Context()).Model(&models.Profile{}).
		Where("name = ? AND id <> ?", name, exceptID).Count(&n).Error
	return n > 0, err
}

// List returns all profiles with their permission codes and user counts.
func (h *AdminProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	var profiles []models.Profile
	if err := h.DB.WithContext(r.Context()).Preload("Permissions").Order("name").Find(&profiles).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	out := make([]profileView, 0, len(profiles))
	for _, p := range profiles {
		var n int64
		if err := h.DB.WithContext(r.Context()).Model(&models.User{}).Where("profile_id = ?", p.ID).Count(&n).Error; err != nil {
			httpx.Error(w, r, err)
			return
		}
		out = append(out, profileView{Profile: p, Codes: p.Codes(), UserCount: n})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profiles": out})
}

// Create adds a profile with an optional initial permission set.
func (h *AdminProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in profileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if v := validation.Struct(in); !v.Empty() {
		httpx.Error(w, r, apperr.ErrValidation.WithDetails(v))
		return
	}
	set, err := parseCodes(in.Permissions)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if taken, err := h.nameTaken(r, in.Name, 0); err != nil || taken {
		if err == nil {
			err = apperr.ErrDuplicateName.WithMessage("profile name already exists")
		}
		httpx.Error(w, r, err)
		return
	}

	profile := models.Profile{Name: in.Name, Description: in.Description}
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		perms, err := db.EnsurePermissions(tx, set)
		if err != nil {
			return err
		}
		profile.Permissions = perms
		return tx.Create(&profile).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = apperr.ErrDuplicateName.WithMessage("profile name already exists")
	}
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, profileView{Profile: profile, Codes: profile.Codes()})
}

// Update renames a profile or changes its description.
func (h *AdminProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	profile, err := h.find(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in profileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if v := validation.Struct(in); !v.Empty() {
		httpx.Error(w, r, apperr.ErrValidation.WithDetails(v))
		return
	}
	if taken, err := h.nameTaken(r, in.Name, profile.ID); err != nil || taken {
		if err == nil {
			err = apperr.ErrDuplicateName.WithMessage("profile name already exists")
		}
		httpx.Error(w, r, err)
		return
	}
	profile.Name = in.Name
	profile.Description = in.Description
	if err := h.DB.WithContext(r.Context()).Omit("Permissions").Save(profile).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	// Invalidate all cache since profile may affect multiple users
	h.invalidate()
	httpx.JSON(w, http.StatusOK, profileView{Profile: *profile, Codes: profile.Codes()})
}

// Delete removes a profile that is neither a system profile nor assigned.
func (h *AdminProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profile, err := h.find(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	// Cannot delete system profiles (super_admin, buyer, ...)
	if profile.IsSystem {
		httpx.Error(w, r, apperr.ErrForbidden.WithMessage("cannot delete a system profile"))
		return
	}
	var users int64
	if err := h.DB.WithContext(r.Context()).Model(&models.User{}).Where("profile_id = ?", profile.ID).Count(&users).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	if users > 0 {
		httpx.Error(w, r, apperr.ErrConflict.WithMessage("profile has users"))
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(profile).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.invalidate()
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": profile.ID})
}

// SetPermissions replaces the profile's permission set with the given
// "resource:action" codes. Unknown codes are created.
func (h *AdminProfileHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	profile, err := h.find(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in struct {
		Permissions []string `json:"permissions"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	set, err := parseCodes(in.Permissions)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	err = h.DB.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		perms, err := db.EnsurePermissions(tx, set)
		if err != nil {
			return err
		}
		// Replace the profile's permissions (GORM handles the many2many table)
		if err := tx.Model(profile).Association("Permissions").Replace(perms); err != nil {
			return err
		}
		profile.Permissions = perms
		return nil
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	// Invalidate all cache since this profile may affect multiple users
	h.invalidate()
	httpx.JSON(w, http.StatusOK, profileView{Profile: *profile, Codes: profile.Codes()})
}

// ListPermissions returns all available permissions.
func (h *AdminProfileHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	var permissions []models.Permission
	if err := h.DB.WithContext(r.Context()).Order("resource_type, action").Find(&permissions).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}
