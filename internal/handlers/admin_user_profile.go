package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"gorm.io/gorm"
)

// AdminUserProfileHandler handles user profile assignment.
// It allows admins to view users and assign them to profiles.
type AdminUserProfileHandler struct {
	DB            *gorm.DB
	CacheResolver *gate.CachedResolver[uint] // To invalidate cache on changes
}

// NewAdminUserProfileHandler creates a new admin user profile handler.
func NewAdminUserProfileHandler(db *gorm.DB, cacheResolver *gate.CachedResolver[uint]) *AdminUserProfileHandler {
	return &AdminUserProfileHandler{DB: db, CacheResolver: cacheResolver}
}

// List returns all users with their profile, optionally for one ?tenantId=.
func (h *AdminUserProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryID(r, "tenantId")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	q := h.DB.WithContext(r.Context()).Preload("Profile").Order("email")
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

// AssignProfile sets or clears (profileId null) the profile of user {id}.
func (h *AdminUserProfileHandler) AssignProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var in struct {
		ProfileID *uint `json:"profileId"`
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if in.ProfileID != nil && *in.ProfileID == 0 {
		in.ProfileID = nil
	}

	db := h.DB.WithContext(r.Context())
	if in.ProfileID != nil {
		// Verify profile exists
		var profile models.Profile
		err := db.Select("id").First(&profile, *in.ProfileID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.Error(w, r, apperr.ErrNotFound.WithMessage("profile not found"))
			return
		}
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
	}

	res := db.Model(&models.User{}).Where("id = ?", userID).Update("profile_id", in.ProfileID)
	if res.Error != nil {
		httpx.Error(w, r, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httpx.Error(w, r, apperr.ErrNotFound.WithMessage("user not found"))
		return
	}

	// Invalidate cache for this specific user
	if h.CacheResolver != nil {
		h.CacheResolver.Invalidate(userID)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":    userID,
		"profileId": in.ProfileID,
	})
}
