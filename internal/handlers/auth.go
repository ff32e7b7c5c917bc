package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-procurement/internal/apperr"
	"github.com/diewo77/go-procurement/internal/auth"
	"github.com/diewo77/go-procurement/internal/httpx"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var errBadCredentials = apperr.ErrUnauthorized.WithMessage("invalid email or password")

// Login checks the credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Error(w, r, err)
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if v := validation.Struct(in); !v.Empty() {
		httpx.Error(w, r, apperr.ErrValidation.WithDetails(v))
		return
	}

	var user models.User
	err := h.db.WithContext(r.Context()).Where("email = ?", in.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.Error(w, r, errBadCredentials)
		return
	}
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		httpx.Error(w, r, errBadCredentials)
		return
	}

	auth.CreateSession(w, user.ID)
	httpx.JSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the session user with the permission codes of their profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	var user models.User
	err := h.db.WithContext(r.Context()).Preload("Profile.Permissions").First(&user, currentUser(r)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.Error(w, r, apperr.ErrUnauthorized)
		return
	}
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	permissions := []string{}
	if user.Profile != nil {
		permissions = user.Profile.Codes()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": permissions,
	})
}
