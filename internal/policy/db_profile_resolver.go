package policy

import (
	"context"
	"errors"

	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
	"gorm.io/gorm"
)

// DBProfileResolver fetches user profiles from the database.
// It implements the gate.ProfileResolver interface for uint user IDs.
type DBProfileResolver struct {
	DB *gorm.DB
}

// NewDBProfileResolver creates a new database-backed profile resolver.
func NewDBProfileResolver(db *gorm.DB) *DBProfileResolver {
	return &DBProfileResolver{DB: db}
}

// Resolve looks up the user's profile from the database, preloading permissions.
// Returns nil if user has no profile assigned.
func (r *DBProfileResolver) Resolve(ctx context.Context, userID uint) (gate.Profile, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Preload("Profile.Permissions").First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	if user.Profile == nil {
		return nil, nil // User has no profile assigned
	}
	return newProfileAdapter(user.Profile), nil
}

// TenantOf returns the tenant the user belongs to.
func (r *DBProfileResolver) TenantOf(ctx context.Context, userID uint) (uint, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Select("id", "tenant_id").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, gate.ErrUnauthenticated
	}
	if err != nil {
		return 0, err
	}
	return user.TenantID, nil
}

// dbProfileAdapter wraps a models.Profile to implement gate.Profile.
// Rows are converted to a gate.Set once; invalid codes are dropped.
type dbProfileAdapter struct {
	profile *models.Profile
	perms   gate.Set
}

func newProfileAdapter(p *models.Profile) *dbProfileAdapter {
	return &dbProfileAdapter{profile: p, perms: gate.NewSet(p.Codes()...)}
}

func (a *dbProfileAdapter) ID() uint              { return a.profile.ID }
func (a *dbProfileAdapter) Name() string          { return a.profile.Name }
func (a *dbProfileAdapter) Permissions() gate.Set { return a.perms }

// HasPermission supports "*:*" and "resource:*" wildcards.
func (a *dbProfileAdapter) HasPermission(perm gate.Permission) bool {
	return a.perms.Allows(perm)
}
