package db

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var permissionCatalog = []struct {
	ResourceType string
	Action       string
	Description  string
}{
	// Superadmin wildcard
	{"*", "*", "Full system access across tenants"},
	// Settings (workflow definitions)
	{"ayarlar", "*", "All settings actions"},
	{"ayarlar", "read", "View settings and workflows"},
	{"ayarlar", "write", "Edit settings and workflows"},
	// RFQs
	{"rfq", "*", "All RFQ actions"},
	{"rfq", "read", "View RFQs and approval records"},
	{"rfq", "write", "Edit RFQs and run negotiations"},
	{"rfq", "approve", "Send RFQs to approval and decide steps"},
	// Supplier evaluation
	{"tedarikci", "*", "All supplier evaluation actions"},
	{"tedarikci", "read", "View supplier scores, alerts and CAPAs"},
	{"tedarikci", "write", "Ingest metrics, run scoring and manage CAPAs"},
	// Profile management
	{"profile", "*", "All profile management"},
	{"profile", "read", "View profiles"},
	{"profile", "write", "Edit profiles"},
}

// SeedPermissions creates the permission catalog.
func SeedPermissions(db *gorm.DB) error {
	for _, p := range permissionCatalog {
		perm := models.Permission{
			ResourceType: p.ResourceType,
			Action:       p.Action,
			Description:  p.Description,
		}
		// Use FirstOrCreate to avoid duplicates
		result := db.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

// EnsurePermissions returns the Permission rows for set, creating any that are missing.
func EnsurePermissions(tx *gorm.DB, set gate.Set) ([]models.Permission, error) {
	perms := make([]models.Permission, 0, len(set))
	for _, code := range set.Codes() {
		res, act := gate.Permission(code).Parse()
		perm := models.Permission{ResourceType: res, Action: string(act)}
		if err := tx.Where("resource_type = ? AND action = ?", res, string(act)).
			FirstOrCreate(&perm).Error; err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

// upsertProfile finds or creates the profile by name and replaces its permissions.
func upsertProfile(tx *gorm.DB, name, description string, isSystem bool, set gate.Set) (*models.Profile, error) {
	var profile models.Profile
	err := tx.Where("name = ?", name).First(&profile).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.Profile{Name: name, Description: description, IsSystem: isSystem}
		if err := tx.Create(&profile).Error; err != nil {
			return nil, err
		}
	}
	perms, err := EnsurePermissions(tx, set)
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&profile).Association("Permissions").Replace(perms); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SeedProfiles creates the default system profiles with their permissions.
func SeedProfiles(db *gorm.DB) error {
	if err := SeedPermissions(db); err != nil {
		return err
	}

	profiles := []struct {
		Name        string
		Description string
		Permissions []string // "resource:action" format
	}{
		{"admin", "Super administrator, bypasses tenant isolation", []string{"*:*"}},
		{"satinalma", "Purchasing staff", []string{"rfq:read", "rfq:write", "tedarikci:*", "ayarlar:read"}},
		{"onayci", "Approver", []string{"rfq:read", "rfq:approve", "tedarikci:read"}},
		{"viewer", "Read-only access", []string{"rfq:read", "tedarikci:read", "ayarlar:read"}},
	}

	for _, p := range profiles {
		if _, err := upsertProfile(db, p.Name, p.Description, true, gate.NewSet(p.Permissions...)); err != nil {
			return fmt.Errorf("seed profile %s: %w", p.Name, err)
		}
	}
	return nil
}

// SeedAdmin ensures the default tenant exists and, when password is set, an
// admin user holding the admin profile.
func SeedAdmin(db *gorm.DB, tenantName, email, password string) error {
	tenant := models.Tenant{Name: tenantName, Active: true}
	if err := db.Where("name = ?", tenantName).FirstOrCreate(&tenant).Error; err != nil {
		return err
	}
	if password == "" {
		return nil
	}
	var admin models.Profile
	if err := db.Where("name = ?", "admin").First(&admin).Error; err != nil {
		return err
	}
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Create(&models.User{
		TenantID:  tenant.ID,
		Email:     email,
		Name:      "Administrator",
		Password:  string(hash),
		ProfileID: &admin.ID,
	}).Error
}

// Seed runs every seed step.
func Seed(db *gorm.DB, tenantName, adminEmail, adminPassword string) error {
	if err := SeedProfiles(db); err != nil {
		return err
	}
	return SeedAdmin(db, tenantName, adminEmail, adminPassword)
}
