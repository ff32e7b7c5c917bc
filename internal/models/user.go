package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant is an isolated customer organisation. Most business rows carry a TenantID.
type Tenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Active    bool           `gorm:"not null" json:"active"`
}

// TenantScoped is implemented by rows that belong to a single tenant.
type TenantScoped interface {
	GetTenantID() uint
}

// User represents an authenticated user in the system.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID  uint           `gorm:"index;not null" json:"tenantId"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string         `gorm:"size:255" json:"name,omitempty"`
	Password  string         `gorm:"size:255;not null" json:"-"` // Hashed, never exposed in JSON
	// ProfileID links the user to an authorization profile.
	// A nil value means the user has no profile assigned (no permissions).
	ProfileID *uint    `gorm:"index" json:"profileId,omitempty"`
	Profile   *Profile `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
}

func (u *User) GetTenantID() uint { return u.TenantID }
