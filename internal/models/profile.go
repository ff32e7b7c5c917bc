package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile represents a user authorization profile that groups permissions.
// A user is assigned to one profile, inheriting all its permissions.
type Profile struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string         `gorm:"size:500" json:"description,omitempty"`
	IsSystem    bool           `json:"isSystem"`
	// Many-to-many relationship via profile_permissions join table.
	Permissions []Permission `gorm:"many2many:profile_permissions;" json:"permissions,omitempty"`
	Users       []User       `gorm:"foreignKey:ProfileID" json:"users,omitempty"`
}

// Codes returns the profile's permissions in "resource:action" form.
func (p *Profile) Codes() []string {
	out := make([]string, 0, len(p.Permissions))
	for _, perm := range p.Permissions {
		out = append(out, perm.Code())
	}
	return out
}

// Permission represents a single action allowed on a resource type.
// Format: "resource:action" (e.g., "rfq:approve", "ayarlar:read").
type Permission struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	ResourceType string         `gorm:"size:50;not null;uniqueIndex:idx_perm_resource_action" json:"resourceType"`
	Action       string         `gorm:"size:50;not null;uniqueIndex:idx_perm_resource_action" json:"action"`
	Description  string         `gorm:"size:200" json:"description,omitempty"`
}

// Code returns the permission in "resource:action" format for matching.
func (p Permission) Code() string {
	return p.ResourceType + ":" + p.Action
}

// LegacyRole holds role rows written before permissions were normalised.
// Permissions is either an object of arrays ({"rfq":["read"]}) or a flat
// array of "resource:action" strings. MigratedAt is set once converted.
type LegacyRole struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"createdAt"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Permissions datatypes.JSON `json:"permissions"`
	MigratedAt  *time.Time     `json:"migratedAt,omitempty"`
}
