package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-procurement/internal/gate"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrUnknownPermissionShape is returned for blobs that are neither a list of
// codes nor an object of action lists.
var ErrUnknownPermissionShape = errors.New("unknown legacy permission shape")

// ParseLegacyPermissions converts either legacy representation into a Set:
//
//	["rfq:read", "ayarlar:write"]
//	{"rfq": ["read", "approve"], "ayarlar": ["*"]}
//
// Entries that do not form a valid code are dropped.
func ParseLegacyPermissions(raw []byte) (gate.Set, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return gate.Set{}, nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return gate.NewSet(flat...), nil
	}
	var nested map[string][]string
	if err := json.Unmarshal(raw, &nested); err == nil {
		set := gate.Set{}
		for resource, actions := range nested {
			for _, action := range actions {
				if p, err := gate.ParsePermission(resource + ":" + action); err == nil {
					set.Add(p)
				}
			}
		}
		return set, nil
	}
	return nil, ErrUnknownPermissionShape
}

// LegacyMigrationReport summarises a MigrateLegacyPermissions run.
type LegacyMigrationReport struct {
	Migrated int
	Skipped  int
	Failed   int
}

// MigrateLegacyPermissions converts every unmigrated LegacyRole into a Profile
// of the same name. Each role is migrated in its own transaction and stamped
// with MigratedAt, so the command can be re-run safely.
func MigrateLegacyPermissions(db *gorm.DB, log zerolog.Logger) (LegacyMigrationReport, error) {
	var report LegacyMigrationReport
	var roles []models.LegacyRole
	if err := db.Where("migrated_at IS NULL").Order("id").Find(&roles).Error; err != nil {
		return report, err
	}
	var already int64
	if err := db.Model(&models.LegacyRole{}).Where("migrated_at IS NOT NULL").Count(&already).Error; err != nil {
		return report, err
	}
	report.Skipped = int(already)

	for _, role := range roles {
		set, err := ParseLegacyPermissions(role.Permissions)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Uint("role_id", role.ID).Str("role", role.Name).Msg("legacy role not migrated")
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if _, err := upsertProfile(tx, role.Name, "Migrated from legacy role", false, set); err != nil {
				return err
			}
			now := time.Now()
			return tx.Model(&models.LegacyRole{}).Where("id = ?", role.ID).Update("migrated_at", &now).Error
		})
		if err != nil {
			report.Failed++
			log.Error().Err(err).Uint("role_id", role.ID).Str("role", role.Name).Msg("legacy role migration failed")
			continue
		}
		report.Migrated++
		log.Info().Uint("role_id", role.ID).Str("role", role.Name).Strs("permissions", set.Codes()).Msg("legacy role migrated")
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%d legacy roles failed to migrate", report.Failed)
	}
	return report, nil
}
