package db

import (
	"fmt"
	"io"
	"testing"

	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}
	d, err := Open(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if sqlDB, err := d.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := Migrate(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func profileCodes(t *testing.T, d *gorm.DB, name string) []string {
	t.Helper()
	var p models.Profile
	if err := d.Preload("Permissions").Where("name = ?", name).First(&p).Error; err != nil {
		t.Fatalf("load profile %s: %v", name, err)
	}
	return p.Codes()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "mysql"}, zerolog.New(io.Discard)); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSeedIdempotent(t *testing.T) {
	d := setupTestDB(t)
	for i := 0; i < 2; i++ {
		if err := Seed(d, "acme", "admin@acme.test", "s3cret"); err != nil {
			t.Fatalf("seed run %d: %v", i+1, err)
		}
	}

	var permCount, profileCount, userCount, tenantCount int64
	d.Model(&models.Permission{}).Count(&permCount)
	d.Model(&models.Profile{}).Count(&profileCount)
	d.Model(&models.User{}).Count(&userCount)
	d.Model(&models.Tenant{}).Count(&tenantCount)
	if permCount != int64(len(permissionCatalog)) {
		t.Fatalf("expected %d permissions got %d", len(permissionCatalog), permCount)
	}
	if profileCount != 4 {
		t.Fatalf("expected 4 profiles got %d", profileCount)
	}
	if userCount != 1 || tenantCount != 1 {
		t.Fatalf("expected 1 user and 1 tenant got %d/%d", userCount, tenantCount)
	}

	if codes := profileCodes(t, d, "admin"); len(codes) != 1 || codes[0] != "*:*" {
		t.Fatalf("admin profile codes = %v", codes)
	}
	onayci := profileCodes(t, d, "onayci")
	if !contains(onayci, "rfq:approve") || contains(onayci, "ayarlar:write") {
		t.Fatalf("onayci profile codes = %v", onayci)
	}
}

func TestSeedAdminHashesPassword(t *testing.T) {
	d := setupTestDB(t)
	if err := Seed(d, "acme", "admin@acme.test", "s3cret"); err != nil {
		t.Fatal(err)
	}
	var u models.User
	if err := d.Preload("Profile").Where("email = ?", "admin@acme.test").First(&u).Error; err != nil {
		t.Fatal(err)
	}
	if u.Password == "s3cret" {
		t.Fatal("password stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("s3cret")); err != nil {
		t.Fatalf("hash mismatch: %v", err)
	}
	if u.Profile == nil || u.Profile.Name != "admin" {
		t.Fatalf("expected admin profile, got %+v", u.Profile)
	}
}

func TestSeedAdminWithoutPasswordCreatesNoUser(t *testing.T) {
	d := setupTestDB(t)
	if err := Seed(d, "acme", "admin@acme.test", ""); err != nil {
		t.Fatal(err)
	}
	var n int64
	d.Model(&models.User{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no users got %d", n)
	}
}

func TestParseLegacyPermissions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"flat", `["rfq:read","ayarlar:write"]`, []string{"ayarlar:write", "rfq:read"}, false},
		{"object", `{"rfq":["read","approve"],"ayarlar":["*"]}`, []string{"ayarlar:*", "rfq:approve", "rfq:read"}, false},
		{"drops invalid", `["rfq:read","broken",""]`, []string{"rfq:read"}, false},
		{"empty", ``, []string{}, false},
		{"null", `null`, []string{}, false},
		{"scalar", `42`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseLegacyPermissions([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			got := set.Codes()
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Fatalf("codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMigrateLegacyPermissions(t *testing.T) {
	d := setupTestDB(t)
	roles := []models.LegacyRole{
		{Name: "buyer", Permissions: datatypes.JSON(`{"rfq":["read","write"]}`)},
		{Name: "auditor", Permissions: datatypes.JSON(`["tedarikci:read"]`)},
		{Name: "corrupt", Permissions: datatypes.JSON(`"oops"`)},
	}
	if err := d.Create(&roles).Error; err != nil {
		t.Fatal(err)
	}

	report, err := MigrateLegacyPermissions(d, zerolog.New(io.Discard))
	if err == nil {
		t.Fatal("expected error for the corrupt role")
	}
	if report.Migrated != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if codes := profileCodes(t, d, "buyer"); fmt.Sprint(codes) != fmt.Sprint([]string{"rfq:read", "rfq:write"}) && fmt.Sprint(codes) != fmt.Sprint([]string{"rfq:write", "rfq:read"}) {
		t.Fatalf("buyer codes = %v", codes)
	}

	// second run leaves migrated roles alone
	report, _ = MigrateLegacyPermissions(d, zerolog.New(io.Discard))
	if report.Migrated != 0 || report.Skipped != 2 || report.Failed != 1 {
		t.Fatalf("unexpected second report %+v", report)
	}
	var n int64
	d.Model(&models.Profile{}).Where("name = ?", "buyer").Count(&n)
	if n != 1 {
		t.Fatalf("expected one buyer profile got %d", n)
	}
}
