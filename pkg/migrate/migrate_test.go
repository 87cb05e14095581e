package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestOrdersMigrationDeclaresOpenOrderIndex(t *testing.T) {
	for _, dir := range []string{DirFor("postgres"), DirFor("sqlite")} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.sql"))
		if err != nil {
			t.Fatalf("glob: %v", err)
		}
		found := false
		for _, file := range matches {
			data, err := os.ReadFile(file)
			if err != nil {
				t.Fatalf("read %s: %v", file, err)
			}
			content := string(data)
			if strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_listing_open") {
				found = true
				for _, status := range []string{"'pending'", "'paid'", "'awaiting_shipping'", "'shipped'", "'delivered'"} {
					if !strings.Contains(content, status) {
						t.Fatalf("%s: open order index missing %s", file, status)
					}
				}
			}
		}
		if !found {
			t.Fatalf("no open order index in %s", dir)
		}
	}
}

func TestUpAppliesSQLiteSchema(t *testing.T) {
	dsn := fmt.Sprintf("file:migrate_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := Up(context.Background(), sqlDB, "sqlite"); err != nil {
		t.Fatalf("up: %v", err)
	}
	for _, table := range []string{"listings", "orders", "live_moments", "profiles", "outbox_events", "outbox_dlq"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	path, err := createAt(dir, "Add Listing Tags!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260501120000_add_listing_tags.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := createAt(dir, "add listing tags", now); err == nil {
		t.Fatal("expected duplicate filename error")
	}
	if _, err := createAt(dir, "!!!", now); err == nil {
		t.Fatal("expected error for empty sanitized name")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestAutoRunReason(t *testing.T) {
	dev := &config.Config{App: config.AppConfig{Env: "dev"}}
	devFlag := &config.Config{App: config.AppConfig{Env: "dev"}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}
	prodFlag := &config.Config{App: config.AppConfig{Env: "prod"}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}

	cases := []struct {
		name   string
		cfg    *config.Config
		driver string
		want   string
		run    bool
	}{
		{"sqlite always", prodFlag, config.DriverSQLite, "sqlite", true},
		{"dev without flag", dev, config.DriverPostgres, "", false},
		{"dev with flag", devFlag, config.DriverPostgres, "dev_flag", true},
		{"prod with flag", prodFlag, config.DriverPostgres, "", false},
		{"no config", nil, config.DriverPostgres, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, run := autoRunReason(tc.cfg, tc.driver)
			if run != tc.run || reason != tc.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", reason, run, tc.want, tc.run)
			}
		})
	}
}
