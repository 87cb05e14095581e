package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
)

// autoRunReason reports why a binary should apply migrations on boot. The
// local sqlite database always migrates; postgres only in dev behind the
// auto-migrate flag. Anything else is left to cmd/migrate.
func autoRunReason(cfg *config.Config, driver string) (string, bool) {
	switch {
	case driver == config.DriverSQLite:
		return "sqlite", true
	case cfg == nil:
		return "", false
	case cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate:
		return "dev_flag", true
	default:
		return "", false
	}
}

// MaybeRunDev applies pending migrations when autoRunReason allows it.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client == nil {
		return fmt.Errorf("db client required")
	}
	reason, ok := autoRunReason(cfg, client.Driver())
	if !ok {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"driver": client.Driver(),
			"dir":    DirFor(client.Driver()),
			"reason": reason,
		})
	}
	started := time.Now()
	if err := Up(ctx, sqlDB, client.Driver()); err != nil {
		return fmt.Errorf("auto-migrate (%s): %w", reason, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "elapsed_ms", time.Since(started).Milliseconds()), "migrate.autorun.applied")
	}
	return nil
}
