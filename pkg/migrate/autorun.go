package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date on boot, but only in dev with
// CARRENTAL_AUTO_MIGRATE set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})

	if cfg.DB.Driver == db.DriverSQLite {
		logg.Info(ctx, "applying sqlite schema (dev auto-run)")
		return ApplySQLiteSchema(ctx, client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	migrator, err := NewMigrator(sqlDB, DefaultDir, logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	return migrator.Up(ctx)
}
