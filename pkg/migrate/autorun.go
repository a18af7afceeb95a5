package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cinerent/cinerent-backend/pkg/config"
	"github.com/cinerent/cinerent-backend/pkg/db"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date when CINERENT_AUTO_MIGRATE is
// set. Postgres gets the embedded goose migrations; a SQLite dev database is
// built from the GORM models, since the migrations rely on Postgres enum types.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "db_driver": cfg.DB.Driver})

	if strings.EqualFold(cfg.DB.Driver, "sqlite") {
		logg.Info(ctx, "building sqlite schema from models")
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("automigrate sqlite: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	migrator, err := New(sqlDB, Options{}, logg)
	if err != nil {
		return err
	}
	logg.Info(ctx, "applying embedded migrations")
	if err := migrator.Up(ctx); err != nil {
		return err
	}
	version, err := migrator.Version(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "schema_version", version), "dev migrations complete")
	return nil
}
