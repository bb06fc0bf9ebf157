package migration

import (
	"strings"

	"github.com/smallbiznis/kost/internal/config"
	"github.com/smallbiznis/kost/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate brings the schema up to date for the configured database type.
func Migrate(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
	log.Info("running migrations", zap.String("db_type", dbType))

	if dbType != db.TypePostgres {
		return AutoMigrate(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
