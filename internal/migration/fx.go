package migration

import (
	"github.com/smallbiznis/taxledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("database auto migration disabled")
			return nil
		}
		if cfg.DBType != "postgres" {
			log.Info("embedded migrations target postgres, migrating models directly", zap.String("db_type", cfg.DBType))
			return AutoMigrateModels(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return Up(sqlDB, log)
	}),
)
