package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/clock"
	"github.com/smallbiznis/taxledger/internal/config"
	"github.com/smallbiznis/taxledger/internal/glsync"
	"github.com/smallbiznis/taxledger/internal/invoice"
	"github.com/smallbiznis/taxledger/internal/logger"
	"github.com/smallbiznis/taxledger/internal/migration"
	"github.com/smallbiznis/taxledger/internal/observability"
	"github.com/smallbiznis/taxledger/internal/ratelimit"
	"github.com/smallbiznis/taxledger/internal/server"
	"github.com/smallbiznis/taxledger/internal/tax"
	"github.com/smallbiznis/taxledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		ratelimit.Module,

		// Functional Domains
		tax.Module,
		glsync.Module,
		invoice.Module,

		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
