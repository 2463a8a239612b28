package logger

import (
	"context"

	"github.com/smallbiznis/taxledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewFromConfig builds the application logger from Config.
func NewFromConfig(cfg config.Config) (*zap.Logger, error) {
	return New(Options{
		Service:     cfg.AppName,
		Version:     cfg.AppVersion,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
}

var Module = fx.Module("logger",
	fx.Provide(NewFromConfig),
	fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger) {
		lc.Append(fx.StopHook(func(context.Context) error {
			// stdout sync fails on some terminals
			_ = log.Sync()
			return nil
		}))
	}),
)
