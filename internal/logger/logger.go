package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options describes the process-wide logger.
type Options struct {
	Service     string
	Version     string
	Environment string
	Level       string
}

// New builds the JSON logger every component derives from and installs it as
// the zap global. Service, version and environment ride on every line.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(opts.Level); raw != "" {
		parsed, err := zapcore.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		level = parsed
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    initialFields(opts),
	}
	if level == zapcore.DebugLevel {
		cfg.Development = true
	} else {
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

func initialFields(opts Options) map[string]interface{} {
	fields := map[string]interface{}{}
	if opts.Service != "" {
		fields["service"] = opts.Service
	}
	if opts.Version != "" {
		fields["version"] = opts.Version
	}
	if opts.Environment != "" {
		fields["env"] = opts.Environment
	}
	return fields
}
