package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger routes gorm output through the request-scoped zap logger.
// Statements are logged without bound values, so tax ids and amounts stay
// out of the log stream. Missed lookups are the repositories' normal
// not-found path and are never logged.
type GormLogger struct {
	level     gormlogger.LogLevel
	slowQuery time.Duration
}

// NewGormLogger maps the application log level onto gorm's levels. A zero
// slowQuery uses 200ms.
func NewGormLogger(appLevel string, slowQuery time.Duration) *GormLogger {
	if slowQuery <= 0 {
		slowQuery = defaultSlowQuery
	}
	return &GormLogger{level: gormLevel(appLevel), slowQuery: slowQuery}
}

func gormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	case "silent", "off":
		return gormlogger.Silent
	default:
		return gormlogger.Warn
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, lvl zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	if len(data) > 0 {
		msg = fmt.Sprintf(msg, data...)
	}
	if ce := pkglog.L(ctx).Check(lvl, msg); ce != nil {
		ce.Write(zap.String("component", "gorm"))
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var lvl zapcore.Level
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.level < gormlogger.Error {
			return
		}
		lvl = zapcore.ErrorLevel
	case elapsed > l.slowQuery:
		if l.level < gormlogger.Warn {
			return
		}
		lvl = zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		lvl = zapcore.DebugLevel
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if elapsed > l.slowQuery {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := pkglog.L(ctx).Check(lvl, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

// ParamsFilter drops bound values before gorm renders the statement.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL names the first table a statement touches.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE", "JOIN":
			name := strings.Trim(tokens[i+1], `"();`+"`")
			if name != "" && !strings.HasPrefix(name, "(") {
				return strings.ToLower(name)
			}
		}
	}
	return ""
}

var _ gormlogger.Interface = (*GormLogger)(nil)
