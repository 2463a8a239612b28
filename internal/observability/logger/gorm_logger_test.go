package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select id from tax_rules"))
	assert.Equal(t, "INSERT", operationFromSQL("insert into journal_entries (id) values (1)"))
	assert.Equal(t, "UPDATE", operationFromSQL("  (UPDATE invoices SET status = 'SENT')"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH latest AS (SELECT 1) SELECT * FROM latest"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "tax_rules", tableFromSQL("SELECT id FROM tax_rules WHERE tax_code_id = ?"))
	assert.Equal(t, "journal_entries", tableFromSQL(`INSERT INTO "journal_entries" (id) VALUES (1)`))
	assert.Equal(t, "invoices", tableFromSQL("update invoices set status = 'SENT'"))
	assert.Equal(t, "", tableFromSQL("SELECT 1"))
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, gormLevel("DEBUG"))
	assert.Equal(t, gormlogger.Warn, gormLevel("info"))
	assert.Equal(t, gormlogger.Error, gormLevel("error"))
	assert.Equal(t, gormlogger.Silent, gormLevel("off"))
}

func TestLogModeReturnsCopy(t *testing.T) {
	base := NewGormLogger("info", 0)
	quiet := base.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Warn, base.level)
	assert.Equal(t, defaultSlowQuery, base.slowQuery)
	assert.Equal(t, gormlogger.Silent, quiet.level)
}

func TestTrace_RecordNotFoundIsNotAnError(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger("debug", time.Hour)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM invoices WHERE id = 1", 0
	}, gormlogger.ErrRecordNotFound)

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.DebugLevel, logs.All()[0].Level)
}

func TestTrace_ErrorsAndSlowQueries(t *testing.T) {
	logs := observeGlobal(t)
	l := NewGormLogger("info", 10*time.Millisecond)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO journal_entries (id) VALUES (1)", -1
	}, errors.New("UNIQUE constraint failed"))
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM tax_rules", 4
	}, nil)
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM tax_codes", 1
	}, nil)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
		assert.Equal(t, "journal_entries", entries[0].ContextMap()["table"])
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Equal(t, true, entries[1].ContextMap()["slow"])
		assert.Equal(t, int64(4), entries[1].ContextMap()["rows"])
	}
}
