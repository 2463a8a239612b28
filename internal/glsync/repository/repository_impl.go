package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) glsyncdomain.Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, reference_id, reference_type, sync_status, retry_count,
		        external_id, error_message, synced_at, created_at, updated_at`

func (r *repository) CountByReference(ctx context.Context, tenantID, referenceID snowflake.ID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM journal_entries
		 WHERE tenant_id = ? AND reference_id = ?`,
		tenantID,
		referenceID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *repository) Insert(ctx context.Context, entry *glsyncdomain.JournalEntry) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO journal_entries (
			id, tenant_id, reference_id, reference_type, sync_status, retry_count,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.ReferenceID,
		entry.ReferenceType,
		entry.SyncStatus,
		entry.RetryCount,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repository) MarkSynced(ctx context.Context, id snowflake.ID, externalID string, at time.Time) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		 SET sync_status = ?, external_id = ?, synced_at = ?, error_message = NULL, updated_at = ?
		 WHERE id = ? AND sync_status = ?`,
		glsyncdomain.SyncStatusSynced,
		externalID,
		at,
		at,
		id,
		glsyncdomain.SyncStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return glsyncdomain.ErrEntryNotPending
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id snowflake.ID, message string, at time.Time) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		 SET sync_status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND sync_status = ?`,
		glsyncdomain.SyncStatusFailed,
		message,
		at,
		id,
		glsyncdomain.SyncStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return glsyncdomain.ErrEntryNotPending
	}
	return nil
}

func (r *repository) FindLatestByReference(ctx context.Context, tenantID, referenceID snowflake.ID) (*glsyncdomain.JournalEntry, error) {
	var entry glsyncdomain.JournalEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM journal_entries
		 WHERE tenant_id = ? AND reference_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		tenantID,
		referenceID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repository) ListByReference(ctx context.Context, tenantID, referenceID snowflake.ID) ([]glsyncdomain.JournalEntry, error) {
	var entries []glsyncdomain.JournalEntry
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+`
		 FROM journal_entries
		 WHERE tenant_id = ? AND reference_id = ?
		 ORDER BY created_at ASC, id ASC`,
		tenantID,
		referenceID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) FailPendingBefore(ctx context.Context, cutoff time.Time, message string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		 SET sync_status = ?, error_message = ?, updated_at = ?
		 WHERE sync_status = ? AND created_at < ?`,
		glsyncdomain.SyncStatusFailed,
		message,
		at,
		glsyncdomain.SyncStatusPending,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
