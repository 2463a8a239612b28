package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SyncStatus is the lifecycle state of one GL sync attempt.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "PENDING"
	SyncStatusSynced  SyncStatus = "SYNCED"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// ReferenceType names the kind of business document being synced.
type ReferenceType string

const (
	ReferenceTypeInvoice ReferenceType = "INVOICE"
	ReferenceTypePayment ReferenceType = "PAYMENT"
)

func (t ReferenceType) Valid() bool {
	switch t {
	case ReferenceTypeInvoice, ReferenceTypePayment:
		return true
	default:
		return false
	}
}

// JournalEntry records one attempt to push a document to the external GL.
// Rows are never reused: a retry inserts a new row whose RetryCount is the
// number of earlier attempts for the same reference.
type JournalEntry struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	ReferenceID   snowflake.ID  `gorm:"not null;index:idx_journal_entries_reference" json:"reference_id"`
	ReferenceType ReferenceType `gorm:"type:text;not null" json:"reference_type"`
	SyncStatus    SyncStatus    `gorm:"type:text;not null;default:'PENDING';index:idx_journal_entries_pending" json:"sync_status"`
	RetryCount    int           `gorm:"not null;default:0" json:"retry_count"`
	ExternalID    *string       `gorm:"type:text" json:"external_id,omitempty"`
	ErrorMessage  *string       `gorm:"type:text" json:"error_message,omitempty"`
	SyncedAt      *time.Time    `json:"synced_at,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_journal_entries_pending" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

// SyncResult is what the external GL returns for an accepted entry.
type SyncResult struct {
	ExternalID string
}
