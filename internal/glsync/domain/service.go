package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Adapter pushes a journal entry to the external general ledger. It either
// accepts the entry and returns its external id, or fails.
type Adapter interface {
	Sync(ctx context.Context, entry JournalEntry) (SyncResult, error)
}

// StatusReporter is implemented by adapters that can describe their
// readiness for the health endpoint.
type StatusReporter interface {
	Status() string
}

type Repository interface {
	// Reference lookups are scoped to the tenant that created the entries.
	CountByReference(ctx context.Context, tenantID, referenceID snowflake.ID) (int, error)
	Insert(ctx context.Context, entry *JournalEntry) error
	// MarkSynced and MarkFailed only move PENDING rows and return
	// ErrEntryNotPending otherwise.
	MarkSynced(ctx context.Context, id snowflake.ID, externalID string, at time.Time) error
	MarkFailed(ctx context.Context, id snowflake.ID, message string, at time.Time) error
	FindLatestByReference(ctx context.Context, tenantID, referenceID snowflake.ID) (*JournalEntry, error)
	ListByReference(ctx context.Context, tenantID, referenceID snowflake.ID) ([]JournalEntry, error)
	FailPendingBefore(ctx context.Context, cutoff time.Time, message string, at time.Time) (int64, error)
}

// Syncer performs one synchronization of a business document.
type Syncer interface {
	SyncTransaction(ctx context.Context, tenantID, referenceID snowflake.ID, referenceType ReferenceType) error
}

type Service interface {
	Syncer
	GetSyncStatus(ctx context.Context, tenantID, referenceID snowflake.ID) (*JournalEntry, error)
	ListByReference(ctx context.Context, tenantID, referenceID snowflake.ID) ([]JournalEntry, error)
	ReconcileOrphans(ctx context.Context, olderThan time.Duration) (int, error)
}
