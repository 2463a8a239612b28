package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/clock"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"github.com/smallbiznis/taxledger/internal/observability/metrics"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxErrorMessageLen = 1024
	bookkeepingTimeout = 5 * time.Second
)

type PipelineParams struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    glsyncdomain.Repository
	Adapter glsyncdomain.Adapter
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

// Pipeline drives journal entries through PENDING to SYNCED or FAILED. Each
// call makes exactly one adapter attempt.
type Pipeline struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    glsyncdomain.Repository
	adapter glsyncdomain.Adapter
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewPipeline(p PipelineParams) *Pipeline {
	return &Pipeline{
		log:     p.Log.Named("glsync.pipeline"),
		genID:   p.GenID,
		repo:    p.Repo,
		adapter: p.Adapter,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// NewService exposes the pipeline as the glsync service.
func NewService(p *Pipeline) glsyncdomain.Service {
	return p
}

func (p *Pipeline) SyncTransaction(ctx context.Context, tenantID, referenceID snowflake.ID, referenceType glsyncdomain.ReferenceType) error {
	if tenantID == 0 {
		return glsyncdomain.ErrInvalidTenant
	}
	if referenceID == 0 {
		return glsyncdomain.ErrInvalidReference
	}
	if !referenceType.Valid() {
		return glsyncdomain.ErrInvalidReferenceType
	}

	prior, err := p.repo.CountByReference(ctx, tenantID, referenceID)
	if err != nil {
		return fmt.Errorf("create journal entry: %w", err)
	}

	now := p.clock.Now()
	entry := glsyncdomain.JournalEntry{
		ID:            p.genID.Generate(),
		TenantID:      tenantID,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		SyncStatus:    glsyncdomain.SyncStatusPending,
		RetryCount:    prior,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.repo.Insert(ctx, &entry); err != nil {
		return fmt.Errorf("create journal entry: %w", err)
	}
	p.metrics.RecordSyncTransition(ctx, string(glsyncdomain.SyncStatusPending), string(referenceType))

	log := pkglog.With(ctx, p.log).With(
		zap.String("journal_entry_id", entry.ID.String()),
		zap.String("reference_id", referenceID.String()),
		zap.String("reference_type", string(referenceType)),
		zap.Int("retry_count", entry.RetryCount),
	)

	result, err := p.adapter.Sync(ctx, entry)
	if err != nil {
		p.markFailed(ctx, log, entry, err)
		return fmt.Errorf("gl sync %s: %w", entry.ID, err)
	}

	if err := p.repo.MarkSynced(ctx, entry.ID, result.ExternalID, p.clock.Now()); err != nil {
		p.markFailed(ctx, log, entry, err)
		return fmt.Errorf("mark journal entry synced: %w", err)
	}
	p.metrics.RecordSyncTransition(ctx, string(glsyncdomain.SyncStatusSynced), string(referenceType))

	log.Info("journal entry synced", zap.String("external_id", result.ExternalID))
	return nil
}

// markFailed records the terminal failure even when ctx is already done, so a
// caller timeout during the adapter call does not leave the row PENDING.
func (p *Pipeline) markFailed(ctx context.Context, log *zap.Logger, entry glsyncdomain.JournalEntry, cause error) {
	bookkeepingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	message := truncate(cause.Error(), maxErrorMessageLen)
	if err := p.repo.MarkFailed(bookkeepingCtx, entry.ID, message, p.clock.Now()); err != nil {
		if errors.Is(err, glsyncdomain.ErrEntryNotPending) {
			log.Warn("journal entry already terminal", zap.Error(cause))
			return
		}
		log.Error("mark journal entry failed", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	p.metrics.RecordSyncTransition(ctx, string(glsyncdomain.SyncStatusFailed), string(entry.ReferenceType))
	log.Warn("journal entry sync failed", zap.Error(cause))
}

func (p *Pipeline) GetSyncStatus(ctx context.Context, tenantID, referenceID snowflake.ID) (*glsyncdomain.JournalEntry, error) {
	if tenantID == 0 {
		return nil, glsyncdomain.ErrInvalidTenant
	}
	if referenceID == 0 {
		return nil, glsyncdomain.ErrInvalidReference
	}
	return p.repo.FindLatestByReference(ctx, tenantID, referenceID)
}

func (p *Pipeline) ListByReference(ctx context.Context, tenantID, referenceID snowflake.ID) ([]glsyncdomain.JournalEntry, error) {
	if tenantID == 0 {
		return nil, glsyncdomain.ErrInvalidTenant
	}
	if referenceID == 0 {
		return nil, glsyncdomain.ErrInvalidReference
	}
	return p.repo.ListByReference(ctx, tenantID, referenceID)
}

// ReconcileOrphans fails PENDING entries created more than olderThan ago.
// Such rows belong to callers that gave up between insert and the terminal
// update.
func (p *Pipeline) ReconcileOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("reconcile orphans: stale age must be positive, got %s", olderThan)
	}
	now := p.clock.Now()
	cutoff := now.Add(-olderThan)
	message := fmt.Sprintf("orphaned: no terminal transition before %s", cutoff.Format(time.RFC3339))

	n, err := p.repo.FailPendingBefore(ctx, cutoff, message, now)
	if err != nil {
		return 0, fmt.Errorf("reconcile orphans: %w", err)
	}
	p.metrics.RecordOrphansSwept(ctx, int(n))
	if n > 0 {
		pkglog.With(ctx, p.log).Warn("orphaned journal entries failed",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff),
		)
	}
	return int(n), nil
}

// truncate caps s at limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}
