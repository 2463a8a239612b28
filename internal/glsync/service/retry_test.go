package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"github.com/smallbiznis/taxledger/internal/glsync/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncTransaction(ctx context.Context, tenantID, referenceID snowflake.ID, referenceType glsyncdomain.ReferenceType) error {
	return m.Called(ctx, tenantID, referenceID, referenceType).Error(0)
}

func newTestRetrying(inner glsyncdomain.Syncer, attempts int) *RetryingSyncer {
	cfg := config.DefaultSyncConfig()
	cfg.Retry.MaxAttempts = attempts
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond
	return &RetryingSyncer{
		log:    zap.NewNop(),
		inner:  inner,
		config: config.NewStaticSyncConfigHolder(cfg),
	}
}

func TestRetryingSyncer_SucceedsAfterTransientFailures(t *testing.T) {
	inner := new(mockSyncer)
	inner.On("SyncTransaction", mock.Anything, snowflake.ID(1), snowflake.ID(2), glsyncdomain.ReferenceTypeInvoice).
		Return(errors.New("503")).Twice()
	inner.On("SyncTransaction", mock.Anything, snowflake.ID(1), snowflake.ID(2), glsyncdomain.ReferenceTypeInvoice).
		Return(nil).Once()

	err := newTestRetrying(inner, 3).SyncTransaction(context.Background(), 1, 2, glsyncdomain.ReferenceTypeInvoice)
	require.NoError(t, err)
	inner.AssertNumberOfCalls(t, "SyncTransaction", 3)
}

func TestRetryingSyncer_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := new(mockSyncer)
	glErr := errors.New("gl down")
	inner.On("SyncTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(glErr)

	err := newTestRetrying(inner, 2).SyncTransaction(context.Background(), 1, 2, glsyncdomain.ReferenceTypeInvoice)
	assert.ErrorIs(t, err, glErr)
	inner.AssertNumberOfCalls(t, "SyncTransaction", 2)
}

func TestRetryingSyncer_DoesNotRetryValidationErrors(t *testing.T) {
	inner := new(mockSyncer)
	inner.On("SyncTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(glsyncdomain.ErrInvalidReferenceType)

	err := newTestRetrying(inner, 5).SyncTransaction(context.Background(), 1, 2, "REFUND")
	assert.ErrorIs(t, err, glsyncdomain.ErrInvalidReferenceType)
	inner.AssertNumberOfCalls(t, "SyncTransaction", 1)
}

func TestRetryingSyncer_StopsOnCancelledContext(t *testing.T) {
	inner := new(mockSyncer)
	ctx, cancel := context.WithCancel(context.Background())
	inner.On("SyncTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(errors.New("timeout"))

	err := newTestRetrying(inner, 5).SyncTransaction(ctx, 1, 2, glsyncdomain.ReferenceTypeInvoice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "timeout")
	inner.AssertNumberOfCalls(t, "SyncTransaction", 1)
}

func TestRetryingSyncer_CancelledKeepsAdapterCause(t *testing.T) {
	inner := new(mockSyncer)
	ctx, cancel := context.WithCancel(context.Background())
	cause := fmt.Errorf("%w: status 503", glsyncdomain.ErrAdapterUnavailable)
	inner.On("SyncTransaction", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(cause)

	err := newTestRetrying(inner, 3).SyncTransaction(ctx, 1, 2, glsyncdomain.ReferenceTypeInvoice)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, glsyncdomain.ErrAdapterUnavailable)
}

func TestRetryingSyncer_EachAttemptRecordsEntry(t *testing.T) {
	repoDB := newTestDB(t)
	adapter := new(mockAdapter)
	adapter.On("Sync", mock.Anything, mock.Anything).Return(glsyncdomain.SyncResult{}, errors.New("busy")).Once()
	adapter.On("Sync", mock.Anything, mock.Anything).Return(glsyncdomain.SyncResult{ExternalID: "gl-r"}, nil).Once()

	p, _ := newTestPipeline(t, repository.NewRepository(repoDB), adapter)
	err := newTestRetrying(p, 3).SyncTransaction(context.Background(), 1, 42, glsyncdomain.ReferenceTypeInvoice)
	require.NoError(t, err)

	entries, err := p.ListByReference(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, glsyncdomain.SyncStatusFailed, entries[0].SyncStatus)
	assert.Equal(t, glsyncdomain.SyncStatusSynced, entries[1].SyncStatus)
	assert.Equal(t, 1, entries[1].RetryCount)
}
