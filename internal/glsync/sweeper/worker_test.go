package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"github.com/smallbiznis/taxledger/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) SyncTransaction(ctx context.Context, tenantID, referenceID snowflake.ID, referenceType glsyncdomain.ReferenceType) error {
	return m.Called(ctx, tenantID, referenceID, referenceType).Error(0)
}

func (m *mockService) GetSyncStatus(ctx context.Context, tenantID, referenceID snowflake.ID) (*glsyncdomain.JournalEntry, error) {
	args := m.Called(ctx, tenantID, referenceID)
	entry, _ := args.Get(0).(*glsyncdomain.JournalEntry)
	return entry, args.Error(1)
}

func (m *mockService) ListByReference(ctx context.Context, tenantID, referenceID snowflake.ID) ([]glsyncdomain.JournalEntry, error) {
	args := m.Called(ctx, tenantID, referenceID)
	entries, _ := args.Get(0).([]glsyncdomain.JournalEntry)
	return entries, args.Error(1)
}

func (m *mockService) ReconcileOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func newTestWorker(svc glsyncdomain.Service, sweep config.SweepConfig) *Worker {
	cfg := config.DefaultSyncConfig()
	cfg.Sweep = sweep
	return NewWorker(Params{
		Log:     zap.NewNop(),
		Service: svc,
		Config:  config.NewStaticSyncConfigHolder(cfg),
	})
}

func TestRunOnceSkipsWhenDisabled(t *testing.T) {
	svc := &mockService{}
	w := newTestWorker(svc, config.SweepConfig{Enabled: false, StaleAge: time.Minute})

	swept, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
	svc.AssertNotCalled(t, "ReconcileOrphans", mock.Anything, mock.Anything)
}

func TestRunOnceReconcilesWithStaleAge(t *testing.T) {
	svc := &mockService{}
	svc.On("ReconcileOrphans", mock.Anything, 15*time.Minute).Return(3, nil).Once()
	w := newTestWorker(svc, config.SweepConfig{Enabled: true, StaleAge: 15 * time.Minute, Interval: time.Minute})

	swept, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, swept)
	svc.AssertExpectations(t)
}

func TestRunOncePropagatesError(t *testing.T) {
	svc := &mockService{}
	svc.On("ReconcileOrphans", mock.Anything, mock.Anything).Return(0, errors.New("db down")).Once()
	w := newTestWorker(svc, config.SweepConfig{Enabled: true, StaleAge: time.Minute})

	_, err := w.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestIntervalHasFloor(t *testing.T) {
	w := newTestWorker(&mockService{}, config.SweepConfig{Interval: time.Millisecond})
	assert.Equal(t, minPollInterval, w.interval())

	w = newTestWorker(&mockService{}, config.SweepConfig{Interval: 2 * time.Minute})
	assert.Equal(t, 2*time.Minute, w.interval())
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	w := newTestWorker(&mockService{}, config.SweepConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunForever(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunOnceSkipsSweepWhenLockUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	svc := &mockService{}
	w := newTestWorker(svc, config.SweepConfig{Enabled: true, StaleAge: time.Minute, Interval: time.Minute})
	w.locker = ratelimit.NewLocker(client)

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
	svc.AssertNotCalled(t, "ReconcileOrphans", mock.Anything, mock.Anything)
}
