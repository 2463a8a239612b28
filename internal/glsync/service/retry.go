package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	pkglog "github.com/smallbiznis/taxledger/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RetryParams struct {
	fx.In

	Log    *zap.Logger
	Inner  glsyncdomain.Service
	Config *config.SyncConfigHolder
}

// RetryingSyncer repeats failed syncs with exponential backoff. Every attempt
// goes through the wrapped syncer and so records its own journal entry.
type RetryingSyncer struct {
	log    *zap.Logger
	inner  glsyncdomain.Syncer
	config *config.SyncConfigHolder
}

func NewRetryingSyncer(p RetryParams) glsyncdomain.Syncer {
	return &RetryingSyncer{
		log:    p.Log.Named("glsync.retry"),
		inner:  p.Inner,
		config: p.Config,
	}
}

func (r *RetryingSyncer) SyncTransaction(ctx context.Context, tenantID, referenceID snowflake.ID, referenceType glsyncdomain.ReferenceType) error {
	cfg := r.config.Get().Retry
	log := pkglog.With(ctx, r.log).With(
		zap.String("reference_id", referenceID.String()),
		zap.String("reference_type", string(referenceType)),
	)

	attempt := 0
	var lastErr error
	operation := func() error {
		attempt++
		err := r.inner.SyncTransaction(ctx, tenantID, referenceID, referenceType)
		if err == nil {
			return nil
		}
		lastErr = err
		if glsyncdomain.IsValidationError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("gl sync attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, newBackOff(ctx, cfg), notify)
	if err == nil {
		return nil
	}
	// Once ctx is done backoff reports only ctx.Err(); keep the sync failure
	// that preceded it.
	if lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(lastErr, ctx.Err()) {
		err = fmt.Errorf("%w: last attempt: %w", err, lastErr)
	}
	log.Error("gl sync gave up",
		zap.Int("attempts", attempt),
		zap.Error(err),
		zap.NamedError("last_attempt_error", lastErr),
	)
	return err
}

func newBackOff(ctx context.Context, cfg config.RetryConfig) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialInterval
	exp.MaxInterval = cfg.MaxInterval
	exp.Multiplier = cfg.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}
