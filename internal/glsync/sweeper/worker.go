package sweeper

import (
	"context"
	"time"

	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"github.com/smallbiznis/taxledger/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	runTimeout      = 30 * time.Second
	minPollInterval = time.Second
	sweepLockKey    = "taxledger:glsync:sweep"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Service glsyncdomain.Service
	Config  *config.SyncConfigHolder
	Locker  *ratelimit.Locker `optional:"true"`
}

// Worker fails PENDING journal entries that a crashed process left behind.
// Sweep settings are re-read on every tick so a reload of glsync.yml takes
// effect without a restart.
type Worker struct {
	log     *zap.Logger
	service glsyncdomain.Service
	cfg     *config.SyncConfigHolder
	locker  *ratelimit.Locker
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:     p.Log.Named("glsync.sweeper"),
		service: p.Service,
		cfg:     p.Config,
		locker:  p.Locker,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	timer := time.NewTimer(w.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Warn("orphan sweep failed", zap.Error(err))
		}
		timer.Reset(w.interval())
	}
}

// RunOnce performs a single sweep and reports how many entries it failed.
// A disabled sweep is a no-op. With redis configured only the instance
// holding the sweep lease runs it.
func (w *Worker) RunOnce(parentCtx context.Context) (int, error) {
	sweep := w.cfg.Get().Sweep
	if !sweep.Enabled {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(parentCtx, runTimeout)
	defer cancel()

	if w.locker.Enabled() {
		token, ok, err := w.locker.TryLock(ctx, sweepLockKey, w.interval())
		if err != nil {
			return 0, err
		}
		if !ok {
			w.log.Debug("orphan sweep held by another instance")
			return 0, nil
		}
		defer func() {
			if err := w.locker.Release(context.Background(), sweepLockKey, token); err != nil {
				w.log.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}

	swept, err := w.service.ReconcileOrphans(ctx, sweep.StaleAge)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		w.log.Info("orphaned journal entries failed",
			zap.Int("count", swept),
			zap.Duration("stale_age", sweep.StaleAge),
		)
	}
	return swept, nil
}

func (w *Worker) interval() time.Duration {
	interval := w.cfg.Get().Sweep.Interval
	if interval < minPollInterval {
		return minPollInterval
	}
	return interval
}
