package sweeper

import (
	"testing"
	"time"

	"github.com/smallbiznis/taxledger/internal/config"
	"go.uber.org/fx/fxtest"
)

func TestBindLifecycle_StopWaitsForLoop(t *testing.T) {
	svc := &mockService{}
	w := newTestWorker(svc, config.SweepConfig{Enabled: true, StaleAge: time.Minute, Interval: time.Hour})

	lc := fxtest.NewLifecycle(t)
	bindLifecycle(lc, w)

	lc.RequireStart().RequireStop()
	svc.AssertExpectations(t)
}
