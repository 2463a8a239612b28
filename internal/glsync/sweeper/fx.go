package sweeper

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("glsync.sweeper",
	fx.Provide(NewWorker),
	fx.Invoke(bindLifecycle),
)

// bindLifecycle runs the sweep loop for the life of the app. Stop waits for an
// in-flight sweep to return so a shutdown never strands half-failed entries.
func bindLifecycle(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
