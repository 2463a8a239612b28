package glsync

import (
	"github.com/smallbiznis/taxledger/internal/glsync/adapter"
	"github.com/smallbiznis/taxledger/internal/glsync/repository"
	"github.com/smallbiznis/taxledger/internal/glsync/service"
	"github.com/smallbiznis/taxledger/internal/glsync/sweeper"
	"go.uber.org/fx"
)

// Module wires the sync pipeline. Service makes a single attempt per call;
// Syncer is the retrying decorator used by invoice finalization.
var Module = fx.Module("glsync",
	fx.Provide(adapter.New),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewPipeline),
	fx.Provide(service.NewService),
	fx.Provide(service.NewRetryingSyncer),
	sweeper.Module,
)
