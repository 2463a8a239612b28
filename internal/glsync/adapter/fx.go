package adapter

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/taxledger/internal/config"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"go.uber.org/zap"
)

// New selects the GL adapter named by GL_ADAPTER.
func New(cfg config.Config, syncCfg *config.SyncConfigHolder, log *zap.Logger) (glsyncdomain.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.GL.Adapter)) {
	case config.GLAdapterHTTP:
		return NewHTTPAdapter(cfg.GL, syncCfg.Get().Breaker, log)
	case config.GLAdapterStub, "":
		if cfg.IsProduction() {
			log.Warn("stub gl adapter selected in production")
		}
		return NewStubAdapter(log), nil
	default:
		return nil, fmt.Errorf("unknown gl adapter %q", cfg.GL.Adapter)
	}
}
