package adapter

import (
	"context"

	"github.com/oklog/ulid/v2"
	glsyncdomain "github.com/smallbiznis/taxledger/internal/glsync/domain"
	"go.uber.org/zap"
)

// StubAdapter accepts every entry and invents an external id. It stands in
// for the GL in development.
type StubAdapter struct {
	log *zap.Logger
}

func NewStubAdapter(log *zap.Logger) *StubAdapter {
	return &StubAdapter{log: log.Named("glsync.adapter.stub")}
}

func (a *StubAdapter) Sync(ctx context.Context, entry glsyncdomain.JournalEntry) (glsyncdomain.SyncResult, error) {
	if err := ctx.Err(); err != nil {
		return glsyncdomain.SyncResult{}, err
	}
	externalID := "gl_" + ulid.Make().String()
	a.log.Debug("stub gl accepted entry",
		zap.String("journal_entry_id", entry.ID.String()),
		zap.String("external_id", externalID),
	)
	return glsyncdomain.SyncResult{ExternalID: externalID}, nil
}

func (a *StubAdapter) Status() string {
	return "stub"
}
