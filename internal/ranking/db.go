package ranking

import (
	"context"

	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// DB is the durable-read surface the rank resolver and syncer need. Both
// always query with a nil tx, never inside a caller-held transaction, but
// tx is threaded through rather than dropped since the same Store methods
// are also called by the mappack scorer from inside its own read transaction.
// Satisfied by *durable.Store in production and by durable.Fake in tests.
type DB interface {
	GetPBRows(ctx context.Context, tx durable.Tx, mapID int32, id selector.Identity) ([]durable.PBRow, error)
	CountPBRows(ctx context.Context, tx durable.Tx, mapID int32, id selector.Identity) (int64, error)
}

var _ DB = (*durable.Store)(nil)
