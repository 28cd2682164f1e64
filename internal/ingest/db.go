package ingest

import (
	"context"
	"time"

	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// DB is the durable-store surface finish ingestion needs end to end:
// player/map/event resolution, the read-write transaction it runs in, and
// every write inside that transaction. Satisfied by *durable.Store in
// production and by durable.Fake in tests.
type DB interface {
	MustHavePlayer(ctx context.Context, login string) (*model.Player, error)
	MustHaveMap(ctx context.Context, uid string) (*model.Map, error)
	HaveEventEditionWithMap(ctx context.Context, mapUID, handle string, editionID int32) (*model.Event, *model.EventEdition, *durable.MapLink, error)
	BeginReadWrite(ctx context.Context) (durable.Tx, error)
	GetPBTime(ctx context.Context, tx durable.Tx, playerID, mapID int32, id selector.Identity) (int32, bool, error)
	InsertRecord(ctx context.Context, tx durable.Tx, p durable.InsertRecordParams) (int64, error)
	LinkEventRecord(ctx context.Context, tx durable.Tx, recordID int64, eventID, editionID int32) error
	CloneRecordForOriginal(ctx context.Context, tx durable.Tx, originalMapID int32, sourceRecordID int64, playerID, t, rs int32, flags model.RecordFlags, ts time.Time) (int64, error)
	GetEditionsContainingMap(ctx context.Context, tx durable.Tx, mapID int32) ([]durable.EditionRef, error)
}

var _ DB = (*durable.Store)(nil)
