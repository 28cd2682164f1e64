// Package ingest implements finish ingestion (§4.6): the write path invoked
// when a player reports finishing a map, including cross-map transitive
// saves and event-edition fan-out. Grounded on
// original_source/crates/game_api/src/http/player.rs (the original's
// player-finished handler) and crates/records_lib/src/context/event.rs (the
// fan-out / transitive-save control flow), re-expressed using the teacher's
// transactional database/sql style (server/core_leaderboard.go).
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// NoPriorRecordSentinel is the value used for OldTime/OldRank when the
// player has no prior record, per §4.6's "Output" definition.
const NoPriorRecordSentinel = -1

// Request is the input to a finish ingestion (§4.6 "Inputs").
type Request struct {
	PlayerLogin  string
	MapUID       string
	Time         int32
	RespawnCount int32
	Flags        model.RecordFlags
	ModeVersion  *string
	CPTimes      []int32

	// Event context; both nil for a non-event finish.
	EventHandle *string
	EditionID   *int32

	// Timestamp defaults to time.Now().UTC() if zero.
	Timestamp time.Time
}

// Result is the output of a finish ingestion (§4.6 "Output").
type Result struct {
	HasImproved bool
	OldTime     int32
	NewTime     int32
	OldRank     int
	CurrentRank int
}

// Ingestor runs finish ingestion end to end.
type Ingestor struct {
	logger   *zap.Logger
	db       DB
	fs       faststore.Store
	resolver *ranking.Resolver
	locks    *ranking.LockRegistry
}

func New(logger *zap.Logger, db DB, fs faststore.Store, resolver *ranking.Resolver, locks *ranking.LockRegistry) *Ingestor {
	return &Ingestor{logger: logger, db: db, fs: fs, resolver: resolver, locks: locks}
}

// Ingest runs the §4.6 algorithm.
func (ig *Ingestor) Ingest(ctx context.Context, req Request) (Result, error) {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	// Step 1: resolve player, map, optional event/edition.
	player, err := ig.db.MustHavePlayer(ctx, req.PlayerLogin)
	if err != nil {
		return Result{}, err
	}

	var (
		id            selector.Identity
		event         *model.Event
		edition       *model.EventEdition
		originalMapID *int32
		editionClaimsTransitiveSave bool
		mapRow        *model.Map
	)

	if req.EventHandle != nil && req.EditionID != nil {
		ev, ed, link, err := ig.db.HaveEventEditionWithMap(ctx, req.MapUID, *req.EventHandle, *req.EditionID)
		if err != nil {
			return Result{}, err
		}
		event, edition, mapRow = ev, ed, link.Map
		originalMapID = link.OriginalMapID
		editionClaimsTransitiveSave = link.TransitiveSave
		id = selector.Edition(event.ID, edition.EditionID)

		// Step 2: reject writes to an expired edition, judged against the
		// ingestion timestamp, not current wall clock (§9 Open Question).
		if edition.IsExpired(ts) {
			return Result{}, apierr.EventHasExpired(*req.EventHandle, *req.EditionID)
		}
	} else {
		m, err := ig.db.MustHaveMap(ctx, req.MapUID)
		if err != nil {
			return Result{}, err
		}
		mapRow = m
		id = selector.Global
	}

	// Step 3: open the read-write transaction.
	tx, err := ig.db.BeginReadWrite(ctx)
	if err != nil {
		return Result{}, apierr.Internal(err, "begin finish ingestion transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Step 4: read current PB, compute old time/rank.
	result := Result{OldTime: NoPriorRecordSentinel, OldRank: NoPriorRecordSentinel, NewTime: req.Time}
	oldTime, hadPB, err := ig.db.GetPBTime(ctx, tx, player.ID, mapRow.ID, id)
	if err != nil {
		return Result{}, apierr.Internal(err, "read current pb")
	}
	if hadPB {
		result.OldTime = oldTime
		oldRank, err := ig.resolver.Resolve(ctx, mapRow.ID, id, player.ID, oldTime)
		if err != nil {
			return Result{}, err
		}
		result.OldRank = oldRank
		result.HasImproved = req.Time < oldTime
	} else {
		result.HasImproved = true
	}

	// Step 5: insert the record row.
	recordID, err := ig.db.InsertRecord(ctx, tx, durable.InsertRecordParams{
		PlayerID:     player.ID,
		MapID:        mapRow.ID,
		Time:         req.Time,
		RespawnCount: req.RespawnCount,
		Flags:        req.Flags,
		Timestamp:    ts,
		ModeVersion:  req.ModeVersion,
		CPTimes:      req.CPTimes,
	})
	if err != nil {
		return Result{}, apierr.Internal(err, "insert record")
	}

	// Steps 6-8: event linkage + transitive saves.
	claimedEditions := []selector.Identity{}
	if event != nil && edition != nil {
		claimedEditions = append(claimedEditions, id)
		if err := ig.linkAndMaybeClone(ctx, tx, edition.IsTransparent, event.ID, edition.EditionID,
			recordID, originalMapID, edition.TransitiveSave || editionClaimsTransitiveSave,
			player.ID, req.Time, req.RespawnCount, req.Flags, ts); err != nil {
			return Result{}, err
		}

		// §8 save_non_event_record: finishing the edition map through the
		// *non-event* endpoint still fans out (step 7); symmetrically, a
		// non-transparent edition whose SaveNonEventRecord flag is set also
		// wants the same record visible on the base leaderboard. That fan-out
		// is driven by the non-event path below when req.EventHandle is nil;
		// an event-context finish only ever targets the one edition it named.
	} else {
		// Step 7: non-event finish; fan out to every edition containing
		// this map whose save_non_event_record flag is set. Editions
		// without that flag are skipped.
		refs, err := ig.db.GetEditionsContainingMap(ctx, tx, mapRow.ID)
		if err != nil {
			return Result{}, apierr.Internal(err, "list editions containing map")
		}
		for _, ref := range refs {
			if !ref.SaveNonEventRecord {
				continue
			}
			claimedEditions = append(claimedEditions, selector.Edition(ref.EventID, ref.EditionID))
			if err := ig.linkAndMaybeClone(ctx, tx, ref.IsTransparent, ref.EventID, ref.EditionID,
				recordID, ref.OriginalMapID, ref.TransitiveSave,
				player.ID, req.Time, req.RespawnCount, req.Flags, ts); err != nil {
				return Result{}, err
			}
		}
	}

	// Step 9: under the map lock, update the fast-store leaderboard(s).
	newFastScore := req.Time
	if hadPB && oldTime < req.Time {
		newFastScore = oldTime
	}
	if err := ig.locks.WithMapLock(ctx, mapRow.ID, func(ctx context.Context) error {
		key := id.FastStoreKey(mapRow.ID)
		return ig.fs.Add(ctx, key, playerMember(player.ID), int64(newFastScore))
	}); err != nil {
		return Result{}, apierr.Internal(err, "update fast-store leaderboard")
	}
	for _, claimed := range claimedEditions {
		if claimed == id {
			continue // already updated above as the authoritative identity
		}
		score := req.Time
		if err := ig.updateClaimedLeaderboard(ctx, mapRow.ID, claimed, player.ID, score); err != nil {
			return Result{}, err
		}
	}

	// Step 10: compute current_rank on the authoritative leaderboard.
	currentRank, err := ig.resolver.Resolve(ctx, mapRow.ID, id, player.ID, req.Time)
	if err != nil {
		return Result{}, err
	}
	result.CurrentRank = currentRank

	// Step 11: commit. Fast-store writes already happened outside this
	// transaction and are tolerated if commit fails (§4.6 step 11, §5): the
	// next leaderboard read self-heals via §4.3.
	if err := tx.Commit(); err != nil {
		return Result{}, apierr.Internal(err, "commit finish ingestion transaction")
	}
	committed = true

	return result, nil
}

// linkAndMaybeClone performs §4.6 steps 6/7/8 for one edition: write the
// EventEditionRecord linkage (skipped for transparent editions, step 8),
// then clone the record to the original map when the transitive-save guard
// passes and the clone would be a PB there.
func (ig *Ingestor) linkAndMaybeClone(ctx context.Context, tx durable.Tx, transparent bool, eventID, editionID int32,
	recordID int64, originalMapID *int32, transitiveSave bool, playerID int32, t, rs int32, flags model.RecordFlags, ts time.Time) error {

	if !transparent {
		if err := ig.db.LinkEventRecord(ctx, tx, recordID, eventID, editionID); err != nil {
			return apierr.Internal(err, "link event edition record")
		}
	}

	if originalMapID == nil || !transitiveSave {
		// §9 Open Question: when both transitive_save flags are false but
		// original_map_id is set, do not clone.
		return nil
	}

	priorTime, hadPrior, err := ig.db.GetPBTime(ctx, tx, playerID, *originalMapID, selector.Global)
	if err != nil {
		return apierr.Internal(err, "read original map pb")
	}
	if hadPrior && priorTime <= t {
		return nil // not a PB on the original map: no clone (§4.6 step 6).
	}

	if _, err := ig.db.CloneRecordForOriginal(ctx, tx, *originalMapID, recordID, playerID, t, rs, flags, ts); err != nil {
		return apierr.Internal(err, "clone record to original map")
	}
	return nil
}

// updateClaimedLeaderboard mirrors step 9's fast-store update for an edition
// that also claims this record, outside the authoritative identity's own
// update above.
func (ig *Ingestor) updateClaimedLeaderboard(ctx context.Context, mapID int32, id selector.Identity, playerID int32, newTime int32) error {
	return ig.locks.WithMapLock(ctx, mapID, func(ctx context.Context) error {
		key := id.FastStoreKey(mapID)
		member := playerMember(playerID)
		prior, ok, err := ig.fs.Score(ctx, key, member)
		if err != nil {
			return fmt.Errorf("read prior claimed-leaderboard score: %w", err)
		}
		score := int64(newTime)
		if ok && prior < score {
			score = prior
		}
		return ig.fs.Add(ctx, key, member, score)
	})
}

func playerMember(playerID int32) string {
	return fmt.Sprintf("%d", playerID)
}
