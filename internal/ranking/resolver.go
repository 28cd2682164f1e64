package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// Resolver answers "what is the standard-competition rank of time on
// (mapID, identity)" (§4.4). Competition ranking shares the lowest rank on
// ties (1, 2, 2, 4, 5); the fast store only natively gives ordinal rank
// (1, 2, 3, 4, 5), so the resolver finds the first member the store returns
// at the queried score and takes its ordinal rank plus one.
//
// Resolve always runs under the map lock it acquires itself — callers must
// never run the algorithm outside a lock (§4.4), so there is no "locked"
// variant exposed outside this package.
type Resolver struct {
	logger *zap.Logger
	db     DB
	fs     faststore.Store
	locks  *LockRegistry
	syncer *Syncer
}

func NewResolver(logger *zap.Logger, db DB, fs faststore.Store, locks *LockRegistry, syncer *Syncer) *Resolver {
	return &Resolver{logger: logger, db: db, fs: fs, locks: locks, syncer: syncer}
}

// Resolve computes the competition rank time would hold on (mapID, id).
// Callers recording a new finish pass the new time after the better of it
// and the prior PB has been written to the fast store; callers asking
// "what rank does my current PB hold" pass their PB time.
func (r *Resolver) Resolve(ctx context.Context, mapID int32, id selector.Identity, playerID int32, time int32) (int, error) {
	var rank int
	err := r.locks.WithMapLock(ctx, mapID, func(ctx context.Context) error {
		var err error
		rank, err = r.resolveLocked(ctx, mapID, id, playerID, time)
		return err
	})
	return rank, err
}

func (r *Resolver) resolveLocked(ctx context.Context, mapID int32, id selector.Identity, playerID int32, time int32) (int, error) {
	key := id.FastStoreKey(mapID)
	member := playerMember(playerID)

	score, ok, err := r.fs.Score(ctx, key, member)
	if err != nil {
		return 0, apierr.Internal(err, "read fast-store score")
	}

	var priorBetterScore *int64
	if !ok || score != int64(time) {
		// Drift (or the player has no fast-store entry yet): eliminate it
		// with a force-rebuild before querying (§4.4 step 2).
		if err := r.syncer.ForceRebuild(ctx, mapID, id); err != nil {
			return 0, apierr.Internal(err, "force rebuild during rank resolve")
		}
		// The rebuilt entry is the player's durable PB; place time for the
		// query and remember a better PB so step 5 can put it back.
		rebuilt, present, err := r.fs.Score(ctx, key, member)
		if err != nil {
			return 0, apierr.Internal(err, "read rebuilt fast-store score")
		}
		if present && rebuilt != int64(time) {
			if isBetter(id, rebuilt, int64(time)) {
				priorBetterScore = &rebuilt
			}
			if err := r.fs.Add(ctx, key, member, int64(time)); err != nil {
				return 0, apierr.Internal(err, "place queried time in fast store")
			}
		}
	}

	members, err := r.fs.RangeByScore(ctx, key, int64(time), int64(time), 1)
	if err != nil {
		return 0, apierr.Internal(err, "range fast-store by score")
	}
	if len(members) == 0 {
		diag, derr := r.captureDiagnostic(ctx, mapID, id, playerID, time, nil)
		if derr != nil {
			r.logger.Error("failed to capture rank compute diagnostic", zap.Error(derr))
		}
		return 0, apierr.RankCompute(diag)
	}

	ordinal, ok, err := r.fs.Rank(ctx, key, members[0])
	if err != nil {
		return 0, apierr.Internal(err, "rank fast-store member")
	}
	if !ok {
		diag, derr := r.captureDiagnostic(ctx, mapID, id, playerID, time, &score)
		if derr != nil {
			r.logger.Error("failed to capture rank compute diagnostic", zap.Error(derr))
		}
		return 0, apierr.RankCompute(diag)
	}

	if priorBetterScore != nil {
		// Queries must not silently improve a stored PB (§4.4 step 5): put
		// the player's actual best back.
		if err := r.fs.Add(ctx, key, member, *priorBetterScore); err != nil {
			return 0, apierr.Internal(err, "restore prior fast-store score")
		}
	}

	return int(ordinal) + 1, nil
}

// isBetter reports whether score is a better (lower) time than candidate.
// The fast store is always ascending-by-time in this system (§4.2), so
// "better" is simply "lower" regardless of identity.
func isBetter(_ selector.Identity, score, candidate int64) bool {
	return score < candidate
}

func (r *Resolver) captureDiagnostic(ctx context.Context, mapID int32, id selector.Identity, playerID int32, time int32, testedScore *int64) (*apierr.RankComputeDiagnostic, error) {
	key := id.FastStoreKey(mapID)
	rawMembers, err := r.fs.Range(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("dump fast-store leaderboard: %w", err)
	}
	raw := make([]int64, 0, len(rawMembers))
	for _, m := range rawMembers {
		s, ok, err := r.fs.Score(ctx, key, m)
		if err == nil && ok {
			raw = append(raw, s)
		}
	}

	pbRows, err := r.db.GetPBRows(ctx, nil, mapID, id)
	if err != nil {
		return nil, fmt.Errorf("dump durable pb rows: %w", err)
	}
	durable := make([]apierr.DurablePBRow, len(pbRows))
	for i, row := range pbRows {
		durable[i] = apierr.DurablePBRow{PlayerID: row.PlayerID, Time: row.Time}
	}

	var testedTime *int32
	if testedScore != nil {
		t := int32(*testedScore)
		testedTime = &t
	}

	diag := &apierr.RankComputeDiagnostic{
		PlayerID:    playerID,
		MapID:       mapID,
		Time:        time,
		TestedTime:  testedTime,
		FastStoreLB: raw,
		DurableLB:   durable,
	}
	if !id.IsGlobal() {
		eventID, editionID := id.EventID, id.EditionID
		diag.EventID = &eventID
		diag.EditionID = &editionID
	}
	return diag, nil
}
