package ranking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// Syncer reconciles a single map's fast-store leaderboard with its durable
// PB set (§4.3). It is read-only with respect to the durable store.
type Syncer struct {
	logger *zap.Logger
	db     DB
	fs     faststore.Store
	locks  *LockRegistry
}

func NewSyncer(logger *zap.Logger, db DB, fs faststore.Store, locks *LockRegistry) *Syncer {
	return &Syncer{logger: logger, db: db, fs: fs, locks: locks}
}

// UpdateLeaderboard runs the §4.3 algorithm: count PB rows in the durable
// store, compare under the map lock to the fast-store count, and
// force-rebuild on drift. Returns the durable count.
func (s *Syncer) UpdateLeaderboard(ctx context.Context, mapID int32, id selector.Identity) (int64, error) {
	durableCount, err := s.db.CountPBRows(ctx, nil, mapID, id)
	if err != nil {
		return 0, fmt.Errorf("count durable pb rows: %w", err)
	}

	var fastCount int64
	err = s.locks.WithMapLock(ctx, mapID, func(ctx context.Context) error {
		key := id.FastStoreKey(mapID)
		c, err := s.fs.Count(ctx, key)
		if err != nil {
			return fmt.Errorf("count fast-store leaderboard: %w", err)
		}
		fastCount = c
		if c != durableCount {
			if err := s.forceRebuildLocked(ctx, mapID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if fastCount != durableCount {
		s.logger.Debug("leaderboard drift detected, rebuilt",
			zap.Int32("map_id", mapID), zap.String("identity", id.String()),
			zap.Int64("durable_count", durableCount), zap.Int64("fast_count", fastCount))
	}
	return durableCount, nil
}

// forceRebuildLocked performs the atomic delete-and-repopulate of §4.3 step
// 3. Must be called with the map lock already held.
func (s *Syncer) forceRebuildLocked(ctx context.Context, mapID int32, id selector.Identity) error {
	rows, err := s.db.GetPBRows(ctx, nil, mapID, id)
	if err != nil {
		return fmt.Errorf("read durable pb rows: %w", err)
	}
	members := make([]faststore.Member, len(rows))
	for i, r := range rows {
		members[i] = faststore.Member{Member: playerMember(r.PlayerID), Score: int64(r.Time)}
	}
	key := id.FastStoreKey(mapID)
	if err := s.fs.ReplaceAll(ctx, key, members); err != nil {
		return fmt.Errorf("replace fast-store leaderboard: %w", err)
	}
	return nil
}

// ForceRebuild exposes forceRebuildLocked for callers that already hold the
// map lock (the rank resolver, §4.4 step 2).
func (s *Syncer) ForceRebuild(ctx context.Context, mapID int32, id selector.Identity) error {
	return s.forceRebuildLocked(ctx, mapID, id)
}

func playerMember(playerID int32) string {
	return fmt.Sprintf("%d", playerID)
}
