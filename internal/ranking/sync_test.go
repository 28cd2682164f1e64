package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

func newTestSyncer() (*Syncer, *durable.Fake, *faststore.Fake) {
	logger := zap.NewNop()
	db := durable.NewFake()
	fs := faststore.NewFake()
	locks := NewLockRegistry(logger)
	return NewSyncer(logger, db, fs, locks), db, fs
}

func TestSyncer_UpdateLeaderboard_NoDriftLeavesFastStoreUntouched(t *testing.T) {
	syncer, db, fs := newTestSyncer()
	ctx := context.Background()

	db.AddPlayer("alice", "Alice")
	m := db.AddMap("MapA")
	_, err := db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 1, MapID: m.ID, Time: 4000})
	require.NoError(t, err)
	require.NoError(t, fs.Add(ctx, selector.Global.FastStoreKey(m.ID), "1", 4000))

	count, err := syncer.UpdateLeaderboard(ctx, m.ID, selector.Global)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	score, ok, err := fs.Score(ctx, selector.Global.FastStoreKey(m.ID), "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4000), score)
}

// TestSyncer_UpdateLeaderboard_DriftTriggersForceRebuild covers §8 property
// 9 end to end: a fast store that disagrees in member count with the
// durable PB set gets atomically replaced to match, and the returned count
// is always the durable count, not the pre-rebuild fast-store one.
func TestSyncer_UpdateLeaderboard_DriftTriggersForceRebuild(t *testing.T) {
	syncer, db, fs := newTestSyncer()
	ctx := context.Background()

	db.AddPlayer("alice", "Alice")
	db.AddPlayer("bob", "Bob")
	m := db.AddMap("MapA")
	_, err := db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 1, MapID: m.ID, Time: 4000})
	require.NoError(t, err)
	_, err = db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 2, MapID: m.ID, Time: 2000})
	require.NoError(t, err)

	// Fast store only knows about one of the two durable PBs: a stand-in
	// for a dropped write or a crash between durable commit and fast-store
	// update.
	require.NoError(t, fs.Add(ctx, selector.Global.FastStoreKey(m.ID), "1", 4000))

	count, err := syncer.UpdateLeaderboard(ctx, m.ID, selector.Global)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	rebuiltCount, err := fs.Count(ctx, selector.Global.FastStoreKey(m.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 2, rebuiltCount)

	bobScore, ok, err := fs.Score(ctx, selector.Global.FastStoreKey(m.ID), "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), bobScore)
}

func TestSyncer_ForceRebuild_ReplacesEmptyLeaderboardFromEmptyDurableSet(t *testing.T) {
	syncer, db, fs := newTestSyncer()
	ctx := context.Background()
	m := db.AddMap("MapA")

	require.NoError(t, fs.Add(ctx, selector.Global.FastStoreKey(m.ID), "1", 1000))
	require.NoError(t, syncer.ForceRebuild(ctx, m.ID, selector.Global))

	count, err := fs.Count(ctx, selector.Global.FastStoreKey(m.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 0, count, "force-rebuild against an empty durable set clears the leaderboard")
}
