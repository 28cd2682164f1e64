package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

func newTestResolver() (*Resolver, *durable.Fake, *faststore.Fake) {
	logger := zap.NewNop()
	db := durable.NewFake()
	fs := faststore.NewFake()
	locks := NewLockRegistry(logger)
	syncer := NewSyncer(logger, db, fs, locks)
	resolver := NewResolver(logger, db, fs, locks, syncer)
	return resolver, db, fs
}

func TestResolver_Resolve_MatchesFastStoreScore(t *testing.T) {
	resolver, _, fs := newTestResolver()
	ctx := context.Background()

	require.NoError(t, fs.Add(ctx, "l0:1", "10", 1000))
	require.NoError(t, fs.Add(ctx, "l0:1", "11", 3000))
	require.NoError(t, fs.Add(ctx, "l0:1", "12", 3000))
	require.NoError(t, fs.Add(ctx, "l0:1", "13", 5000))
	require.NoError(t, fs.Add(ctx, "l0:1", "14", 7000))

	rank, err := resolver.Resolve(ctx, 1, selector.Global, 12, 3000)
	require.NoError(t, err)
	assert.Equal(t, 2, rank, "competition ranking gives ties the lower shared rank")
}

// TestResolver_Resolve_ForceRebuildsOnDrift covers §4.4 step 2: when the
// fast store doesn't already hold the queried score for the player, resolve
// force-rebuilds from the durable store before ranking, rather than failing
// or trusting a stale fast-store entry.
func TestResolver_Resolve_ForceRebuildsOnDrift(t *testing.T) {
	resolver, db, fs := newTestResolver()
	ctx := context.Background()

	db.AddPlayer("alice", "Alice")
	db.AddPlayer("bob", "Bob")
	m := db.AddMap("MapA")
	_, err := db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 1, MapID: m.ID, Time: 4000})
	require.NoError(t, err)
	_, err = db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 2, MapID: m.ID, Time: 2000})
	require.NoError(t, err)

	// The fast store is empty: it has drifted from the durable truth.
	rank, err := resolver.Resolve(ctx, m.ID, selector.Global, 2, 2000)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	count, err := fs.Count(ctx, selector.Global.FastStoreKey(m.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "force-rebuild repopulated both durable pb rows")
}

// TestResolver_Resolve_RestoresPriorBetterScore covers §4.4 step 5: a rank
// query must not leave the player's fast-store entry worse than their true
// PB just because it queried a higher (non-PB) time.
func TestResolver_Resolve_RestoresPriorBetterScore(t *testing.T) {
	resolver, db, fs := newTestResolver()
	ctx := context.Background()

	db.AddPlayer("alice", "Alice")
	m := db.AddMap("MapA")
	_, err := db.InsertRecord(ctx, nil, durable.InsertRecordParams{PlayerID: 1, MapID: m.ID, Time: 2000})
	require.NoError(t, err)

	// Fast store disagrees with the queried time (simulating "what rank
	// would 5000 have held"), forcing a rebuild that repopulates the true
	// PB of 2000.
	_, err = resolver.Resolve(ctx, m.ID, selector.Global, 1, 5000)
	require.NoError(t, err)

	score, ok, err := fs.Score(ctx, selector.Global.FastStoreKey(m.ID), "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), score, "the player's real pb must survive the query untouched")
}

// TestResolver_Resolve_DiagnosticOnImpossibleRank covers the failure path:
// if no fast-store member exists at the queried score even after a
// force-rebuild, Resolve returns a masked RankCompute error carrying a
// diagnostic snapshot rather than panicking or fabricating a rank.
func TestResolver_Resolve_DiagnosticOnImpossibleRank(t *testing.T) {
	resolver, db, fs := newTestResolver()
	ctx := context.Background()

	db.AddPlayer("alice", "Alice")
	m := db.AddMap("MapA")
	require.NoError(t, fs.Add(ctx, selector.Global.FastStoreKey(m.ID), "1", 2000))

	_, err := resolver.Resolve(ctx, m.ID, selector.Global, 1, 9999)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRankCompute, apiErr.Kind)
}
