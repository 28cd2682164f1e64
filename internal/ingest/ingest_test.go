package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

func TestPlayerMember_FormatsAsDecimal(t *testing.T) {
	if got := playerMember(42); got != "42" {
		t.Fatalf("playerMember(42) = %q, want %q", got, "42")
	}
	if got := playerMember(0); got != "0" {
		t.Fatalf("playerMember(0) = %q, want %q", got, "0")
	}
}

// harness wires an Ingestor against durable.Fake and faststore.Fake, the way
// a live deployment wires it against *durable.Store and a real fast store.
type harness struct {
	db *durable.Fake
	fs *faststore.Fake
	ig *Ingestor
}

func newHarness() *harness {
	logger := zap.NewNop()
	db := durable.NewFake()
	fs := faststore.NewFake()
	locks := ranking.NewLockRegistry(logger)
	syncer := ranking.NewSyncer(logger, db, fs, locks)
	resolver := ranking.NewResolver(logger, db, fs, locks, syncer)
	return &harness{db: db, fs: fs, ig: New(logger, db, fs, resolver, locks)}
}

func TestIngest_SingleTry(t *testing.T) {
	h := newHarness()
	h.db.AddPlayer("alice", "Alice")
	h.db.AddMap("MapA")

	res, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "MapA", Time: 30000, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)
	assert.Equal(t, int32(NoPriorRecordSentinel), res.OldTime)
	assert.Equal(t, int(NoPriorRecordSentinel), res.OldRank)
	assert.Equal(t, int32(30000), res.NewTime)
	assert.Equal(t, 1, res.CurrentRank)

	recs := h.db.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, int32(30000), recs[0].Time)
}

func TestIngest_ManyTries(t *testing.T) {
	h := newHarness()
	h.db.AddPlayer("alice", "Alice")
	h.db.AddMap("MapA")
	ctx := context.Background()

	first, err := h.ig.Ingest(ctx, Request{PlayerLogin: "alice", MapUID: "MapA", Time: 30000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, first.HasImproved)

	// A worse time: no improvement, old values reflect the standing PB.
	worse, err := h.ig.Ingest(ctx, Request{PlayerLogin: "alice", MapUID: "MapA", Time: 35000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.False(t, worse.HasImproved)
	assert.Equal(t, int32(30000), worse.OldTime)
	assert.Equal(t, 1, worse.OldRank)

	// A better time: improves, old values still reflect the prior PB.
	better, err := h.ig.Ingest(ctx, Request{PlayerLogin: "alice", MapUID: "MapA", Time: 25000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, better.HasImproved)
	assert.Equal(t, int32(30000), better.OldTime)
	assert.Equal(t, int32(25000), better.NewTime)
	assert.Equal(t, 1, better.CurrentRank)

	assert.Len(t, h.db.Records(), 3)
}

// setupEventEdition builds a player, map and a single-edition event with the
// map bound into it, varying transparency/transitive-save/original-map
// linkage per the scenario under test.
func setupEventEdition(h *harness, transparent, transitiveSave, saveNonEventRecord bool, originalMapID *int32) (*model.Player, *model.Map) {
	player := h.db.AddPlayer("alice", "Alice")
	edMap := h.db.AddMap("EventMap")
	event := h.db.AddEvent("summer")
	h.db.AddEdition(event.ID, model.EventEdition{
		EditionID: 1, Name: "Summer Cup", StartDate: time.Now().Add(-time.Hour),
		IsTransparent: transparent, TransitiveSave: transitiveSave, SaveNonEventRecord: saveNonEventRecord,
	})
	h.db.AddEditionMap(event.ID, 1, edMap.ID, durable.EditionMapLink{
		OriginalMapID: originalMapID, TransitiveSave: transitiveSave, SaveNonEventRecord: saveNonEventRecord,
	})
	return player, edMap
}

// TestIngest_EventFinishTransparentEdition covers §8 property 5: a
// transparent edition's finishes never write an event_edition_records
// linkage row, even though they still count toward the edition's own
// leaderboard.
func TestIngest_EventFinishTransparentEdition(t *testing.T) {
	h := newHarness()
	handle := "summer"
	setupEventEdition(h, true, false, false, nil)

	res, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "EventMap", Time: 20000, Timestamp: time.Now().UTC(),
		EventHandle: &handle, EditionID: int32Ptr(1),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)

	recs := h.db.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 0, h.db.LinkCount(1, 1, recs[0].ID))
}

// TestIngest_EventFinishTransitiveSave covers §8 property 6: an edition
// finish on a map linked back to an original map, with transitive_save set,
// clones the record onto the original map when it's a PB there.
func TestIngest_EventFinishTransitiveSave(t *testing.T) {
	h := newHarness()
	handle := "summer"
	original := h.db.AddMap("OriginalMap")
	_, _ = setupEventEdition(h, false, true, false, &original.ID)

	res, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "EventMap", Time: 20000, Timestamp: time.Now().UTC(),
		EventHandle: &handle, EditionID: int32Ptr(1),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)

	recs := h.db.Records()
	require.Len(t, recs, 2, "expected the event record plus its clone onto the original map")

	var clone *model.Record
	for i := range recs {
		if recs[i].MapID == original.ID {
			clone = &recs[i]
		}
	}
	require.NotNil(t, clone, "expected a cloned record on the original map")
	assert.NotNil(t, clone.EventRecordID)
	assert.Equal(t, int32(20000), clone.Time)

	// The linkage row is written since this edition is not transparent.
	eventRec := recs[0]
	assert.Equal(t, 1, h.db.LinkCount(1, 1, eventRec.ID))
}

// TestIngest_EventFinishNonTransitiveSave covers §8 property 7: finishing
// the original map directly, when the edition does not claim it, is
// rejected as EventEditionNotFound rather than silently accepted.
func TestIngest_EventFinishNonTransitiveSave(t *testing.T) {
	h := newHarness()
	handle := "summer"
	original := h.db.AddMap("OriginalMap")
	setupEventEdition(h, false, false, false, &original.ID)

	_, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "OriginalMap", Time: 20000, Timestamp: time.Now().UTC(),
		EventHandle: &handle, EditionID: int32Ptr(1),
	})
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindEventEditionNotFound, apiErr.Kind)
}

// TestIngest_EventFinishSaveNonEventRecord covers §8 property 8: a
// non-event finish on a map bound into an edition with
// save_non_event_record set fans out to that edition's leaderboard too.
func TestIngest_EventFinishSaveNonEventRecord(t *testing.T) {
	h := newHarness()
	_, _ = setupEventEdition(h, false, false, true, nil)

	res, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "EventMap", Time: 20000, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)

	recs := h.db.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 1, h.db.LinkCount(1, 1, recs[0].ID))

	// The edition's own fast-store leaderboard was updated too, not just
	// the base one.
	key := selector.Edition(1, 1).FastStoreKey(recs[0].MapID)
	score, ok, err := h.fs.Score(context.Background(), key, playerMember(recs[0].PlayerID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(20000), score)
}

// TestIngest_NonEventFinish_NoClaimingEdition covers the plain §8 scenario
// where a non-event finish on a map that no edition claims only ever
// touches the global leaderboard.
func TestIngest_NonEventFinish_NoClaimingEdition(t *testing.T) {
	h := newHarness()
	h.db.AddPlayer("alice", "Alice")
	h.db.AddMap("MapA")

	res, err := h.ig.Ingest(context.Background(), Request{
		PlayerLogin: "alice", MapUID: "MapA", Time: 20000, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)
	assert.Empty(t, h.db.Records()[0].EventRecordID)
}

// TestIngest_Idempotence_ManyTries ingests the same event finish three
// times: every retry writes its own record row, and each of those rows is
// linked to the edition exactly once (LinkCount stays at 1).
func TestIngest_Idempotence_ManyTries(t *testing.T) {
	h := newHarness()
	handle := "summer"
	_, _ = setupEventEdition(h, false, false, false, nil)
	ctx := context.Background()

	req := Request{
		PlayerLogin: "alice", MapUID: "EventMap", Time: 20000, Timestamp: time.Now().UTC(),
		EventHandle: &handle, EditionID: int32Ptr(1),
	}
	_, err := h.ig.Ingest(ctx, req)
	require.NoError(t, err)
	_, err = h.ig.Ingest(ctx, req)
	require.NoError(t, err)
	_, err = h.ig.Ingest(ctx, req)
	require.NoError(t, err)

	recs := h.db.Records()
	require.Len(t, recs, 3, "every retry still writes its own record row")
	for _, r := range recs {
		assert.Equal(t, 1, h.db.LinkCount(1, 1, r.ID))
	}
}

// TestIngest_SelfHeal covers §8 property 9: if the fast store has drifted
// out from under a map (here, simulated by deleting its leaderboard key
// after a finish has already been recorded), the next ingestion still
// succeeds: it writes the new finisher's entry back and ranks it. Alice's
// deleted entry is not restored by this path.
func TestIngest_SelfHeal(t *testing.T) {
	h := newHarness()
	h.db.AddPlayer("alice", "Alice")
	h.db.AddPlayer("bob", "Bob")
	m := h.db.AddMap("MapA")
	ctx := context.Background()

	_, err := h.ig.Ingest(ctx, Request{PlayerLogin: "alice", MapUID: "MapA", Time: 30000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	// Simulate drift: wipe the fast-store leaderboard key entirely.
	require.NoError(t, h.fs.Del(ctx, selector.Global.FastStoreKey(m.ID)))

	res, err := h.ig.Ingest(ctx, Request{PlayerLogin: "bob", MapUID: "MapA", Time: 25000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)
	assert.Equal(t, 1, res.CurrentRank, "bob's 25000 is the only entry on the repopulated leaderboard")
}

// TestIngest_OverviewEventVersionMapNonEmpty mirrors the
// overview_event_version_map_non_empty scenario: an edition with
// save_non_event_record set binds map M back to original map O. A player
// finishing O directly and finishing M through the event both leave their
// own map's PB intact rather than one clobbering the other, since M's
// non-event fan-out only writes into M and O's own leaderboard, never the
// reverse.
func TestIngest_OverviewEventVersionMapNonEmpty(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	original := h.db.AddMap("O")
	_, _ = setupEventEdition(h, false, false, true, &original.ID)

	_, err := h.ig.Ingest(ctx, Request{PlayerLogin: "alice", MapUID: "O", Time: 5000, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	handle := "summer"
	res, err := h.ig.Ingest(ctx, Request{
		PlayerLogin: "alice", MapUID: "EventMap", Time: 6000, Timestamp: time.Now().UTC(),
		EventHandle: &handle, EditionID: int32Ptr(1),
	})
	require.NoError(t, err)
	assert.True(t, res.HasImproved)
	assert.Equal(t, 1, res.CurrentRank)

	player := h.db.Records()[0]
	oTime, ok, err := h.db.GetPBTime(ctx, nil, player.PlayerID, original.ID, selector.Global)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(5000), oTime, "O's pb is untouched by the edition finish on M")

	edMapID := h.db.Records()[1].MapID
	mTime, ok, err := h.db.GetPBTime(ctx, nil, player.PlayerID, edMapID, selector.Global)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(6000), mTime, "M's own pb reflects its own finish time")
}

func int32Ptr(v int32) *int32 { return &v }
