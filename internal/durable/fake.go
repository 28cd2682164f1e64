package durable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/model"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// Fake is an in-process Store used by internal/ingest and internal/ranking
// tests, avoiding a live Postgres dependency, matching faststore.Fake's
// approach of constructing dependency fakes directly rather than spinning up
// the real backing service. It implements enough of *Store's surface to
// satisfy ranking.DB and ingest.DB.
type Fake struct {
	mu sync.Mutex

	nextPlayerID int32
	nextMapID    int32
	nextEventID  int32
	nextRecordID int64

	players        map[int32]*model.Player
	playersByLogin map[string]int32

	maps      map[int32]*model.Map
	mapsByUID map[string]int32

	events        map[int32]*model.Event
	eventsByHandle map[string]int32

	editions map[editionKey]*model.EventEdition
	links    map[editionMapKey]EditionMapLink

	records []fakeRecord
	linked  map[linkKey]struct{}
}

type editionKey struct {
	eventID   int32
	editionID int32
}

type editionMapKey struct {
	eventID   int32
	editionID int32
	mapID     int32
}

type linkKey struct {
	eventID   int32
	editionID int32
	recordID  int64
}

// EditionMapLink is the per-(event, edition, map) linkage data AddEditionMap
// registers, mirroring the event_edition_maps columns HaveEventEditionWithMap
// and GetEditionsContainingMap read.
type EditionMapLink struct {
	OriginalMapID      *int32
	TransitiveSave     bool
	SaveNonEventRecord bool
}

type fakeRecord struct {
	id            int64
	playerID      int32
	mapID         int32
	time          int32
	respawnCount  int32
	flags         model.RecordFlags
	ts            time.Time
	modeVersion   *string
	eventRecordID *int64
}

var _ Tx = (*FakeTx)(nil)

// FakeTx is a no-op Tx: Fake applies every write immediately rather than
// buffering it, so Commit and Rollback are both no-ops. A test that depends
// on a rolled-back write actually disappearing needs a real transaction, not
// Fake.
type FakeTx struct{}

func (FakeTx) Commit() error   { return nil }
func (FakeTx) Rollback() error { return nil }

func NewFake() *Fake {
	return &Fake{
		nextPlayerID: 1,
		nextMapID:    1,
		nextEventID:  1,
		nextRecordID: 1,

		players:        make(map[int32]*model.Player),
		playersByLogin: make(map[string]int32),
		maps:           make(map[int32]*model.Map),
		mapsByUID:      make(map[string]int32),
		events:         make(map[int32]*model.Event),
		eventsByHandle: make(map[string]int32),
		editions:       make(map[editionKey]*model.EventEdition),
		links:          make(map[editionMapKey]EditionMapLink),
		linked:         make(map[linkKey]struct{}),
	}
}

// AddPlayer registers a player and returns it, assigning the next sequential
// id.
func (f *Fake) AddPlayer(login, name string) *model.Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &model.Player{ID: f.nextPlayerID, Login: login, Name: name, Role: model.RolePlayer}
	f.nextPlayerID++
	f.players[p.ID] = p
	f.playersByLogin[login] = p.ID
	return p
}

// AddMap registers a map and returns it, assigning the next sequential id.
func (f *Fake) AddMap(uid string) *model.Map {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &model.Map{ID: f.nextMapID, GameUID: uid, Name: uid}
	f.nextMapID++
	f.maps[m.ID] = m
	f.mapsByUID[uid] = m.ID
	return m
}

// AddEvent registers an event and returns it, assigning the next sequential
// id.
func (f *Fake) AddEvent(handle string) *model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &model.Event{ID: f.nextEventID, Handle: handle}
	f.nextEventID++
	f.events[e.ID] = e
	f.eventsByHandle[handle] = e.ID
	return e
}

// AddEdition registers ed under eventID, stamping ed.EventID, and returns the
// stored copy.
func (f *Fake) AddEdition(eventID int32, ed model.EventEdition) *model.EventEdition {
	f.mu.Lock()
	defer f.mu.Unlock()
	ed.EventID = eventID
	stored := ed
	f.editions[editionKey{eventID, ed.EditionID}] = &stored
	return &stored
}

// AddEditionMap binds mapID into (eventID, editionID) with link.
func (f *Fake) AddEditionMap(eventID, editionID, mapID int32, link EditionMapLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[editionMapKey{eventID, editionID, mapID}] = link
}

// Records returns a snapshot of every record written so far, for test
// assertions.
func (f *Fake) Records() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Record, len(f.records))
	for i, r := range f.records {
		out[i] = model.Record{
			ID: r.id, PlayerID: r.playerID, MapID: r.mapID, Time: r.time,
			RespawnCount: r.respawnCount, Timestamp: r.ts, Flags: r.flags,
			ModeVersion: r.modeVersion, EventRecordID: r.eventRecordID,
		}
	}
	return out
}

// LinkCount returns 1 if (eventID, editionID, recordID) has been linked and
// 0 otherwise, for §8 property 4 idempotence assertions. Links are stored as
// a set, so linking the same triple again leaves the count at 1.
func (f *Fake) LinkCount(eventID, editionID int32, recordID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.linked[linkKey{eventID, editionID, recordID}]; ok {
		return 1
	}
	return 0
}

func (f *Fake) MustHavePlayer(_ context.Context, login string) (*model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.playersByLogin[login]
	if !ok {
		return nil, apierr.PlayerNotFound(login)
	}
	p := *f.players[id]
	return &p, nil
}

func (f *Fake) MustHaveMap(_ context.Context, uid string) (*model.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.mapsByUID[uid]
	if !ok {
		return nil, apierr.MapNotFound(uid)
	}
	m := *f.maps[id]
	return &m, nil
}

func (f *Fake) HaveEventEditionWithMap(_ context.Context, mapUID, handle string, editionID int32) (*model.Event, *model.EventEdition, *MapLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	eventID, ok := f.eventsByHandle[handle]
	if !ok {
		return nil, nil, nil, apierr.EventNotFound(handle)
	}
	ed, ok := f.editions[editionKey{eventID, editionID}]
	if !ok {
		return nil, nil, nil, apierr.EventEditionNotFound(handle, editionID)
	}
	mapID, ok := f.mapsByUID[mapUID]
	if !ok {
		return nil, nil, nil, apierr.MapNotFound(mapUID)
	}
	link, ok := f.links[editionMapKey{eventID, editionID, mapID}]
	if !ok {
		return nil, nil, nil, apierr.EventEditionNotFound(handle, editionID)
	}

	event := *f.events[eventID]
	edCopy := *ed
	m := *f.maps[mapID]
	return &event, &edCopy, &MapLink{Map: &m, OriginalMapID: link.OriginalMapID, TransitiveSave: link.TransitiveSave}, nil
}

func (f *Fake) BeginReadWrite(context.Context) (Tx, error) { return FakeTx{}, nil }
func (f *Fake) BeginScorerRead(context.Context) (Tx, error) { return FakeTx{}, nil }

func (f *Fake) GetPBTime(_ context.Context, _ Tx, playerID, mapID int32, id selector.Identity) (int32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	best, ok := f.bestForPlayerLocked(playerID, mapID, id)
	if !ok {
		return 0, false, nil
	}
	return best.time, true, nil
}

// bestForPlayerLocked finds the PB row (lowest time, earliest ts tie-break)
// for playerID on (mapID, id). Caller holds f.mu.
func (f *Fake) bestForPlayerLocked(playerID, mapID int32, id selector.Identity) (fakeRecord, bool) {
	var best fakeRecord
	found := false
	for _, r := range f.records {
		if r.playerID != playerID || r.mapID != mapID {
			continue
		}
		if !f.countsForIdentityLocked(r, id) {
			continue
		}
		if !found || r.time < best.time || (r.time == best.time && r.ts.Before(best.ts)) {
			best = r
			found = true
		}
	}
	return best, found
}

func (f *Fake) countsForIdentityLocked(r fakeRecord, id selector.Identity) bool {
	if id.IsGlobal() {
		return true
	}
	_, ok := f.linked[linkKey{id.EventID, id.EditionID, r.id}]
	return ok
}

func (f *Fake) GetPBRows(_ context.Context, _ Tx, mapID int32, id selector.Identity) ([]PBRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	best := make(map[int32]fakeRecord)
	for _, r := range f.records {
		if r.mapID != mapID || !f.countsForIdentityLocked(r, id) {
			continue
		}
		cur, ok := best[r.playerID]
		if !ok || r.time < cur.time || (r.time == cur.time && r.ts.Before(cur.ts)) {
			best[r.playerID] = r
		}
	}

	out := make([]PBRow, 0, len(best))
	for playerID, r := range best {
		out = append(out, PBRow{PlayerID: playerID, Time: r.time})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (f *Fake) CountPBRows(ctx context.Context, tx Tx, mapID int32, id selector.Identity) (int64, error) {
	rows, err := f.GetPBRows(ctx, tx, mapID, id)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (f *Fake) InsertRecord(_ context.Context, _ Tx, p InsertRecordParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextRecordID
	f.nextRecordID++
	f.records = append(f.records, fakeRecord{
		id: id, playerID: p.PlayerID, mapID: p.MapID, time: p.Time,
		respawnCount: p.RespawnCount, flags: p.Flags, ts: p.Timestamp, modeVersion: p.ModeVersion,
	})
	return id, nil
}

func (f *Fake) LinkEventRecord(_ context.Context, _ Tx, recordID int64, eventID, editionID int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// A repeat link of the same triple is the idempotent-retry case (§8
	// property 4), not an error: mirrors Store's isUniqueViolation swallow.
	f.linked[linkKey{eventID, editionID, recordID}] = struct{}{}
	return nil
}

func (f *Fake) CloneRecordForOriginal(_ context.Context, _ Tx, originalMapID int32, sourceRecordID int64, playerID, t, rs int32, flags model.RecordFlags, ts time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextRecordID
	f.nextRecordID++
	src := sourceRecordID
	f.records = append(f.records, fakeRecord{
		id: id, playerID: playerID, mapID: originalMapID, time: t,
		respawnCount: rs, flags: flags, ts: ts, eventRecordID: &src,
	})
	return id, nil
}

func (f *Fake) GetEditionsContainingMap(_ context.Context, _ Tx, mapID int32) ([]EditionRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []EditionRef
	for key, link := range f.links {
		if key.mapID != mapID {
			continue
		}
		ed, ok := f.editions[editionKey{key.eventID, key.editionID}]
		if !ok {
			continue
		}
		out = append(out, EditionRef{
			EventID: key.eventID, EditionID: key.editionID,
			OriginalMapID:      link.OriginalMapID,
			TransitiveSave:     link.TransitiveSave || ed.TransitiveSave,
			IsTransparent:      ed.IsTransparent,
			SaveNonEventRecord: ed.SaveNonEventRecord,
			StartDate:          ed.StartDate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}
