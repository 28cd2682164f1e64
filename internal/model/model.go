// Package model holds the entities of §3: players, maps, records, events
// and their editions. These are plain data carriers; behavior lives in
// internal/durable, internal/ranking, internal/ingest and internal/mappack.
package model

import "time"

// Role is a player's privilege level.
type Role string

const (
	RolePlayer Role = "player"
	RoleMod    Role = "mod"
	RoleAdmin  Role = "admin"
)

// Player is a registered competitor.
type Player struct {
	ID          int32
	Login       string
	Name        string
	JoinedAt    *time.Time
	ZonePath    *string
	Role        Role
}

// MedalTimes are the optional bronze/silver/gold/author cutoffs for a map,
// in milliseconds. All four are present or all four are absent.
type MedalTimes struct {
	Bronze int32
	Silver int32
	Gold   int32
	Author int32
}

// Valid reports whether the four medal times are monotonically ordered
// bronze > silver > gold > author, per §3's invariant.
func (m MedalTimes) Valid() bool {
	return m.Bronze > m.Silver && m.Silver > m.Gold && m.Gold > m.Author
}

// Map is a speedrun track.
type Map struct {
	ID         int32
	GameUID    string
	AuthorID   int32
	Name       string
	CPCount    *int32
	MedalTimes *MedalTimes
}

// RecordFlags is a bitset of submission flags (respawn-enabled run, vehicle
// variant, etc). The bit layout is opaque to the ranking engine.
type RecordFlags uint32

// Record is a single finish. Lower Time is better. EventRecordID, when set,
// marks this row as a clone produced by a transitive save (§4.6 step 6/7);
// the chain is one level deep per §3.
type Record struct {
	ID            int64
	PlayerID      int32
	MapID         int32
	Time          int32
	RespawnCount  int32
	Timestamp     time.Time
	Flags         RecordFlags
	ModeVersion   *string
	EventRecordID *int64
}

// RecordCPTime is one checkpoint split for a record, recovered from
// original_source (§3 [ADD]): not used by any ranking decision, persisted
// for the PB response payload only.
type RecordCPTime struct {
	RecordID int64
	CPNum    int32
	Time     int32
}

// EventCategory groups maps within an edition for display purposes: the
// Titlepack menu banner/color an edition's maps are chunked and labeled by.
type EventCategory struct {
	ID        int32
	Handle    string
	Name      string
	BannerURL *string
	HexColor  *string
}

// Event is a recurring competition (e.g. a seasonal campaign).
type Event struct {
	ID       int32
	Handle   string
	Cooldown *time.Duration
	Admins   []int32
}

// DisplayParams carries optional in-game presentation hints for an edition.
type DisplayParams struct {
	ManialinkURL *string
	Icon         *string
}

// EventEdition is one time-boxed run of an Event.
type EventEdition struct {
	EventID             int32
	EditionID           int32
	Name                string
	Subtitle            *string
	StartDate           time.Time
	TTLSeconds          *int64
	MXID                *int32
	SaveNonEventRecord  bool
	NonOriginalMaps     bool
	IsTransparent       bool
	// TransitiveSave is the edition-wide transitive-save flag referenced by
	// §4.6 step 6 and §9's Open Question ("edition.transitive_save"); a
	// per-map override lives on EventEditionMap.TransitiveSave.
	TransitiveSave      bool
	Display             *DisplayParams
}

// EndDate returns the edition's expiry instant, or nil if it never expires.
func (e EventEdition) EndDate() *time.Time {
	if e.TTLSeconds == nil {
		return nil
	}
	end := e.StartDate.Add(time.Duration(*e.TTLSeconds) * time.Second)
	return &end
}

// IsVisible reports whether the edition is visible at instant now, per §3:
// now >= start and (no TTL or now <= start+TTL).
func (e EventEdition) IsVisible(now time.Time) bool {
	if now.Before(e.StartDate) {
		return false
	}
	if end := e.EndDate(); end != nil && now.After(*end) {
		return false
	}
	return true
}

// IsExpired reports whether the edition's window has closed as of now.
// Distinct from "not yet started": an edition that hasn't started is not
// visible but is also not expired.
func (e EventEdition) IsExpired(now time.Time) bool {
	end := e.EndDate()
	return end != nil && now.After(*end)
}

// EventEditionMap binds a map into an edition's set, possibly pointing back
// at a non-event "original" map for transitive saves.
type EventEditionMap struct {
	EventID        int32
	EditionID      int32
	MapID          int32
	Order          int32
	Category       *EventCategory
	OriginalMapID  *int32
	TransitiveSave bool
	MedalTimes     *MedalTimes
}

// EventEditionRecord links a record to the edition it counts for. Absence of
// this row for a (event, edition, record) triple on a transparent edition is
// expected — see EventEdition.IsTransparent.
type EventEditionRecord struct {
	EventID   int32
	EditionID int32
	RecordID  int64
}
