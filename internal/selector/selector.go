// Package selector implements the event/edition view selector of spec §4.7:
// a single value that parameterizes every leaderboard read/write instead of
// callers branching on event presence, following the "context value, not
// inheritance" design called out in spec §9 and grounded on
// original_source's records_lib/src/context.rs OptEvent pattern.
package selector

import "fmt"

// Identity names a leaderboard: either the global one, or a specific
// event edition's.
type Identity struct {
	EventID   int32
	EditionID int32
	isEvent   bool
}

// Global is the non-event leaderboard identity.
var Global = Identity{}

// Edition builds an event-edition leaderboard identity.
func Edition(eventID, editionID int32) Identity {
	return Identity{EventID: eventID, EditionID: editionID, isEvent: true}
}

// IsGlobal reports whether this identity is the base, non-event leaderboard.
func (id Identity) IsGlobal() bool { return !id.isEvent }

// FastStoreKey formats the bit-exact fast-store key shape from spec §6:
// "l0:{map_id}" for global, "le:{event_id}:{edition_id}:{map_id}" for an
// edition.
func (id Identity) FastStoreKey(mapID int32) string {
	if id.IsGlobal() {
		return fmt.Sprintf("l0:%d", mapID)
	}
	return fmt.Sprintf("le:%d:%d:%d", id.EventID, id.EditionID, mapID)
}

func (id Identity) String() string {
	if id.IsGlobal() {
		return "global"
	}
	return fmt.Sprintf("event(%d,%d)", id.EventID, id.EditionID)
}
