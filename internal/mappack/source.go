package mappack

import (
	"context"
	"time"

	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// RegisteredSource is the Source the Sweeper uses in production: it reads
// back the mappacksSetKey registry Scorer.persist maintains and each
// mappack's own map-uid set, so the sweeper needs no separate bookkeeping
// of which MX-style mappacks exist. MX-style mappacks are always scored
// against the global leaderboard (§4.8 "Inputs": an MX-style mappack has
// no event/edition context).
type RegisteredSource struct {
	db  *durable.Store
	fs  faststore.Store
	ttl time.Duration
}

func NewRegisteredSource(db *durable.Store, fs faststore.Store, ttl time.Duration) *RegisteredSource {
	return &RegisteredSource{db: db, fs: fs, ttl: ttl}
}

// RegisterMX adds an MX-style mappack to the fast store's registry set so
// the next Sweeper tick picks it up, per §4.8 step 8. Used by the mxingest
// CLI collaborator after it has ingested the pack's finish records.
func RegisterMX(ctx context.Context, fs faststore.Store, id string, mapUIDs []string) error {
	if err := fs.SAdd(ctx, mappacksSetKey, id); err != nil {
		return err
	}
	if len(mapUIDs) == 0 {
		return nil
	}
	return fs.SAdd(ctx, mapsKey(id), mapUIDs...)
}

func (s *RegisteredSource) MXMappacks(ctx context.Context) ([]Mappack, error) {
	ids, err := s.fs.SMembers(ctx, mappacksSetKey)
	if err != nil {
		return nil, err
	}

	packs := make([]Mappack, 0, len(ids))
	for _, id := range ids {
		uids, err := s.fs.SMembers(ctx, mapsKey(id))
		if err != nil {
			return nil, err
		}

		refs := make([]MapRef, 0, len(uids))
		for _, uid := range uids {
			m, err := s.db.GetMapByUID(ctx, uid)
			if err != nil || m == nil {
				// A map deleted out from under a live mappack is dropped
				// from this round's scoring rather than failing the whole
				// sweep tick.
				continue
			}
			refs = append(refs, MapRef{MapID: m.ID, MapUID: uid, Identity: selector.Global})
		}

		ttl := s.ttl
		packs = append(packs, Mappack{ID: id, Maps: refs, TTL: &ttl})
	}
	return packs, nil
}
