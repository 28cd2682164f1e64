// Package mappack implements the composite mappack scorer of spec §4.8: the
// algorithm that turns a set of per-map leaderboards (either an event
// edition's maps or a free-standing MX-style set) into one ranked list per
// player. Grounded on the same standard-competition-ranking discipline as
// internal/ranking, generalized from one map to a set, and on
// original_source/crates/records_lib/src/mappack.rs for the composite-key
// and tie-sharing rules the distilled spec only summarizes.
package mappack

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/speedrun-hub/obstacle-engine/internal/apierr"
	"github.com/speedrun-hub/obstacle-engine/internal/durable"
	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
	"github.com/speedrun-hub/obstacle-engine/internal/ranking"
	"github.com/speedrun-hub/obstacle-engine/internal/selector"
)

// MapRef is one member of a mappack's map-uid set (§4.8 "Inputs"): a map
// together with the leaderboard identity it should be scored under (global
// for an MX-style mappack, edition-scoped for an event edition one).
type MapRef struct {
	MapID    int32
	MapUID   string
	Identity selector.Identity
}

// Mappack identifies a scorable set. TTL is nil for an event edition
// mappack, which lives as long as the edition does, and set for an
// MX-style mappack (§4.8 step 8).
type Mappack struct {
	ID   string
	Maps []MapRef
	TTL  *time.Duration
}

// MapRank is one map's contribution to a player's per-map rank list,
// ordered per step 3's composite key once scoring completes.
type MapRank struct {
	MapUID   string
	Rank     int
	Finished bool
}

// PlayerScore is one player's row of the §4.8 "Per-player output".
type PlayerScore struct {
	PlayerID      int32
	PerMapRanks   []MapRank
	MapsFinished  int
	WorstRank     int
	Score         float64
	CompositeRank int
}

// Scorer computes and persists composite mappack rankings.
type Scorer struct {
	logger   *zap.Logger
	db       *durable.Store
	fs       faststore.Store
	resolver *ranking.Resolver
}

func NewScorer(logger *zap.Logger, db *durable.Store, fs faststore.Store, resolver *ranking.Resolver) *Scorer {
	return &Scorer{logger: logger, db: db, fs: fs, resolver: resolver}
}

const mappacksSetKey = "mappacks"

// Update runs the §4.8 algorithm end to end: score every player across
// mp.Maps under a repeatable-read durable snapshot, then persist the
// result into the fast store under mp.ID's keys. Returns the scored rows
// in composite-rank order.
func (sc *Scorer) Update(ctx context.Context, mp Mappack) ([]PlayerScore, error) {
	if len(mp.Maps) == 0 {
		// An MX-style mappack whose source map-uid set has gone empty: its
		// TTL has already expired upstream; drop it from the registered
		// set (step 8) and leave the rest of its keys to Redis' own TTL
		// eviction.
		if err := sc.fs.SRem(ctx, mappacksSetKey, mp.ID); err != nil {
			return nil, apierr.Internal(err, "deregister expired mappack")
		}
		return nil, nil
	}

	tx, err := sc.db.BeginScorerRead(ctx)
	if err != nil {
		return nil, apierr.Internal(err, "begin mappack scorer read transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// Step 1: rank every real PB row on every map.
	byMap := make(map[string][]rankedPlayer, len(mp.Maps))
	for _, ref := range mp.Maps {
		rows, err := sc.db.GetPBRows(ctx, tx, ref.MapID, ref.Identity)
		if err != nil {
			return nil, apierr.Internal(err, "read mappack map pb rows")
		}
		ranked := make([]rankedPlayer, 0, len(rows))
		for _, row := range rows {
			rank, err := sc.resolver.Resolve(ctx, ref.MapID, ref.Identity, row.PlayerID, row.Time)
			if err != nil {
				return nil, err
			}
			ranked = append(ranked, rankedPlayer{PlayerID: row.PlayerID, Rank: rank})
		}
		byMap[ref.MapUID] = ranked
	}

	mapUIDs := make([]string, len(mp.Maps))
	for i, m := range mp.Maps {
		mapUIDs[i] = m.MapUID
	}
	players, lastRank := scorePlayers(mapUIDs, byMap)

	if err := sc.persist(ctx, mp, players, lastRank); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apierr.Internal(err, "commit mappack scorer read transaction")
	}
	return players, nil
}

// rankedPlayer is one player's already-resolved (§4.4) rank on one map,
// the input scorePlayers needs for steps 2-6.
type rankedPlayer struct {
	PlayerID int32
	Rank     int
}

// scorePlayers implements §4.8 steps 2-6: given every map's ranked real PB
// rows, fill in the missing entries, compute each player's composite
// score, and assign tie-sharing composite ranks. It is pure with respect
// to the durable and fast stores so it can be exercised directly by tests
// without either.
func scorePlayers(mapUIDs []string, byMap map[string][]rankedPlayer) ([]PlayerScore, map[string]int) {
	lastRank := make(map[string]int, len(mapUIDs))
	cells := make(map[int32]map[string]rankedPlayer) // playerID -> mapUID -> entry
	for _, uid := range mapUIDs {
		worst := 0
		for _, rp := range byMap[uid] {
			if cells[rp.PlayerID] == nil {
				cells[rp.PlayerID] = make(map[string]rankedPlayer)
			}
			cells[rp.PlayerID][uid] = rp
			if rp.Rank > worst {
				worst = rp.Rank
			}
		}
		lastRank[uid] = worst
	}

	// Step 2: players missing from a map get last_rank+1 there, uncounted.
	players := make([]PlayerScore, 0, len(cells))
	for playerID, byUID := range cells {
		ranks := make([]MapRank, 0, len(mapUIDs))
		sum, worst, finished := 0, 0, 0
		for _, uid := range mapUIDs {
			rp, ok := byUID[uid]
			rank := rp.Rank
			if !ok {
				rank = lastRank[uid] + 1
			}
			ranks = append(ranks, MapRank{MapUID: uid, Rank: rank, Finished: ok})
			sum += rank
			if rank > worst {
				worst = rank
			}
			if ok {
				finished++
			}
		}

		// Step 3: order the per-map list by the composite key.
		sort.Slice(ranks, func(i, j int) bool {
			fi, fj := fraction(ranks[i].Rank, lastRank[ranks[i].MapUID]), fraction(ranks[j].Rank, lastRank[ranks[j].MapUID])
			if fi != fj {
				return fi < fj
			}
			return float64(ranks[i].Rank)/1000.0 < float64(ranks[j].Rank)/1000.0
		})

		// Step 4.
		players = append(players, PlayerScore{
			PlayerID:     playerID,
			PerMapRanks:  ranks,
			MapsFinished: finished,
			WorstRank:    worst,
			Score:        float64(sum) / float64(len(mapUIDs)),
		})
	}

	// Step 5: order players by (maps_finished desc, score asc).
	sort.Slice(players, func(i, j int) bool {
		if players[i].MapsFinished != players[j].MapsFinished {
			return players[i].MapsFinished > players[j].MapsFinished
		}
		if players[i].Score != players[j].Score {
			return players[i].Score < players[j].Score
		}
		return players[i].PlayerID < players[j].PlayerID
	})

	// Step 6: tie-sharing composite ranks on (score, maps_finished).
	for i := range players {
		if i > 0 && players[i].Score == players[i-1].Score && players[i].MapsFinished == players[i-1].MapsFinished {
			players[i].CompositeRank = players[i-1].CompositeRank
		} else {
			players[i].CompositeRank = i + 1
		}
	}

	return players, lastRank
}

// fraction is step 3's "small fraction of that map's last_rank" key. A map
// with no real PB rows (last <= 0) sorts every player's entry on it last,
// since there is nothing to be a fraction of.
func fraction(rank, last int) float64 {
	if last <= 0 {
		return 1
	}
	return float64(rank) / float64(last)
}

// persist writes step 7's fast-store keys and applies step 8's TTL
// sweep bookkeeping for MX-style mappacks.
func (sc *Scorer) persist(ctx context.Context, mp Mappack, players []PlayerScore, lastRank map[string]int) error {
	var ttl time.Duration
	if mp.TTL != nil {
		ttl = *mp.TTL
	}

	mapUIDs := make([]string, len(mp.Maps))
	for i, m := range mp.Maps {
		mapUIDs[i] = m.MapUID
	}
	if err := sc.fs.SAdd(ctx, mapsKey(mp.ID), mapUIDs...); err != nil {
		return apierr.Internal(err, "persist mappack map set")
	}

	lbMembers := make([]faststore.Member, len(players))
	for i, p := range players {
		lbMembers[i] = faststore.Member{Member: playerMember(p.PlayerID), Score: int64(p.CompositeRank)}
	}
	if err := sc.fs.ReplaceAll(ctx, lbKey(mp.ID), lbMembers); err != nil {
		return apierr.Internal(err, "persist mappack leaderboard")
	}

	for _, m := range mp.Maps {
		if err := sc.fs.Set(ctx, mapLastRankKey(mp.ID, m.MapUID), strconv.Itoa(lastRank[m.MapUID]), ttl); err != nil {
			return apierr.Internal(err, "persist mappack map last-rank scalar")
		}
	}

	for _, p := range players {
		rankMembers := make([]faststore.Member, len(p.PerMapRanks))
		for i, mr := range p.PerMapRanks {
			rankMembers[i] = faststore.Member{Member: mr.MapUID, Score: int64(mr.Rank)}
		}
		ranksKey := playerRanksKey(mp.ID, p.PlayerID)
		if err := sc.fs.ReplaceAll(ctx, ranksKey, rankMembers); err != nil {
			return apierr.Internal(err, "persist mappack player per-map ranks")
		}
		if err := sc.fs.Set(ctx, playerScalarKey(mp.ID, p.PlayerID, "rank_avg"), strconv.FormatFloat(p.Score, 'f', -1, 64), ttl); err != nil {
			return apierr.Internal(err, "persist mappack rank_avg")
		}
		if err := sc.fs.Set(ctx, playerScalarKey(mp.ID, p.PlayerID, "map_finished"), strconv.Itoa(p.MapsFinished), ttl); err != nil {
			return apierr.Internal(err, "persist mappack map_finished")
		}
		if err := sc.fs.Set(ctx, playerScalarKey(mp.ID, p.PlayerID, "worst_rank"), strconv.Itoa(p.WorstRank), ttl); err != nil {
			return apierr.Internal(err, "persist mappack worst_rank")
		}
		if ttl > 0 {
			if err := sc.fs.Expire(ctx, ranksKey, ttl); err != nil {
				return apierr.Internal(err, "expire mappack player per-map ranks")
			}
		}
	}

	if err := sc.fs.Set(ctx, nbMapKey(mp.ID), strconv.Itoa(len(mp.Maps)), ttl); err != nil {
		return apierr.Internal(err, "persist mappack nb_map")
	}
	if err := sc.fs.Set(ctx, lastUpdateKey(mp.ID), strconv.FormatInt(time.Now().Unix(), 10), ttl); err != nil {
		return apierr.Internal(err, "persist mappack last_update")
	}

	if ttl > 0 {
		if err := sc.fs.Expire(ctx, mapsKey(mp.ID), ttl); err != nil {
			return apierr.Internal(err, "expire mappack map set")
		}
		if err := sc.fs.Expire(ctx, lbKey(mp.ID), ttl); err != nil {
			return apierr.Internal(err, "expire mappack leaderboard")
		}
		if err := sc.fs.SAdd(ctx, mappacksSetKey, mp.ID); err != nil {
			return apierr.Internal(err, "register mx-style mappack")
		}
	}

	return nil
}

func playerMember(playerID int32) string {
	return fmt.Sprintf("%d", playerID)
}

func mapsKey(id string) string { return fmt.Sprintf("mappack:%s:maps", id) }
func lbKey(id string) string   { return fmt.Sprintf("mappack:%s:lb", id) }

func playerRanksKey(id string, p int32) string {
	return fmt.Sprintf("mappack:%s:%d:ranks", id, p)
}

func playerScalarKey(id string, p int32, suffix string) string {
	return fmt.Sprintf("mappack:%s:%d:%s", id, p, suffix)
}

func nbMapKey(id string) string      { return fmt.Sprintf("mappack:%s:nb_map", id) }
func lastUpdateKey(id string) string { return fmt.Sprintf("mappack:%s:last_update", id) }

func mapLastRankKey(id, uid string) string {
	return fmt.Sprintf("mappack:%s:%s:last_rank", id, uid)
}
