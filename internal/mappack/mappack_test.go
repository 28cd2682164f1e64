package mappack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestScorePlayers_CompositeRanking exercises §8 scenario 10: two maps A, B
// and three players whose per-map ranks are P1=(1,1), P2=(2,3), P3=(3,2).
func TestScorePlayers_CompositeRanking(t *testing.T) {
	byMap := map[string][]rankedPlayer{
		"A": {{PlayerID: 1, Rank: 1}, {PlayerID: 2, Rank: 2}, {PlayerID: 3, Rank: 3}},
		"B": {{PlayerID: 1, Rank: 1}, {PlayerID: 3, Rank: 2}, {PlayerID: 2, Rank: 3}},
	}

	players, lastRank := scorePlayers([]string{"A", "B"}, byMap)

	assert.Equal(t, 3, lastRank["A"])
	assert.Equal(t, 3, lastRank["B"])

	byID := make(map[int32]PlayerScore, len(players))
	for _, p := range players {
		byID[p.PlayerID] = p
	}

	assert.Equal(t, 2, byID[1].MapsFinished)
	assert.Equal(t, 1.0, byID[1].Score)
	assert.Equal(t, 1, byID[1].WorstRank)

	assert.Equal(t, 2, byID[2].MapsFinished)
	assert.InDelta(t, 2.5, byID[2].Score, 0.0001)

	assert.Equal(t, 2, byID[3].MapsFinished)
	assert.InDelta(t, 2.5, byID[3].Score, 0.0001)

	// P1 has the best score and is the sole occupant of composite rank 1.
	assert.Equal(t, 1, byID[1].CompositeRank)
	// P2 and P3 tie on (score, maps_finished) and must share the same
	// composite rank, with nobody occupying rank 3.
	assert.Equal(t, byID[2].CompositeRank, byID[3].CompositeRank)
	assert.Equal(t, 2, byID[2].CompositeRank)
	for _, p := range players {
		if p.PlayerID != 1 {
			assert.Equal(t, 2, p.CompositeRank)
		}
	}
}

// TestScorePlayers_MissingMapGetsLastRankPlusOne covers step 2: a player
// absent from a map is assigned last_rank+1 there and is not counted as
// having finished it.
func TestScorePlayers_MissingMapGetsLastRankPlusOne(t *testing.T) {
	byMap := map[string][]rankedPlayer{
		"A": {{PlayerID: 1, Rank: 1}, {PlayerID: 2, Rank: 2}},
		"B": {{PlayerID: 1, Rank: 1}},
	}

	players, lastRank := scorePlayers([]string{"A", "B"}, byMap)
	assert.Equal(t, 1, lastRank["B"])

	var p2 PlayerScore
	for _, p := range players {
		if p.PlayerID == 2 {
			p2 = p
		}
	}
	assert.Equal(t, 1, p2.MapsFinished)
	for _, mr := range p2.PerMapRanks {
		if mr.MapUID == "B" {
			assert.False(t, mr.Finished)
			assert.Equal(t, 2, mr.Rank) // last_rank(B)=1, +1
		}
	}
}

// TestScorePlayers_NoRowsOnAnyMap is the degenerate case: nobody has
// finished any map in the set, so there are no players to score.
func TestScorePlayers_NoRowsOnAnyMap(t *testing.T) {
	players, lastRank := scorePlayers([]string{"A", "B"}, map[string][]rankedPlayer{})
	assert.Empty(t, players)
	assert.Equal(t, 0, lastRank["A"])
}

func TestFraction_NoRealRowsSortsLast(t *testing.T) {
	assert.Equal(t, 1.0, fraction(5, 0))
	assert.Less(t, fraction(1, 10), fraction(5, 10))
}
