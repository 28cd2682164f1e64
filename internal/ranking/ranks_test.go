package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompetitionRanks_TieSharing(t *testing.T) {
	ranks := CompetitionRanks([]int32{1000, 3000, 3000, 5000, 7000})
	assert.Equal(t, []int{1, 2, 2, 4, 5}, ranks)
}

func TestCompetitionRanks_AllDistinct(t *testing.T) {
	ranks := CompetitionRanks([]int32{100, 200, 300})
	assert.Equal(t, []int{1, 2, 3}, ranks)
}

func TestCompetitionRanks_Empty(t *testing.T) {
	assert.Empty(t, CompetitionRanks(nil))
}
