package http

// Row is one leaderboard row in an overview response.
type Row struct {
	Rank     int    `json:"rank"`
	PlayerID int32  `json:"player_id"`
	Login    string `json:"login"`
	Name     string `json:"name"`
	Time     int32  `json:"time"`
}

// frame implements §8 property 2 / §4's overview framing: at most 15 rows,
// shaped around whichever of the four cases applies.
//
//   - player ranked <= 15: the top 15.
//   - player ranked > 15 and total >= 15: top 3, then a 12-row window
//     centered on the player, clipped to the bottom of the board.
//   - no player record, total > 14: top 11 plus the last 3.
//   - no player record, total <= 14: everything.
//
// rows must already be sorted ascending by rank. playerIdx is the 0-based
// index of the player's row in rows, or -1 if the player has no record.
func frame(rows []Row, playerIdx int) []Row {
	const maxRows = 15

	if playerIdx < 0 {
		if len(rows) <= 14 {
			return rows
		}
		out := make([]Row, 0, maxRows)
		out = append(out, rows[:11]...)
		out = append(out, rows[len(rows)-3:]...)
		return out
	}

	if playerIdx < maxRows {
		if len(rows) <= maxRows {
			return rows
		}
		return rows[:maxRows]
	}

	top := rows[:3]
	windowSize := 12
	start := playerIdx - windowSize/2
	if start < 3 {
		start = 3
	}
	end := start + windowSize
	if end > len(rows) {
		end = len(rows)
		start = end - windowSize
		if start < 3 {
			start = 3
		}
	}

	out := make([]Row, 0, maxRows)
	out = append(out, top...)
	out = append(out, rows[start:end]...)
	return out
}
