package ranking

// CompetitionRanks assigns standard-competition ranks (1, 2, 2, 4, 5 style)
// to times already sorted ascending, per §4.4's tie-sharing rule. This is
// the same algorithm Resolver.Resolve applies against the fast store,
// factored out as a pure function over an already-materialized list so the
// HTTP overview handler (and tests) can call it without touching Redis.
func CompetitionRanks(times []int32) []int {
	ranks := make([]int, len(times))
	for i, t := range times {
		if i > 0 && times[i-1] == t {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}
