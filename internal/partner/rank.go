package partner

import "sort"

// Rank orders match results by score descending, breaking ties by
// candidate id ascending so that identical inputs always yield an
// identical ordering, then truncates to limit. A non-positive limit
// returns the full ordered list.
func Rank(results []MatchResult, limit int) []MatchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CandidateID < results[j].CandidateID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
