package diag

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ClosestMatch finds the candidate closest to target using fuzzy matching,
// or "" when nothing is close. Candidates that contain target as a
// subsequence are preferred; failing that, the candidate with the smallest
// edit distance wins if it is within half the length of target.
func ClosestMatch(target string, candidates []string) string {
	if target == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	limit := len(target) / 2
	if limit < 1 {
		limit = 1
	}
	best, bestDistance := "", limit+1
	for _, c := range candidates {
		d := fuzzy.LevenshteinDistance(strings.ToLower(c), strings.ToLower(target))
		if d < bestDistance {
			best, bestDistance = c, d
		}
	}
	return best
}
