// Package strutil holds small string helpers shared by the validator and the CLI.
package strutil

import (
	"sort"
	"strings"
)

// Distance is the case-insensitive Levenshtein distance between a and b,
// counted in runes.
func Distance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	if len(ra) == 0 {
		return len(rb)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			up := row[j]
			sub := diag
			if ra[i-1] != rb[j-1] {
				sub++
			}
			row[j] = min(row[j-1]+1, up+1, sub)
			diag = up
		}
	}
	return row[len(rb)]
}

// ClosestMatches returns up to limit candidates within maxDistance of input,
// nearest first. Ties keep candidate order and names differing only in case
// are reported once.
func ClosestMatches(input string, candidates []string, maxDistance, limit int) []string {
	type scored struct {
		name     string
		distance int
	}

	var matches []scored
	seen := make(map[string]bool)
	for _, c := range candidates {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		if d := Distance(input, c); d <= maxDistance {
			matches = append(matches, scored{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.name)
	}
	return out
}

// SuggestionDistance is the edit budget for "did you mean" hints. Short names
// get a tighter budget so unrelated three-letter names do not match.
func SuggestionDistance(name string) int {
	switch n := len([]rune(name)); {
	case n <= 3:
		return 1
	case n <= 8:
		return 2
	default:
		return 3
	}
}
