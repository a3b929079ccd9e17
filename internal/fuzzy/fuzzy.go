// Package fuzzy scores string similarity with normalized Levenshtein distance.
package fuzzy

// Distance returns the Levenshtein edit distance between a and b, counted in runes.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i

		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Similarity returns 1 - Distance(a,b)/max(len(a),len(b)). Two empty strings are identical.
func Similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}

	return 1 - float64(Distance(a, b))/float64(longest)
}

// Match is the best candidate found by Best.
type Match struct {
	Value      string
	Similarity float64
}

// Best returns the candidate most similar to target whose similarity exceeds threshold.
// Ties keep the earliest candidate.
func Best(target string, candidates []string, threshold float64) (Match, bool) {
	var (
		best  Match
		found bool
	)

	for _, c := range candidates {
		s := Similarity(target, c)
		if s <= threshold {
			continue
		}

		if !found || s > best.Similarity {
			best = Match{Value: c, Similarity: s}
			found = true
		}
	}

	return best, found
}
