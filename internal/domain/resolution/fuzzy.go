package resolution

// levenshtein computes the edit distance between two strings over bytes;
// normalized text is ASCII apart from Greek symbols, and byte-level
// distance is stable and cheap for both.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Similarity is the engine's length-penalized edit similarity in [0,1],
// exposed for variant clustering so review batches group by the same
// measure the cascade matches with.
func Similarity(a, b string) float64 { return fuzzyScore(a, b) }

// fuzzyScore is the normalized edit similarity of two texts, penalized by
// their length mismatch so a short string cannot score high against a much
// longer one it happens to be close to in edits.
func fuzzyScore(query, candidate string) float64 {
	la, lb := len(query), len(candidate)
	if la == 0 || lb == 0 {
		return 0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	ratio := 1 - float64(levenshtein(query, candidate))/float64(maxLen)
	penalty := 1 - float64(diff)/float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	return ratio * penalty
}
