package match

import "github.com/agnivade/levenshtein"

// LevenshteinDistance returns the edit distance between a and b, counted in runes
func LevenshteinDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// LevenshteinSimilarity maps edit distance onto [0,1]: 1 - distance/max(len(a), len(b)).
// Two empty strings are identical.
func LevenshteinSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(LevenshteinDistance(a, b))/float64(longest)
}

// Similarity compares two names after normalization
func Similarity(a, b string) float64 {
	return LevenshteinSimilarity(Normalize(a), Normalize(b))
}
