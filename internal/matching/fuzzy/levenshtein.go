package fuzzy

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Levenshtein returns the rune-level edit distance between s1 and s2.
func Levenshtein(s1, s2 string) int {
	return levenshtein.ComputeDistance(s1, s2)
}

// NormalizedLevenshtein maps edit distance onto [0,1] as
// 1 - distance/max(len1, len2).
func NormalizedLevenshtein(s1, s2 string) float64 {
	l1, l2 := utf8.RuneCountInString(s1), utf8.RuneCountInString(s2)
	longest := max(l1, l2)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(s1, s2))/float64(longest)
}
