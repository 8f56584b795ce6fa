// Package fuzzy implements edit-distance and Jaro family string similarity.
// All similarities are in [0,1]; two empty strings are identical.
package fuzzy

// winklerPrefixScale is the Winkler prefix bonus p.
const winklerPrefixScale = 0.1

// winklerMaxPrefix caps the common prefix length L.
const winklerMaxPrefix = 4

// Jaro returns the Jaro similarity of s1 and s2, comparing by rune.
func Jaro(s1, s2 string) float64 {
	a, b := []rune(s1), []rune(s2)
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0
	for i := range a {
		lo := max(0, i-window)
		hi := min(len(b), i+window+1)
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i], bMatched[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	// transpositions: matched characters that appear in a different order
	half := 0
	k := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			half++
		}
		k++
	}

	m := float64(matches)
	t := float64(half) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// JaroWinkler boosts the Jaro similarity by the length of the common prefix,
// capped at four runes.
func JaroWinkler(s1, s2 string) float64 {
	j := Jaro(s1, s2)
	a, b := []rune(s1), []rune(s2)
	prefix := 0
	for prefix < min(len(a), len(b), winklerMaxPrefix) && a[prefix] == b[prefix] {
		prefix++
	}
	return j + float64(prefix)*winklerPrefixScale*(1-j)
}
