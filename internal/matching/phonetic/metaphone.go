package phonetic

import "strings"

const metaphoneMaxLen = 6

// Metaphone returns a simplified Metaphone code of at most six characters.
// It covers the common English digraphs (CH, PH, SH, TH, GH, GN, DG) and the
// silent initial pairs KN, GN, PN, AE and WR. Vowels are kept only in first
// position.
func Metaphone(s string) string {
	w := asciiUpper(s)
	if w == "" {
		return ""
	}

	var code strings.Builder
	i := 0
	switch {
	case hasAnyPrefix(w, "KN", "GN", "PN", "AE", "WR"):
		i = 1
	case w[0] == 'X':
		code.WriteByte('S')
		i = 1
	}

	at := func(k int) byte {
		if k < 0 || k >= len(w) {
			return 0
		}
		return w[k]
	}

	for i < len(w) && code.Len() < metaphoneMaxLen {
		c, prev, next := w[i], at(i-1), at(i+1)

		if isVowel(c) {
			if i == 0 {
				code.WriteByte(c)
			}
			i++
			continue
		}

		switch c {
		case 'B':
			if prev != 'M' || next != 0 {
				code.WriteByte('B')
			}
		case 'C':
			switch {
			case next == 'H':
				code.WriteByte('X')
				i++
			case isFrontVowel(next):
				code.WriteByte('S')
			default:
				code.WriteByte('K')
			}
		case 'D':
			if next == 'G' && isFrontVowel(at(i+2)) {
				code.WriteByte('J')
				i++
			} else {
				code.WriteByte('T')
			}
		case 'G':
			switch {
			case next == 'H' && !isVowel(at(i+2)):
				// silent
			case next == 'N':
				code.WriteByte('N')
				i++
			case isFrontVowel(next) && prev != 'G':
				code.WriteByte('J')
			default:
				code.WriteByte('K')
			}
		case 'H':
			if isVowel(prev) && isVowel(next) {
				code.WriteByte('H')
			}
		case 'K':
			if prev != 'C' {
				code.WriteByte('K')
			}
		case 'P':
			if next == 'H' {
				code.WriteByte('F')
				i++
			} else {
				code.WriteByte('P')
			}
		case 'Q':
			code.WriteByte('K')
		case 'S':
			switch {
			case next == 'H':
				code.WriteByte('X')
				i++
			case next == 'C' && isFrontVowel(at(i+2)):
				code.WriteByte('S')
				i++
			default:
				code.WriteByte('S')
			}
		case 'T':
			if next == 'H' {
				code.WriteByte('0')
				i++
			} else {
				code.WriteByte('T')
			}
		case 'V':
			code.WriteByte('F')
		case 'W', 'Y':
			if isVowel(next) {
				code.WriteByte(c)
			}
		case 'X':
			code.WriteString("KS")
		case 'Z':
			code.WriteByte('S')
		default: // F J L M N R
			code.WriteByte(c)
		}
		i++
	}

	out := code.String()
	if len(out) > metaphoneMaxLen {
		out = out[:metaphoneMaxLen]
	}
	return out
}

func isVowel(c byte) bool {
	return c == 'A' || c == 'E' || c == 'I' || c == 'O' || c == 'U'
}

func isFrontVowel(c byte) bool {
	return c == 'E' || c == 'I' || c == 'Y'
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
