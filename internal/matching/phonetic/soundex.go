// Package phonetic produces short sound-alike codes for names.
package phonetic

import "strings"

// soundexClass maps consonants to their Soundex digit. Letters absent from the
// table (vowels, H, W, Y) contribute no digit.
var soundexClass = [26]byte{
	'B' - 'A': '1', 'F' - 'A': '1', 'P' - 'A': '1', 'V' - 'A': '1',
	'C' - 'A': '2', 'G' - 'A': '2', 'J' - 'A': '2', 'K' - 'A': '2',
	'Q' - 'A': '2', 'S' - 'A': '2', 'X' - 'A': '2', 'Z' - 'A': '2',
	'D' - 'A': '3', 'T' - 'A': '3',
	'L' - 'A': '4',
	'M' - 'A': '5', 'N' - 'A': '5',
	'R' - 'A': '6',
}

const soundexLen = 4

// Soundex returns the four character Soundex code of s, or "" when s has no
// ASCII letters. A digit is appended only when it differs from the last digit
// appended, so adjacent letters of the same class collapse even across vowels.
func Soundex(s string) string {
	letters := asciiUpper(s)
	if letters == "" {
		return ""
	}

	code := make([]byte, 0, soundexLen)
	code = append(code, letters[0])
	var last byte
	for i := 1; i < len(letters) && len(code) < soundexLen; i++ {
		d := soundexClass[letters[i]-'A']
		if d == 0 || d == last {
			continue
		}
		code = append(code, d)
		last = d
	}
	for len(code) < soundexLen {
		code = append(code, '0')
	}
	return string(code)
}

// asciiUpper uppercases s and keeps only the letters A through Z.
func asciiUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && c <= 'Z' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
