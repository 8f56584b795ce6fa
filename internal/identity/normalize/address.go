package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"rollguard/internal/identity/models"
)

// abbreviations maps common address shorthand to its expanded word.
var abbreviations = map[string]string{
	"st":   "street",
	"str":  "street",
	"rd":   "road",
	"ave":  "avenue",
	"blvd": "boulevard",
	"dr":   "drive",
	"ln":   "lane",
	"ct":   "court",
	"apt":  "apartment",
	"fl":   "floor",
	"no":   "number",
	"nr":   "near",
	"opp":  "opposite",
}

// pinLength is the length of an Indian postal index number.
const pinLength = 6

// Address canonicalizes address components. Present components are joined in
// the fixed order house, street, locality, city, district, state, pin; missing
// components are omitted. Hash is the hex SHA-256 of the canonical string.
func Address(a models.Address) models.NormalizedAddress {
	out := models.NormalizedAddress{
		Street:   expand(text(a.Street)),
		City:     text(a.City),
		District: text(a.District),
		State:    text(a.State),
		PIN:      PIN(a.PIN),
	}
	parts := make([]string, 0, 7)
	for _, p := range []string{
		text(a.House),
		out.Street,
		expand(text(a.Locality)),
		out.City,
		out.District,
		out.State,
		out.PIN,
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out.Canonical = strings.Join(parts, ", ")
	if out.Canonical != "" {
		sum := sha256.Sum256([]byte(out.Canonical))
		out.Hash = hex.EncodeToString(sum[:])
	}
	return out
}

// PIN keeps only digits. Longer values are truncated and shorter non-empty
// values are left-padded with zeros to six digits.
func PIN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case len(digits) > pinLength:
		return digits[:pinLength]
	default:
		return strings.Repeat("0", pinLength-len(digits)) + digits
	}
}

// AddressConfidence is the fraction of city, district, state and pin present
// after normalization.
func AddressConfidence(a models.Address) float64 {
	n := Address(a)
	present := 0
	for _, f := range []string{n.City, n.District, n.State, n.PIN} {
		if f != "" {
			present++
		}
	}
	return float64(present) / 4
}

// text lowercases, drops punctuation other than '-' and '/', and collapses
// whitespace.
func text(s string) string {
	s = lower(norm.NFC.String(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '/':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func expand(s string) string {
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	for i, w := range words {
		if full, ok := abbreviations[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
