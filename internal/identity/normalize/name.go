// Package normalize derives comparable forms of raw identity fields.
//
// Every function here is pure and safe for concurrent use.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"rollguard/internal/identity/models"
	"rollguard/internal/matching/phonetic"
)

// lower folds case with Unicode rules. A Caser is stateful, so one is built per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Name lowercases raw, removes every character that is not a letter, hyphen,
// apostrophe or whitespace, and splits the remainder on whitespace. Empty
// tokens are dropped. Input is composed to NFC first so that combining accents
// stay attached to their base letter instead of being stripped.
func Name(raw string) []string {
	s := lower(norm.NFC.String(raw))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), r == '-', r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// Record builds the NormalizedRecord view of r.
func Record(r models.IdentityRecord) models.NormalizedRecord {
	tokens := Name(r.Name)
	full := strings.Join(tokens, " ")
	var surname string
	if len(tokens) > 0 {
		surname = tokens[len(tokens)-1]
	}
	return models.NormalizedRecord{
		Tokens:    tokens,
		FullName:  full,
		Surname:   surname,
		Soundex:   phonetic.Soundex(full),
		Metaphone: phonetic.Metaphone(full),
		Address:   Address(r.Address),
	}
}
