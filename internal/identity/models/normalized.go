package models

// NormalizedAddress is the comparable form of an Address.
type NormalizedAddress struct {
	Canonical string
	Hash      string // hex SHA-256 of Canonical; empty when Canonical is empty
	PIN       string
	District  string
	City      string
	Street    string
	State     string
}

// IsEmpty reports whether no address component survived normalization.
func (a NormalizedAddress) IsEmpty() bool { return a.Canonical == "" }

// NormalizedRecord is derived from an IdentityRecord on demand and never persisted.
type NormalizedRecord struct {
	Tokens    []string
	FullName  string // tokens joined by a single space
	Surname   string // last token, empty if no tokens
	Soundex   string
	Metaphone string
	Address   NormalizedAddress
}
