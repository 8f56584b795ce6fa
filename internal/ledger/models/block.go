package models

import (
	"regexp"
	"time"

	dErrors "rollguard/pkg/domain-errors"
)

// Well-known chains.
const (
	ChainVotes = "votes"
	ChainAudit = "audit"
)

// GenesisPrevHash is the previous hash of the first block of every chain.
const GenesisPrevHash = "0"

// TimestampLayout is ISO-8601 in UTC with millisecond precision, the form
// hashed into every block.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var chainNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Block is one immutable ledger entry.
//
// Invariants:
//   - Sequence starts at 0 and increases by one per chain
//   - PreviousHash is GenesisPrevHash for sequence 0, else the prior block's CurrentHash
//   - CurrentHash = SHA-256(PreviousHash ∥ Payload ∥ Timestamp formatted with TimestampLayout)
//   - Payload holds the canonical encoding exactly as hashed
type Block struct {
	Chain        string
	Sequence     int64
	PreviousHash string
	Payload      []byte
	Timestamp    time.Time
	CurrentHash  string
}

// TimestampString renders Timestamp in the hashed form.
func (b Block) TimestampString() string {
	return FormatTimestamp(b.Timestamp)
}

// FormatTimestamp renders t as hashed into blocks.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ValidateChainName rejects names that are not short lowercase identifiers.
func ValidateChainName(chain string) error {
	if !chainNamePattern.MatchString(chain) {
		return dErrors.New(dErrors.CodeValidation, "chain name must be a lowercase identifier")
	}
	return nil
}
