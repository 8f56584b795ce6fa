package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"rollguard/internal/ledger/canonical"
	"rollguard/internal/ledger/models"
)

// GenerateHash returns the hex SHA-256 of prevHash, the canonical encoding of
// payload and the millisecond UTC timestamp, concatenated in that order. An
// empty prevHash is treated as the genesis marker.
func GenerateHash(prevHash string, payload any, ts time.Time) (string, error) {
	encoded, err := canonical.Encode(payload)
	if err != nil {
		return "", err
	}
	return hashBlock(prevHash, encoded, models.FormatTimestamp(ts)), nil
}

func hashBlock(prevHash string, encodedPayload []byte, ts string) string {
	if prevHash == "" {
		prevHash = models.GenesisPrevHash
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(encodedPayload)
	h.Write([]byte(ts))
	return hex.EncodeToString(h.Sum(nil))
}

// VotePayload builds the payload recorded on the votes chain. The voter id is
// hashed so the chain never carries it in the clear.
func VotePayload(voterID, electionID, candidateID string) map[string]any {
	sum := sha256.Sum256([]byte(voterID))
	return map[string]any{
		"voter_hash":   hex.EncodeToString(sum[:]),
		"election_id":  electionID,
		"candidate_id": candidateID,
	}
}

func formatSeq(n int64) string {
	return strconv.FormatInt(n, 10)
}
