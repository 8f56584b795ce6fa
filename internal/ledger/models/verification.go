package models

// IssueKind describes why a block failed verification.
type IssueKind string

const (
	IssueHashMismatch IssueKind = "hash_mismatch"
	IssueBrokenLink   IssueKind = "broken_link"
	IssueSequenceGap  IssueKind = "sequence_gap"
)

// Issue is one verification finding.
type Issue struct {
	Sequence int64
	Kind     IssueKind
	Expected string
	Actual   string
}

// Verification is the outcome of replaying a chain. It is a query result:
// a broken chain is reported here, never as an error.
type Verification struct {
	Chain             string
	Valid             bool
	Blocks            int64
	FirstInvalidIndex *int64
	Issues            []Issue
}
