package scoring

import (
	"fmt"
	"sort"
	"strings"

	pstrings "rollguard/pkg/platform/strings"
)

// Algorithm selects a family of signals for a comparison.
type Algorithm string

const (
	AlgoPhonetic    Algorithm = "phonetic"
	AlgoFuzzy       Algorithm = "fuzzy"
	AlgoDOB         Algorithm = "dob"
	AlgoAddress     Algorithm = "address"
	AlgoFace        Algorithm = "face"
	AlgoFingerprint Algorithm = "fingerprint"
	AlgoExactID     Algorithm = "exact_id"
)

// aliases accepted by ParseAlgorithms in addition to the canonical names.
var algorithmAliases = map[string][]Algorithm{
	"name_phonetic": {AlgoPhonetic},
	"name_fuzzy":    {AlgoFuzzy},
	"aadhaar":       {AlgoExactID},
	"national_id":   {AlgoExactID},
	"biometric":     {AlgoFace, AlgoFingerprint},
	"all":           allAlgorithms,
}

var allAlgorithms = []Algorithm{
	AlgoPhonetic, AlgoFuzzy, AlgoDOB, AlgoAddress, AlgoFace, AlgoFingerprint, AlgoExactID,
}

// AlgorithmSet is an immutable set of algorithms.
type AlgorithmSet struct {
	m map[Algorithm]struct{}
}

// NewAlgorithmSet builds a set from algs.
func NewAlgorithmSet(algs ...Algorithm) AlgorithmSet {
	m := make(map[Algorithm]struct{}, len(algs))
	for _, a := range algs {
		m[a] = struct{}{}
	}
	return AlgorithmSet{m: m}
}

// AllAlgorithms enables every signal.
func AllAlgorithms() AlgorithmSet { return NewAlgorithmSet(allAlgorithms...) }

// Has reports membership.
func (s AlgorithmSet) Has(a Algorithm) bool {
	_, ok := s.m[a]
	return ok
}

// Len is the number of algorithms in the set.
func (s AlgorithmSet) Len() int { return len(s.m) }

// Slice returns the algorithms in sorted order.
func (s AlgorithmSet) Slice() []Algorithm {
	out := make([]Algorithm, 0, len(s.m))
	for a := range s.m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s AlgorithmSet) String() string {
	parts := make([]string, 0, len(s.m))
	for _, a := range s.Slice() {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, ",")
}

// ParseAlgorithms reads a comma separated algorithm list. Empty input selects
// every algorithm.
func ParseAlgorithms(raw string) (AlgorithmSet, error) {
	names := pstrings.DedupeAndTrimLower(strings.Split(raw, ","))
	if len(names) == 0 {
		return AllAlgorithms(), nil
	}
	var algs []Algorithm
	for _, n := range names {
		if expanded, ok := algorithmAliases[n]; ok {
			algs = append(algs, expanded...)
			continue
		}
		a := Algorithm(n)
		if !isKnown(a) {
			return AlgorithmSet{}, fmt.Errorf("unknown algorithm %q", n)
		}
		algs = append(algs, a)
	}
	return NewAlgorithmSet(algs...), nil
}

func isKnown(a Algorithm) bool {
	for _, k := range allAlgorithms {
		if k == a {
			return true
		}
	}
	return false
}
