package service

import (
	"iter"
	"sort"

	"rollguard/internal/matching/biometric"
	"rollguard/internal/scoring"
)

// DefaultFaceBlockSimilarity is the cosine floor FaceBlocker uses when none
// is set.
const DefaultFaceBlockSimilarity = 0.8

// Blocker chooses which subject pairs are scored. Every yielded pair must
// satisfy i < j and appear at most once.
type Blocker interface {
	Pairs(subjects []scoring.Subject) iter.Seq2[int, int]
}

// AllPairs yields every unordered pair: n(n-1)/2 comparisons.
type AllPairs struct{}

func (AllPairs) Pairs(subjects []scoring.Subject) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for i := range subjects {
			for j := i + 1; j < len(subjects); j++ {
				if !yield(i, j) {
					return
				}
			}
		}
	}
}

// PhoneticBlocker only compares subjects whose full-name Soundex codes match.
type PhoneticBlocker struct{}

func (PhoneticBlocker) Pairs(subjects []scoring.Subject) iter.Seq2[int, int] {
	return bucketPairs(subjects, func(s scoring.Subject) string { return s.Norm.Soundex })
}

// AddressBlocker only compares subjects sharing a normalized address hash.
type AddressBlocker struct{}

func (AddressBlocker) Pairs(subjects []scoring.Subject) iter.Seq2[int, int] {
	return bucketPairs(subjects, func(s scoring.Subject) string { return s.Norm.Address.Hash })
}

// FaceBlocker only compares subjects whose face embeddings reach
// MinSimilarity. Subjects without a usable embedding are compared with each
// other.
type FaceBlocker struct {
	MinSimilarity float64
}

func (b FaceBlocker) Pairs(subjects []scoring.Subject) iter.Seq2[int, int] {
	threshold := b.MinSimilarity
	if threshold <= 0 {
		threshold = DefaultFaceBlockSimilarity
	}
	return func(yield func(int, int) bool) {
		var (
			gallery  []biometric.Candidate
			index    = make(map[string]int)
			faceless []int
		)
		for i, s := range subjects {
			face := s.Record.Face
			if !biometric.Comparable(face, face) {
				faceless = append(faceless, i)
				continue
			}
			gallery = append(gallery, biometric.Candidate{ID: s.Record.ID, Embedding: face})
			index[s.Record.ID] = i
		}
		// gallery is in subject order, so every later entry has a larger index
		for g, probe := range gallery {
			for _, m := range biometric.BatchCompare(probe.Embedding, gallery[g+1:], threshold) {
				if !yield(index[probe.ID], index[m.ID]) {
					return
				}
			}
		}
		for x := range faceless {
			for y := x + 1; y < len(faceless); y++ {
				if !yield(faceless[x], faceless[y]) {
					return
				}
			}
		}
	}
}

// bucketPairs yields all pairs within each bucket. Subjects with an empty key
// share a bucket so they are still compared with each other.
func bucketPairs(subjects []scoring.Subject, key func(scoring.Subject) string) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		buckets := make(map[string][]int)
		for i, s := range subjects {
			k := key(s)
			buckets[k] = append(buckets[k], i)
		}
		keys := make([]string, 0, len(buckets))
		for k := range buckets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			idx := buckets[k]
			for x := range idx {
				for y := x + 1; y < len(idx); y++ {
					if !yield(idx[x], idx[y]) {
						return
					}
				}
			}
		}
	}
}
