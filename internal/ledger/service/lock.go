package service

import "sync"

// numChainShards bounds the number of mutexes; two chains that hash to the
// same shard simply serialize against each other.
const numChainShards = 64

type chainLocks struct {
	shards [numChainShards]sync.Mutex
}

func (l *chainLocks) lock(chain string) func() {
	mu := &l.shards[hashChain(chain)%numChainShards]
	mu.Lock()
	return mu.Unlock
}

// hashChain is FNV-1a.
func hashChain(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
