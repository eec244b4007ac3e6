package core

import "sync"

const lockStripes = 64

// stripedLocks serializes writers per entity id with a fixed set of stripes.
// Two different ids may share a stripe; that only costs throughput, never
// correctness.
type stripedLocks struct {
	shards [lockStripes]sync.Mutex
}

func (l *stripedLocks) lock(id int64) func() {
	shard := &l.shards[uint64(id)%lockStripes]
	shard.Lock()
	return shard.Unlock
}
