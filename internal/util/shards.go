package util

import "runtime"

// MaxShards bounds the automatic shard count. Explicit configuration may go
// higher as long as the index layout still fits.
const MaxShards = 256

// ReasonableShardCount returns the default number of slab shards: twice
// GOMAXPROCS rounded up to a power of two, at most MaxShards. Each shard
// holds its own free lists, so this gives concurrent inserters separate
// lists without spreading slots over shards nobody inserts into.
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > MaxShards {
		n = MaxShards
	}
	return n
}

// ShardIndex wraps a router's raw choice into [0, shards): a mask for
// power-of-two counts, modulo otherwise.
func ShardIndex(v uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(v & uint64(shards-1))
	}
	return int(v % uint64(shards))
}
