/*
Package sharding routes partition keys to shards.

A key is hashed to a bucket by a BucketIDExtractor, the bucket is mapped to a shard by the
immutable Allocation of a Manager. Two allocation policies exist:

  - Balanced: 1024 buckets, a power of two > 1 shards, equal ranges
  - Legacy: 1000 buckets, intervals of 999/numShards, the last shard takes the remainder

Shards can be blacklisted. The flag lives in a BlacklistingStore (in memory or on top of a
store.IStore, which may be replicated with raft) and is cached per process. Routing to a
blacklisted shard fails with an *Error of code CodeShardBlacklisted.

Usage:

	m, err := sharding.NewManager(sharding.Balanced, 4, nil)
	if err != nil {
		// handle error
	}
	calc := sharding.NewCalculator(m, sharding.NewConsistentHashExtractor(m.NumBuckets()))
	shard, err := calc.ShardID("customer-42")
*/
package sharding
