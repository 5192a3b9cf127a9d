// Package dstore implements a distributed, fault-tolerant key-value store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.IStore interface and is the backing store for cluster-wide shard
// blacklisting: every routing process that reads blacklist flags through a dstore sees
// the same values.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. Writes are serialized into commands and
//     proposed with SyncPropose, reads are served with SyncRead (linearizable) or StaleRead.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine holding a concurrent map.
//     Lookups run concurrently with updates. Snapshots copy the map in PrepareSnapshot and
//     encode the copy with gob in SaveSnapshot.
//
//   - Protocol: Defined in the internal package (Command, Query).
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to five attempts.
//
//	- Timeouts: All operations have a configurable timeout. If consensus cannot be
//	  reached within this period, the operation fails with a RetCInternalError.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMachineFactory(), shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//	blacklist := sharding.NewStoreBlacklistingStore(s)
//
// Deployment Recommendations:
//
//   - Deploy with an odd number of nodes (typically 3 or 5) so a majority is always possible.
//   - Operations cannot proceed while a majority of nodes is unavailable.
//
// For single process deployments use the lstore package instead.
package dstore
