// Package store provides a small key-value interface used for the cluster metadata of the
// sharding layer: shard blacklist flags and pessimistic row lock ownership.
//
// The package focuses on:
//   - A unified interface (IStore) with conditional writes (SetIfUnset, DeleteIfEqual)
//   - Unified, code based error reporting (Error, RetCode)
//
// Implementations:
//
//	- Local Store (lstore): A process local implementation on top of a concurrent map.
//	  Suitable when only one process routes traffic or when the data is inherently local
//	  (row locks of an in-memory backend).
//	  Available in the "github.com/ValentinKolb/dShard/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat RAFT consensus
//	  library. Every process of a deployment sees the same values, which gives blacklisting
//	  cluster-wide consistency.
//	  Available in the "github.com/ValentinKolb/dShard/lib/store/dstore" package.
package store
