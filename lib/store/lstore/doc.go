// Package lstore implements a local, in-memory key-value store based on the
// store.IStore interface. Data is not persisted between process restarts.
//
// Key Features:
//   - Lock-free reads and writes backed by xsync.MapOf
//   - Atomic conditional operations (SetIfUnset, DeleteIfEqual) through Compute/LoadOrStore
//   - Values are copied on the way in and out, callers never share memory with the store
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	_ = s.SetIfUnset("lock:orders/42", ownerID)
//	value, exists, err := s.Get("lock:orders/42")
//
// For deployments with more than one routing process, use the dstore package,
// which provides a RAFT-based implementation of the same interface.
package lstore
