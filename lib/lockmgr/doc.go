// Package lockmgr implements no-wait locks on top of any store.IStore.
// It backs the pessimistic row locks of the memdb engine and can be pointed at a
// replicated store (dstore) to make those locks visible across processes.
//
// The lock manager keeps all state in the provided store and has no other internal
// state. It is therefore safe to create it multiple times on the same store.
//
// Implementation Approach:
//
//	- Lock Acquisition: SetIfUnset writes the owner id only if the key is free, a
//	  following Get confirms which owner holds the key. There is no waiting: if the key
//	  is held by someone else AcquireLock returns false immediately.
//
//	- Re-entrance: Acquiring a lock with the owner id that already holds it succeeds,
//	  so a session can lock the same row several times within one transaction.
//
//	- Safe Release: ReleaseLock uses the atomic DeleteIfEqual of the store, a lock is
//	  only removed by its owner.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager(lstore.NewLocalStore())
//	owner, _ := lockmgr.NewOwnerID()
//
//	ok, err := locks.AcquireLock("orders/42", owner)
//	if err != nil { ... }
//	if !ok {
//	    // held by another owner, fail fast
//	}
//	defer locks.ReleaseLock("orders/42", owner)
//
// Thread Safety:
//
//	The lock manager is as thread-safe as the underlying store.IStore implementation.
package lockmgr
