package lockmgr

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock tries to take the lock for key on behalf of ownerID without waiting.
	// Return a boolean indicating whether the lock is now held by ownerID.
	// Acquiring a lock already held by the same owner succeeds.
	AcquireLock(key string, ownerID []byte) (ok bool, err error)

	// ReleaseLock releases the lock for the given key if it is held by ownerID.
	// Return a boolean indicating whether the lock was released.
	ReleaseLock(key string, ownerID []byte) (ok bool, err error)

	// IsLocked reports whether any owner currently holds the lock.
	IsLocked(key string) (locked bool, err error)
}
