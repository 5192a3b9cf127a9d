package lockmgr

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/dShard/lib/store"
)

type lockMgrImpl struct {
	store store.IStore
}

// NewLockManager creates a lock manager keeping all lock state in the given store.
func NewLockManager(store store.IStore) ILockManager {
	return &lockMgrImpl{
		store: store,
	}
}

func (lm *lockMgrImpl) AcquireLock(key string, ownerID []byte) (bool, error) {
	if len(ownerID) == 0 {
		return false, fmt.Errorf("lockmgr: empty owner id for %q", key)
	}

	// Try to acquire the lock (by setting the value only if it doesn't exist - atomic CAS operation)
	if err := lm.store.SetIfUnset(key, ownerID); err != nil {
		return false, err
	}

	// Check who holds the lock now
	value, found, err := lm.store.Get(key)
	if err != nil {
		return false, err
	}
	return found && bytes.Equal(value, ownerID), nil
}

func (lm *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	return lm.store.DeleteIfEqual(key, ownerID)
}

func (lm *lockMgrImpl) IsLocked(key string) (bool, error) {
	return lm.store.Has(key)
}
