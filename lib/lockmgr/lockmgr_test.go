package lockmgr

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dShard/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	locks := NewLockManager(lstore.NewLocalStore())
	alice := OwnerIDFromUint64(1)
	bob := OwnerIDFromUint64(2)

	ok, err := locks.AcquireLock("orders/42", alice)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("ReEntrant", func(t *testing.T) {
		ok, err := locks.AcquireLock("orders/42", alice)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("NoWaitForOtherOwner", func(t *testing.T) {
		ok, err := locks.AcquireLock("orders/42", bob)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ReleaseByNonOwner", func(t *testing.T) {
		released, err := locks.ReleaseLock("orders/42", bob)
		require.NoError(t, err)
		assert.False(t, released)

		locked, err := locks.IsLocked("orders/42")
		require.NoError(t, err)
		assert.True(t, locked)
	})

	released, err := locks.ReleaseLock("orders/42", alice)
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = locks.AcquireLock("orders/42", bob)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmptyOwner(t *testing.T) {
	locks := NewLockManager(lstore.NewLocalStore())
	_, err := locks.AcquireLock("k", nil)
	assert.Error(t, err)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	locks := NewLockManager(lstore.NewLocalStore())

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			ok, err := locks.AcquireLock("hot-row", OwnerIDFromUint64(id))
			if err == nil && ok {
				winners.Add(1)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestNewOwnerIDIsRandom(t *testing.T) {
	a, err := NewOwnerID()
	require.NoError(t, err)
	b, err := NewOwnerID()
	require.NoError(t, err)
	assert.Len(t, a, ownerIDLength)
	assert.NotEqual(t, a, b)
}
