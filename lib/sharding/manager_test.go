package sharding

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/dShard/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Blacklist(int) error           { return errors.New("store down") }
func (failingStore) Unblacklist(int) error         { return errors.New("store down") }
func (failingStore) Blacklisted(int) (bool, error) { return false, errors.New("store down") }

func TestManagerRouting(t *testing.T) {
	m, err := NewManager(Balanced, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, 1024, m.NumBuckets())
	assert.Equal(t, 4, m.NumShards())

	tests := []struct {
		bucket int
		shard  int
	}{
		{0, 0}, {255, 0}, {256, 1}, {511, 1}, {512, 2}, {767, 2}, {768, 3}, {1023, 3},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.bucket), func(t *testing.T) {
			shard, err := m.ShardForBucket(tt.bucket)
			require.NoError(t, err)
			assert.Equal(t, tt.shard, shard)
			assert.True(t, m.IsMappedToValidShard(tt.bucket))
		})
	}

	_, err = m.ShardForBucket(1024)
	assert.True(t, errors.Is(err, ErrInvalidBucket))
	assert.False(t, m.IsMappedToValidShard(-1))
}

func TestNewManagerConfiguration(t *testing.T) {
	_, err := NewManager(Balanced, 5, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewManager(Legacy, 3, nil, WithCacheSize(0))
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewManager(Legacy, 3, nil, WithCacheExpiry(0))
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = NewManager(Legacy, 3, nil, WithRefreshAfter(-time.Second))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBlacklisting(t *testing.T) {
	stores := map[string]func() BlacklistingStore{
		"InMemory": func() BlacklistingStore { return NewInMemoryBlacklistingStore() },
		"Store":    func() BlacklistingStore { return NewStoreBlacklistingStore(lstore.NewLocalStore()) },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			m, err := NewManager(Balanced, 4, newStore())
			require.NoError(t, err)

			t.Run("Enforced", func(t *testing.T) {
				require.NoError(t, m.BlacklistShard(1))

				_, err := m.ShardForBucket(300)
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrShardBlacklisted))
				shard, ok := BlacklistedShard(err)
				assert.True(t, ok)
				assert.Equal(t, 1, shard)
				assert.False(t, m.IsMappedToValidShard(300))

				// other shards are unaffected
				shard, err = m.ShardForBucket(0)
				require.NoError(t, err)
				assert.Equal(t, 0, shard)
			})

			t.Run("Idempotent", func(t *testing.T) {
				require.NoError(t, m.BlacklistShard(1))
				require.NoError(t, m.BlacklistShard(1))
				blacklisted, err := m.IsBlacklisted(1)
				require.NoError(t, err)
				assert.True(t, blacklisted)

				require.NoError(t, m.UnblacklistShard(1))
				require.NoError(t, m.UnblacklistShard(1))
				blacklisted, err = m.IsBlacklisted(1)
				require.NoError(t, err)
				assert.False(t, blacklisted)

				shard, err := m.ShardForBucket(300)
				require.NoError(t, err)
				assert.Equal(t, 1, shard)
			})

			t.Run("OutOfRangeIgnored", func(t *testing.T) {
				require.NoError(t, m.BlacklistShard(4))
				require.NoError(t, m.BlacklistShard(-1))
				blacklisted, err := m.IsBlacklisted(4)
				require.NoError(t, err)
				assert.False(t, blacklisted)
			})
		})
	}
}

func TestBackgroundRefresh(t *testing.T) {
	store := NewInMemoryBlacklistingStore()
	m, err := NewManager(Balanced, 2, store, WithRefreshAfter(10*time.Millisecond))
	require.NoError(t, err)

	require.True(t, m.IsMappedToValidShard(600))

	// another process blacklists the shard, the local cache learns about it on refresh
	require.NoError(t, store.Blacklist(1))
	assert.Eventually(t, func() bool {
		return !m.IsMappedToValidShard(600)
	}, time.Second, 5*time.Millisecond)

	blacklisted, err := m.IsBlacklisted(1)
	require.NoError(t, err)
	assert.True(t, blacklisted)
}

func TestFailingStore(t *testing.T) {
	m, err := NewManager(Balanced, 2, failingStore{})
	require.NoError(t, err)

	assert.False(t, m.IsMappedToValidShard(0))
	_, err = m.ShardForBucket(0)
	assert.True(t, errors.Is(err, ErrStore))

	_, err = m.IsBlacklisted(0)
	assert.Error(t, err)
	assert.Error(t, m.BlacklistShard(0))
}

func TestCalculator(t *testing.T) {
	m, err := NewManager(Balanced, 4, nil)
	require.NoError(t, err)

	t.Run("Deterministic", func(t *testing.T) {
		calc := NewCalculator(m, NewConsistentHashExtractor(m.NumBuckets()))
		first, err := calc.ShardID("customer-42")
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			shard, err := calc.ShardID("customer-42")
			require.NoError(t, err)
			assert.Equal(t, first, shard)
		}
		assert.Equal(t, 4, calc.NumShards())
	})

	t.Run("CustomExtractor", func(t *testing.T) {
		calc := NewCalculator(m, ExtractorFunc(func(key string) int {
			n, _ := strconv.Atoi(key)
			return n
		}))
		shard, err := calc.ShardID("700")
		require.NoError(t, err)
		assert.Equal(t, 2, shard)

		_, err = calc.ShardID("4096")
		assert.True(t, errors.Is(err, ErrInvalidBucket))
	})
}
