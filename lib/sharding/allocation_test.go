package sharding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertPartition checks that the ranges cover every bucket exactly once in shard order
func assertPartition(t *testing.T, ranges []BucketRange, numBuckets int) {
	t.Helper()
	next := 0
	for i, r := range ranges {
		assert.Equal(t, i, r.Shard)
		assert.Equal(t, next, r.Start, "range %s does not start where the previous one ended", r)
		assert.GreaterOrEqual(t, r.End, r.Start)
		next = r.End + 1
	}
	assert.Equal(t, numBuckets, next)
}

func TestBalancedAllocation(t *testing.T) {
	t.Run("FourShards", func(t *testing.T) {
		alloc, err := Balanced.Allocate(4)
		require.NoError(t, err)
		assert.Equal(t, []BucketRange{
			{Start: 0, End: 255, Shard: 0},
			{Start: 256, End: 511, Shard: 1},
			{Start: 512, End: 767, Shard: 2},
			{Start: 768, End: 1023, Shard: 3},
		}, alloc.Ranges())
	})

	t.Run("EqualWidths", func(t *testing.T) {
		for _, n := range []int{2, 4, 8, 16, 32, 64, 128, 256, 512, 1024} {
			alloc, err := Balanced.Allocate(n)
			require.NoError(t, err, "shards=%d", n)
			assertPartition(t, alloc.Ranges(), 1024)
			for _, r := range alloc.Ranges() {
				assert.Equal(t, 1024/n, r.Width())
			}
		}
	})

	t.Run("LastBucketOnLastShard", func(t *testing.T) {
		for _, n := range []int{16, 32, 64} {
			alloc, err := Balanced.Allocate(n)
			require.NoError(t, err)
			shard, err := alloc.ShardFor(1023)
			require.NoError(t, err)
			assert.Equal(t, n-1, shard)
		}
	})

	t.Run("InvalidShardCounts", func(t *testing.T) {
		for _, n := range []int{-4, 0, 1, 3, 5, 9, 40, 2048} {
			_, err := Balanced.Allocate(n)
			require.Error(t, err, "shards=%d", n)
			assert.True(t, errors.Is(err, ErrConfiguration))
		}
	})
}

func TestLegacyAllocation(t *testing.T) {
	t.Run("ThreeShards", func(t *testing.T) {
		alloc, err := Legacy.Allocate(3)
		require.NoError(t, err)
		assert.Equal(t, []BucketRange{
			{Start: 0, End: 332, Shard: 0},
			{Start: 333, End: 665, Shard: 1},
			{Start: 666, End: 999, Shard: 2},
		}, alloc.Ranges())
	})

	t.Run("Coverage", func(t *testing.T) {
		for _, n := range []int{1, 2, 3, 7, 10, 64, 500, 999} {
			alloc, err := Legacy.Allocate(n)
			require.NoError(t, err, "shards=%d", n)
			assertPartition(t, alloc.Ranges(), 1000)
		}
	})

	t.Run("InvalidShardCounts", func(t *testing.T) {
		for _, n := range []int{0, -1, 1000} {
			_, err := Legacy.Allocate(n)
			assert.True(t, errors.Is(err, ErrConfiguration), "shards=%d", n)
		}
	})
}

func TestShardForOutOfRange(t *testing.T) {
	alloc, err := Balanced.Allocate(2)
	require.NoError(t, err)

	for _, b := range []int{-1, 1024, 5000} {
		_, err := alloc.ShardFor(b)
		assert.True(t, errors.Is(err, ErrInvalidBucket), "bucket=%d", b)
	}
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("Balanced")
	require.NoError(t, err)
	assert.Equal(t, 1024, p.NumBuckets)

	p, err = PolicyByName("legacy")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.NumBuckets)

	_, err = PolicyByName("ring")
	assert.True(t, errors.Is(err, ErrConfiguration))
}
