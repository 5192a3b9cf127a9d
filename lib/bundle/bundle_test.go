package bundle

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dShard/lib/dao"
	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/db/engines/memdb"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	ID      string
	Balance int64
}

var accountSchema = dao.Schema[account]{
	Table: "accounts",
	Key:   func(a *account) string { return a.ID },
}

func newBundle(t *testing.T, mutate func(*common.Config), opts ...Option) *Bundle {
	t.Helper()
	cfg := common.DefaultConfig()
	cfg.Namespace = "test"
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewDefaults(t *testing.T) {
	b := newBundle(t, nil)

	assert.Len(t, b.Backends(), 4)
	assert.Equal(t, 4, b.Manager().NumShards())
	assert.Equal(t, 1024, b.Manager().NumBuckets())
	assert.Equal(t, "json", b.Codec().Name())
	assert.Equal(t, "connectionpool-test-2", b.Backends()[2].GetInfo().Name)
	assert.Equal(t, []string{
		"connectionpool-test-0", "connectionpool-test-1",
		"connectionpool-test-2", "connectionpool-test-3",
	}, b.Health().Names())
	assert.True(t, b.Health().Healthy())
	assert.Empty(t, b.BlacklistedShards())
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*common.Config)
	}{
		{"balanced needs power of two", func(c *common.Config) { c.Shards = 3 }},
		{"unknown scheme", func(c *common.Config) { c.Scheme = "round-robin" }},
		{"unknown extractor", func(c *common.Config) { c.Extractor = "modulo" }},
		{"unknown serializer", func(c *common.Config) { c.Serializer = "xml" }},
		{"empty namespace", func(c *common.Config) { c.Namespace = "" }},
		{"unknown store", func(c *common.Config) { c.BlacklistStore = "redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := common.DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestLegacyScheme(t *testing.T) {
	b := newBundle(t, func(c *common.Config) {
		c.Scheme = "legacy"
		c.Shards = 3
	})
	assert.Equal(t, 1000, b.Manager().NumBuckets())
	assert.Len(t, b.Backends(), 3)
}

func TestWithBackends(t *testing.T) {
	backends := make([]db.Backend, 2)
	for i := range backends {
		m, err := memdb.NewMemDB(&memdb.Options{Name: fmt.Sprintf("external-%d", i), NodeID: int64(i)})
		require.NoError(t, err)
		backends[i] = m
	}

	b := newBundle(t, func(c *common.Config) { c.Shards = 2 }, WithBackends(backends...))
	assert.Same(t, backends[1], b.Backends()[1])

	cfg := common.DefaultConfig()
	_, err := New(cfg, WithBackends(backends...))
	assert.ErrorContains(t, err, "got 2 backends for 4 shards")
}

func TestLookupDaoRoundTrip(t *testing.T) {
	b := newBundle(t, func(c *common.Config) { c.Serializer = "gob" })

	accounts, err := NewLookupDao(b, accountSchema)
	require.NoError(t, err)
	assert.Equal(t, "gob", accounts.Schema().Codec.Name())

	_, err = accounts.Save(&account{ID: "customer-42", Balance: 100})
	require.NoError(t, err)

	got, err := accounts.Get("customer-42")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	shardID, err := accounts.ShardFor("customer-42")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Backends()[shardID].GetInfo().Tables["accounts"])
}

func TestBlacklistingRoutesAndHealth(t *testing.T) {
	b := newBundle(t, func(c *common.Config) { c.BlacklistStore = common.BlacklistStoreLocal })

	accounts, err := NewLookupDao(b, accountSchema)
	require.NoError(t, err)
	shardID, err := accounts.ShardFor("customer-42")
	require.NoError(t, err)

	require.NoError(t, b.Manager().BlacklistShard(shardID))
	assert.Equal(t, []int{shardID}, b.BlacklistedShards())

	_, err = accounts.Get("customer-42")
	assert.ErrorIs(t, err, sharding.ErrShardBlacklisted)

	// a blacklisted shard stays healthy even if its backend is gone
	require.NoError(t, b.Backends()[shardID].Close())
	assert.True(t, b.Health().Status()[shardID])

	require.NoError(t, b.Manager().UnblacklistShard(shardID))
	assert.False(t, b.Health().Status()[shardID])
	assert.False(t, b.Health().Healthy())
}

func TestNamedUpdates(t *testing.T) {
	reset := db.NamedUpdate{
		Table:    "accounts",
		Criteria: func(map[string]any) (db.Criteria, error) { return db.All(), nil },
		Apply: func(row db.Row, _ map[string]any) (db.Row, error) {
			return db.Row{Key: row.Key, Value: []byte(fmt.Sprintf(`{"ID":%q,"Balance":0}`, row.Key))}, nil
		},
	}
	b := newBundle(t, nil, WithNamedUpdate("reset", reset))

	accounts, err := NewLookupDao(b, accountSchema)
	require.NoError(t, err)
	_, err = accounts.Save(&account{ID: "a", Balance: 7})
	require.NoError(t, err)

	n, err := accounts.UpdateUsingQuery("a", db.UpdateParams{Name: "reset"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := accounts.Get("a")
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func TestCacheableAndWrapperFactories(t *testing.T) {
	b := newBundle(t, nil)

	cached, err := NewCacheableLookupDao(b, accountSchema, 16)
	require.NoError(t, err)
	_, err = cached.Save(&account{ID: "a", Balance: 1})
	require.NoError(t, err)
	ok, err := cached.Exists("a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewCacheableLookupDao(b, accountSchema, 0)
	assert.ErrorIs(t, err, dao.ErrConfiguration)

	rel, err := NewCacheableRelationalDao(b, accountSchema, 16)
	require.NoError(t, err)
	_, err = rel.Save("customer-1", &account{ID: "x", Balance: 3})
	require.NoError(t, err)

	wrapped, err := NewWrapperDao(b, func(shardID int, backend db.Backend) (string, error) {
		return backend.GetInfo().Name, nil
	})
	require.NoError(t, err)
	name, err := wrapped.ForParent("customer-1")
	require.NoError(t, err)

	shardID, err := b.Calculator().ShardID("customer-1")
	require.NoError(t, err)
	assert.Equal(t, b.Naming().ShardName(shardID), name)
}

func TestWriteMetrics(t *testing.T) {
	b := newBundle(t, nil)
	accounts, err := NewLookupDao(b, accountSchema)
	require.NoError(t, err)
	_, err = accounts.Save(&account{ID: "a"})
	require.NoError(t, err)

	var buf bytes.Buffer
	b.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `dshard_shards{namespace="test"} 4`)
	assert.Contains(t, out, `dshard_blacklisted_shards{namespace="test"} 0`)
	assert.Contains(t, out, `memdb_inserts_total{backend="connectionpool-test-0"}`)
}

func TestCloseIsRepeatable(t *testing.T) {
	cfg := common.DefaultConfig()
	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Backends()[0].Ping(), db.ErrClosed)
}
