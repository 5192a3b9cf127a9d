package dao

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRoundTrip(t *testing.T) {
	c := newCluster(t, 2)

	saved := mustSaveOrder(t, c, &order{ID: "order-700", Customer: "customer-42", Status: "new", Amount: 1999})

	got, err := c.orders.Get("order-700")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	t.Run("Update", func(t *testing.T) {
		updated, err := c.orders.Update("order-700", func(o *order) *order {
			o.Status = "paid"
			return o
		})
		require.NoError(t, err)
		assert.True(t, updated)

		got, err := c.orders.Get("order-700")
		require.NoError(t, err)
		assert.Equal(t, "paid", got.Status)
	})

	t.Run("UpdateInLock", func(t *testing.T) {
		updated, err := c.orders.UpdateInLock("order-700", func(o *order) *order {
			o.Amount++
			return o
		})
		require.NoError(t, err)
		assert.True(t, updated)

		got, err := c.orders.Get("order-700")
		require.NoError(t, err)
		assert.EqualValues(t, 2000, got.Amount)
	})

	t.Run("UpdaterReturnsNil", func(t *testing.T) {
		updated, err := c.orders.Update("order-700", func(*order) *order { return nil })
		require.NoError(t, err)
		assert.False(t, updated)

		got, err := c.orders.Get("order-700")
		require.NoError(t, err)
		assert.Equal(t, "paid", got.Status)
	})

	t.Run("UpdateAbsentInserts", func(t *testing.T) {
		updated, err := c.orders.Update("order-3", func(o *order) *order {
			assert.Nil(t, o)
			return &order{ID: "order-3", Status: "created"}
		})
		require.NoError(t, err)
		assert.True(t, updated)

		exists, err := c.orders.Exists("order-3")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("UpdaterChangesKey", func(t *testing.T) {
		_, err := c.orders.Update("order-3", func(o *order) *order {
			o.ID = "order-4"
			return o
		})
		assert.Error(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		deleted, err := c.orders.Delete("order-700")
		require.NoError(t, err)
		assert.True(t, deleted)

		got, err := c.orders.Get("order-700")
		require.NoError(t, err)
		assert.Nil(t, got)

		deleted, err = c.orders.Delete("order-700")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestLookupSaveDuplicate(t *testing.T) {
	c := newCluster(t, 2)
	mustSaveOrder(t, c, &order{ID: "order-1"})

	_, err := c.orders.Save(&order{ID: "order-1"})
	assert.ErrorIs(t, err, db.ErrConstraintViolation)
}

func TestLookupRoutesByKey(t *testing.T) {
	c := newCluster(t, 2)
	mustSaveOrder(t, c, &order{ID: "order-1"})
	mustSaveOrder(t, c, &order{ID: "order-600"})

	assert.Equal(t, map[string]int{"orders": 1}, c.memdbs[0].GetInfo().Tables)
	assert.Equal(t, map[string]int{"orders": 1}, c.memdbs[1].GetInfo().Tables)

	shardID, err := c.orders.ShardFor("order-600")
	require.NoError(t, err)
	assert.Equal(t, 1, shardID)
}

func TestGetWith(t *testing.T) {
	c := newCluster(t, 2)
	mustSaveOrder(t, c, &order{ID: "order-5", Amount: 10})

	amount, err := GetWith(c.orders, "order-5", func(o *order) (int64, error) {
		if o == nil {
			return -1, nil
		}
		return o.Amount, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10, amount)

	amount, err = GetWith(c.orders, "order-6", func(o *order) (int64, error) {
		if o == nil {
			return -1, nil
		}
		return o.Amount, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, -1, amount)

	failure := errors.New("handler failed")
	_, err = GetWith(c.orders, "order-5", func(*order) (int64, error) { return 0, failure })
	assert.ErrorIs(t, err, failure)
}

func TestGetAllQueriesOncePerShard(t *testing.T) {
	c := newCluster(t, 2)
	for _, id := range []string{"order-1", "order-2", "order-600", "order-601"} {
		mustSaveOrder(t, c, &order{ID: id})
	}

	before := c.selects()
	got, err := c.orders.GetAll([]string{"order-600", "order-1", "order-2", "order-404"})
	require.NoError(t, err)
	after := c.selects()

	assert.Equal(t, []string{"order-1", "order-2", "order-600"}, orderIDs(got))
	assert.Equal(t, before[0]+1, after[0])
	assert.Equal(t, before[1]+1, after[1])
}

func TestLookupScatterGather(t *testing.T) {
	c := newCluster(t, 2)
	for _, o := range []*order{
		{ID: "order-600", Customer: "a"},
		{ID: "order-1", Customer: "a"},
		{ID: "order-2", Customer: "b"},
		{ID: "order-700", Customer: "a"},
	} {
		mustSaveOrder(t, c, o)
	}
	ofA := Where(func(o *order) bool { return o.Customer == "a" })

	all, err := c.orders.ScatterGather(ofA)
	require.NoError(t, err)

	// shard order concatenation of the single shard selects
	var expected []*order
	for _, backend := range c.backends {
		page, err := Transactional(backend, true, func(s db.Session) ([]*order, error) {
			return c.orders.table.list(s, ofA, 0, 0)
		})
		require.NoError(t, err)
		expected = append(expected, page...)
	}
	assert.Equal(t, expected, all)
	assert.Equal(t, []string{"order-1", "order-600", "order-700"}, orderIDs(all))

	counts, err := c.orders.Count(ofA)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, counts)
}

func TestLookupUpdateUsingQuery(t *testing.T) {
	c := newCluster(t, 2)
	require.NoError(t, c.items.SaveAll("order-1", []*item{
		{OrderID: "order-1", Name: "a"},
		{OrderID: "order-1", Name: "b"},
	}))

	// the named update is registered per backend and runs on the shard of the key
	n, err := c.orders.UpdateUsingQuery("order-1", db.UpdateParams{
		Name:   "set-qty",
		Params: map[string]any{"order": "order-1", "qty": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.orders.UpdateUsingQuery("order-1", db.UpdateParams{Name: "unknown"})
	assert.ErrorIs(t, err, db.ErrUnknownNamedUpdate)
}

func TestBlacklistedShard(t *testing.T) {
	c := newCluster(t, 2)
	mustSaveOrder(t, c, &order{ID: "order-600"})
	require.NoError(t, c.manager.BlacklistShard(1))

	_, err := c.orders.Get("order-600")
	assert.ErrorIs(t, err, sharding.ErrShardBlacklisted)
	shardID, ok := sharding.BlacklistedShard(err)
	assert.True(t, ok)
	assert.Equal(t, 1, shardID)

	_, err = c.orders.Save(&order{ID: "order-601"})
	assert.ErrorIs(t, err, sharding.ErrShardBlacklisted)

	_, err = c.orders.LockAndGetExecutor("order-600").Execute()
	assert.ErrorIs(t, err, sharding.ErrShardBlacklisted)

	// shard 0 keeps working
	mustSaveOrder(t, c, &order{ID: "order-1"})

	require.NoError(t, c.manager.UnblacklistShard(1))
	got, err := c.orders.Get("order-600")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRunInSession(t *testing.T) {
	c := newCluster(t, 2)
	mustSaveOrder(t, c, &order{ID: "order-600"})

	var rows []db.Row
	err := c.orders.RunInSession("order-601", func(s db.Session) error {
		var err error
		rows, err = s.Select("orders", db.All(), 0, 0)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "order-600", rows[0].Key)

	// the transaction is read-only
	err = c.orders.RunInSession("order-601", func(s db.Session) error {
		_, err := s.Insert("orders", db.Row{Key: "order-602"})
		return err
	})
	assert.ErrorIs(t, err, db.ErrReadOnly)
}

func TestNewLookupDaoConfiguration(t *testing.T) {
	c := newCluster(t, 2)

	tests := []struct {
		name     string
		backends []db.Backend
		calc     *sharding.Calculator
		schema   Schema[order]
	}{
		{"NoTable", c.backends, c.calculator, Schema[order]{Key: orderSchema.Key}},
		{"NoKey", c.backends, c.calculator, Schema[order]{Table: "orders"}},
		{"NoCalculator", c.backends, nil, orderSchema},
		{"TooFewBackends", c.backends[:1], c.calculator, orderSchema},
		{"NilBackend", []db.Backend{c.backends[0], nil}, c.calculator, orderSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLookupDao(tt.backends, tt.calc, tt.schema)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}
