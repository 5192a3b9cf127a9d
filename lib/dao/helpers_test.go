package dao

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/db/engines/memdb"
	"github.com/ValentinKolb/dShard/lib/serializer"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID       string  `json:"id"`
	Customer string  `json:"customer"`
	Status   string  `json:"status"`
	Amount   int64   `json:"amount"`
	Items    []*item `json:"-"`
}

type item struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Name    string `json:"name"`
	Qty     int    `json:"qty"`
}

var (
	orderSchema = Schema[order]{
		Table: "orders",
		Key:   func(o *order) string { return o.ID },
	}
	itemSchema = Schema[item]{
		Table:  "items",
		Key:    func(i *item) string { return i.ID },
		SetKey: func(i *item, id string) { i.ID = id },
		Codec:  serializer.NewJSONSerializer(),
	}
)

// bucketOfSuffix routes "order-700" to bucket 700, so tests pick their shard:
// with two balanced shards buckets [0,511] belong to shard 0 and [512,1023] to shard 1.
func bucketOfSuffix(key string) int {
	n, err := strconv.Atoi(key[strings.LastIndexByte(key, '-')+1:])
	if err != nil {
		return 0
	}
	return n % sharding.Balanced.NumBuckets
}

type cluster struct {
	manager    *sharding.Manager
	calculator *sharding.Calculator
	memdbs     []*memdb.MemDB
	backends   []db.Backend
	orders     *LookupDao[order]
	items      *RelationalDao[item]
}

func newCluster(t testing.TB, numShards int) *cluster {
	t.Helper()
	manager, err := sharding.NewManager(sharding.Balanced, numShards, nil)
	require.NoError(t, err)

	c := &cluster{
		manager:    manager,
		calculator: sharding.NewCalculator(manager, sharding.ExtractorFunc(bucketOfSuffix)),
	}
	for i := 0; i < numShards; i++ {
		m, err := memdb.NewMemDB(&memdb.Options{Name: fmt.Sprintf("shard-%d", i), NodeID: int64(i)})
		require.NoError(t, err)
		m.RegisterNamedUpdate("set-qty", setQtyUpdate)
		c.memdbs = append(c.memdbs, m)
		c.backends = append(c.backends, m)
	}
	t.Cleanup(func() {
		for _, m := range c.memdbs {
			_ = m.Close()
		}
	})

	c.orders, err = NewLookupDao(c.backends, c.calculator, orderSchema)
	require.NoError(t, err)
	c.items, err = NewRelationalDao(c.backends, c.calculator, itemSchema)
	require.NoError(t, err)
	return c
}

func (c *cluster) selects() []uint64 {
	out := make([]uint64, len(c.memdbs))
	for i, m := range c.memdbs {
		out[i] = m.Selects()
	}
	return out
}

// setQtyUpdate sets qty on all items of params["order"]
var setQtyUpdate = db.NamedUpdate{
	Table: "items",
	Criteria: func(params map[string]any) (db.Criteria, error) {
		orderID, ok := params["order"].(string)
		if !ok {
			return db.Criteria{}, fmt.Errorf("missing order parameter")
		}
		return itemsOf(orderID).toDB(itemSchema), nil
	},
	Apply: func(row db.Row, params map[string]any) (db.Row, error) {
		var i item
		if err := itemSchema.Codec.Deserialize(row.Value, &i); err != nil {
			return row, err
		}
		i.Qty = params["qty"].(int)
		value, err := itemSchema.Codec.Serialize(&i)
		return db.Row{Key: row.Key, Value: value}, err
	},
}

func itemsOf(orderID string) Criteria[item] {
	return Where(func(i *item) bool { return i.OrderID == orderID })
}

func mustSaveOrder(t testing.TB, c *cluster, o *order) *order {
	t.Helper()
	saved, err := c.orders.Save(o)
	require.NoError(t, err)
	return saved
}

func ids(items []*item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func orderIDs(orders []*order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
