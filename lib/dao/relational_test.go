package dao

import (
	"testing"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItems(t testing.TB, c *cluster, parentKey string, names ...string) []*item {
	t.Helper()
	var out []*item
	for _, name := range names {
		saved, err := c.items.Save(parentKey, &item{OrderID: parentKey, Name: name, Qty: 1})
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func TestRelationalRoundTrip(t *testing.T) {
	c := newCluster(t, 2)

	saved, err := c.items.Save("order-600", &item{OrderID: "order-600", Name: "book", Qty: 2})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID, "generated id is handed back")

	got, err := c.items.Get("order-600", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	// children live on the shard of their parent
	assert.Equal(t, map[string]int{"items": 1}, c.memdbs[1].GetInfo().Tables)
	assert.Empty(t, c.memdbs[0].GetInfo().Tables)

	updated, err := c.items.Update("order-600", saved.ID, func(i *item) *item { i.Qty = 5; return i })
	require.NoError(t, err)
	assert.True(t, updated)
	got, err = c.items.Get("order-600", saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Qty)

	updated, err = c.items.Update("order-600", "missing", func(i *item) *item { return i })
	require.NoError(t, err)
	assert.False(t, updated)

	exists, err := c.items.Exists("order-600", saved.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	// looked up on the wrong shard
	exists, err = c.items.Exists("order-1", saved.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRelationalSelectAndCount(t *testing.T) {
	c := newCluster(t, 2)
	seeded := seedItems(t, c, "order-1", "a", "b", "c", "d", "e")
	seedItems(t, c, "order-2", "x")

	page, err := c.items.Select("order-1", itemsOf("order-1"), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, ids(seeded[1:3]), ids(page))

	page, err = c.items.Select("order-1", itemsOf("order-1"), 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	n, err := c.items.Count("order-1", itemsOf("order-1"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	// order-2 shares the shard of order-1
	n, err = c.items.Count("order-1", Criteria[item]{})
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	byKeys, err := c.items.Select("order-1", ByKeys[item](seeded[4].ID, seeded[0].ID), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{seeded[0].ID, seeded[4].ID}, ids(byKeys))
}

func TestRelationalUpdateWhere(t *testing.T) {
	c := newCluster(t, 2)
	seeded := seedItems(t, c, "order-1", "a", "b")

	updated, err := c.items.UpdateWhere("order-1", itemsOf("order-1"), func(i *item) *item { i.Qty = 9; return i })
	require.NoError(t, err)
	assert.True(t, updated)

	first, err := c.items.Get("order-1", seeded[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 9, first.Qty)
	second, err := c.items.Get("order-1", seeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Qty)

	updated, err = c.items.UpdateWhere("order-1", itemsOf("order-404"), func(i *item) *item { return i })
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRelationalUpdateAll(t *testing.T) {
	c := newCluster(t, 2)
	seedItems(t, c, "order-1", "a", "b", "c", "d")
	double := func(i *item) *item { i.Qty *= 2; return i }

	updated, err := c.items.UpdateAll("order-1", 1, 2, itemsOf("order-1"), double)
	require.NoError(t, err)
	assert.True(t, updated)

	all, err := c.items.Select("order-1", itemsOf("order-1"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 1}, []int{all[0].Qty, all[1].Qty, all[2].Qty, all[3].Qty})

	updated, err = c.items.UpdateAll("order-1", 10, 2, itemsOf("order-1"), double)
	require.NoError(t, err)
	assert.False(t, updated, "empty page")

	updated, err = c.items.UpdateAll("order-1", 0, 0, itemsOf("order-1"), func(*item) *item { return nil })
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRelationalScatterGather(t *testing.T) {
	c := newCluster(t, 2)
	seedItems(t, c, "order-600", "a", "b", "c")
	seedItems(t, c, "order-1", "d", "e")
	all := Criteria[item]{}

	page, err := c.items.ScatterGather(all, 0, 2)
	require.NoError(t, err)
	names := make([]string, len(page))
	for i, it := range page {
		names[i] = it.Name
	}
	assert.Equal(t, []string{"d", "e", "a", "b"}, names)

	counts, err := c.items.CountScatterGather(all)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, counts)
}

func TestRelationalUpdateUsingQuery(t *testing.T) {
	c := newCluster(t, 2)
	seedItems(t, c, "order-600", "a", "b")
	seedItems(t, c, "order-601", "c")

	n, err := c.items.UpdateUsingQuery("order-600", db.UpdateParams{
		Name:   "set-qty",
		Params: map[string]any{"order": "order-600", "qty": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	others, err := c.items.Select("order-601", itemsOf("order-601"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, others[0].Qty)
}

func TestRelationalLockedContext(t *testing.T) {
	c := newCluster(t, 2)
	seedItems(t, c, "order-1", "a", "b")
	ofName := func(name string) Criteria[item] {
		return Where(func(i *item) bool { return i.Name == name })
	}

	root, err := c.items.LockAndGetExecutor("order-1", ofName("b")).
		Mutate(func(i *item) { i.Qty = 42 }).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, "b", root.Name)

	got, err := c.items.Select("order-1", ofName("b"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, got[0].Qty)

	_, err = c.items.LockAndGetExecutor("order-1", ofName("z")).Execute()
	assert.ErrorIs(t, err, ErrNotFound)

	plan := c.items.SaveAndGetExecutor("order-1", &item{OrderID: "order-1", Name: "bundle"})
	plan = SaveChild(plan, c.items, func(parent *item) (*item, error) {
		return &item{OrderID: "order-1", Name: "part-of-" + parent.ID}, nil
	})
	bundle, err := plan.Execute()
	require.NoError(t, err)

	parts, err := c.items.Select("order-1", ofName("part-of-"+bundle.ID), 0, 0)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
}

func TestRelationalGeneratedKeyNeedsSetKey(t *testing.T) {
	c := newCluster(t, 2)
	keyless, err := NewRelationalDao(c.backends, c.calculator, Schema[item]{Table: "items", Key: itemSchema.Key})
	require.NoError(t, err)

	_, err = keyless.SaveAndGetExecutor("order-1", &item{OrderID: "order-1", Name: "generated"}).Execute()
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = keyless.Save("order-1", &item{OrderID: "order-1", Name: "generated"})
	assert.ErrorIs(t, err, ErrConfiguration)

	n, err := keyless.Count("order-1", Criteria[item]{})
	require.NoError(t, err)
	assert.Zero(t, n)

	// explicit keys need no SetKey
	root, err := keyless.SaveAndGetExecutor("order-1", &item{ID: "item-x", OrderID: "order-1", Name: "explicit"}).
		Mutate(func(i *item) { i.Qty = 7 }).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, "item-x", root.ID)
	got, err := keyless.Get("order-1", "item-x")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Qty)
}
