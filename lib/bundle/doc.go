/*
Package bundle assembles a complete dShard node from a common.Config.

A Bundle owns one backend per shard, the shard manager with its blacklisting store,
the calculator resolving partition keys, the entity codec and the health manager.
DAOs are created through the generic factories of this package so that every DAO
of a node shares the same shards and routing.

Usage:

	b, err := bundle.New(common.DefaultConfig())
	if err != nil {
		return err
	}
	defer b.Close()

	orders, err := bundle.NewLookupDao(b, dao.Schema[Order]{
		Table: "orders",
		Key:   func(o *Order) string { return o.ID },
	})
*/
package bundle
