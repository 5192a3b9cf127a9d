// Package dao provides shard aware data access on top of the db backend contract.
//
// Entities are plain Go values described by a Schema: the table they live in, an explicit
// key accessor and the codec used to store them as row values. There is no reflection.
//
//   - LookupDao stores top level entities on the shard their key hashes to.
//   - RelationalDao stores children on the shard of their parent key.
//   - LockedContext is an immutable plan that locks (or inserts) a root entity and applies
//     changes to it and its children in one transaction on one shard.
//   - ReadOnlyContext reads a root and its children in one read-only transaction.
//   - CacheableLookupDao and CacheableRelationalDao put a cache in front of the plain DAOs.
//   - WrapperDao hands out shard-local custom DAOs.
//
// Every call routes its key through a sharding.Calculator, so a blacklisted shard fails
// the call with sharding.ErrShardBlacklisted before any backend is touched.
//
// Transactions:
//
// Each call opens its own session and transaction through a TransactionHandler and never
// shares it with another call. Execute runs a function and its result handler inside one
// transaction; with complete=false it joins the transaction of an enclosing plan instead.
//
// Usage Example:
//
//	orders, err := dao.NewLookupDao(backends, calculator, dao.Schema[Order]{
//	    Table: "orders",
//	    Key:   func(o *Order) string { return o.ID },
//	})
//	items, err := dao.NewRelationalDao(backends, calculator, dao.Schema[Item]{
//	    Table:  "items",
//	    Key:    func(i *Item) string { return i.ID },
//	    SetKey: func(i *Item, id string) { i.ID = id },
//	})
//
//	plan := orders.LockAndGetExecutor("order-1").
//	    Mutate(func(o *Order) { o.Status = "paid" })
//	plan = dao.SaveChild(plan, items, func(o *Order) (*Item, error) {
//	    return &Item{OrderID: o.ID, Name: "receipt"}, nil
//	})
//	order, err := plan.Execute()
//	if errors.Is(err, dao.ErrLockContention) {
//	    // another plan holds the order, nothing was written
//	}
package dao
