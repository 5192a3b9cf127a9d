/*
Package memdb implements db.Backend in memory.

Every table is a btree ordered by row key. A session buffers its writes in a write set
and reads through it (read your own writes, read committed for everything else). On
commit the write set is checked for unique key violations and applied atomically.

Row locks are no-wait: a write or a LockUpgradeNoWait read takes an exclusive lock in a
lockmgr.ILockManager and fails with db.ErrLockContention if another session holds it.
Locks are released on commit, rollback and close. By default the locks live in a local
store, Options.LockStore allows sharing them.

Named updates are registered per backend with RegisterNamedUpdate or Options.NamedUpdates.

Usage:

	backend, err := memdb.NewMemDB(memdb.DefaultOptions("shard-0"))
	s, err := backend.Open()
	defer s.Close()
	err = s.Begin(db.TxOptions{})
	_, err = s.Insert("customers", db.Row{Key: "customer-42", Value: data})
	err = s.Commit()
*/
package memdb
