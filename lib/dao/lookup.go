package dao

import (
	"slices"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
)

// LookupDao manages top level entities identified by a unique string key.
// Every entity lives on the shard its key hashes to and can be read back from there by key.
type LookupDao[T any] struct {
	table shardedTable[T]
}

// NewLookupDao creates a DAO over one backend per shard. backends[i] is the backend of shard i.
func NewLookupDao[T any](backends []db.Backend, calculator *sharding.Calculator, schema Schema[T]) (*LookupDao[T], error) {
	table, err := newShardedTable(backends, calculator, schema)
	if err != nil {
		return nil, err
	}
	return &LookupDao[T]{table: table}, nil
}

// Schema returns the normalized schema of the DAO.
func (d *LookupDao[T]) Schema() Schema[T] {
	return d.table.schema
}

// ShardFor returns the shard owning key.
func (d *LookupDao[T]) ShardFor(key string) (int, error) {
	shardID, _, err := d.table.shards.route(key)
	return shardID, err
}

// Get returns the entity stored under key, nil if there is none.
func (d *LookupDao[T]) Get(key string) (*T, error) {
	return GetWith(d, key, identity[*T])
}

// GetWith reads the entity stored under key and passes it (nil if absent) to handler
// while the read transaction is still open.
func GetWith[T, U any](d *LookupDao[T], key string, handler func(*T) (U, error)) (U, error) {
	var zero U
	_, backend, err := d.table.shards.route(key)
	if err != nil {
		return zero, err
	}
	return Execute(NewTransactionHandler(backend, true), func(s db.Session, key string) (*T, error) {
		return d.table.get(s, key, db.LockRead)
	}, key, handler, true)
}

// Exists reports whether an entity is stored under key.
func (d *LookupDao[T]) Exists(key string) (bool, error) {
	entity, err := d.Get(key)
	return entity != nil, err
}

// Save inserts the entity on the shard of its key and returns it with a generated key set.
// An entity with the same key fails with db.ErrConstraintViolation.
func (d *LookupDao[T]) Save(entity *T) (*T, error) {
	if entity == nil {
		return nil, newError(CodeConfiguration, nil, "save of nil entity")
	}
	key := d.table.schema.Key(entity)
	log.Debugf("saving %s with key %s", d.table.schema.Table, key)
	return onShard(d.table, key, false, func(s db.Session) (*T, error) {
		return d.table.insert(s, entity)
	})
}

// Update reads the entity under key and stores updater's result. The updater receives nil if
// the entity does not exist, a non nil result is then inserted. A nil result writes nothing and
// Update returns false.
func (d *LookupDao[T]) Update(key string, updater func(*T) *T) (bool, error) {
	return d.update(key, db.LockRead, updater)
}

// UpdateInLock works like Update but reads the entity under a no-wait exclusive lock.
// A lock held by another session fails with ErrLockContention.
func (d *LookupDao[T]) UpdateInLock(key string, updater func(*T) *T) (bool, error) {
	return d.update(key, db.LockUpgradeNoWait, updater)
}

func (d *LookupDao[T]) update(key string, mode db.LockMode, updater func(*T) *T) (bool, error) {
	updated, err := onShard(d.table, key, false, func(s db.Session) (bool, error) {
		current, err := d.table.get(s, key, mode)
		if err != nil {
			return false, err
		}
		next := updater(current)
		if next == nil {
			return false, nil
		}
		if current == nil {
			_, err = d.table.insert(s, next)
		} else {
			err = d.table.update(s, key, next)
		}
		return err == nil, err
	})
	return updated, wrap(err, "updating %s", key)
}

// UpdateUsingQuery runs a named update on the shard of key and returns the number of affected rows.
func (d *LookupDao[T]) UpdateUsingQuery(key string, params db.UpdateParams) (int, error) {
	return onShard(d.table, key, false, func(s db.Session) (int, error) {
		return d.table.executeNamed(s, params)
	})
}

// Delete locks and removes the entity under key. It returns false if there is none.
func (d *LookupDao[T]) Delete(key string) (bool, error) {
	return onShard(d.table, key, false, func(s db.Session) (bool, error) {
		return d.table.remove(s, key)
	})
}

// ScatterGather selects the matching entities on every shard and concatenates them in shard order.
// The shards are queried one after another; use it for reporting, not on hot paths.
func (d *LookupDao[T]) ScatterGather(criteria Criteria[T]) ([]*T, error) {
	perShard, err := scatter(d.table, func(s db.Session) ([]*T, error) {
		return d.table.list(s, criteria, 0, 0)
	})
	if err != nil {
		return nil, err
	}
	return slices.Concat(perShard...), nil
}

// Count returns the number of matching entities per shard, in shard order.
func (d *LookupDao[T]) Count(criteria Criteria[T]) ([]int64, error) {
	return scatter(d.table, func(s db.Session) (int64, error) {
		return d.table.count(s, criteria)
	})
}

// GetAll returns the entities stored under keys. Keys are grouped by shard first and every
// shard is queried once, in ascending shard order. Missing keys are skipped.
func (d *LookupDao[T]) GetAll(keys []string) ([]*T, error) {
	byShard := make(map[int][]string)
	for _, key := range keys {
		shardID, _, err := d.table.shards.route(key)
		if err != nil {
			return nil, err
		}
		byShard[shardID] = append(byShard[shardID], key)
	}

	shardIDs := make([]int, 0, len(byShard))
	for shardID := range byShard {
		shardIDs = append(shardIDs, shardID)
	}
	slices.Sort(shardIDs)

	var out []*T
	for _, shardID := range shardIDs {
		criteria := ByKeys[T](byShard[shardID]...)
		entities, err := Transactional(d.table.shards.backends[shardID], true, func(s db.Session) ([]*T, error) {
			return d.table.list(s, criteria, 0, 0)
		})
		if err != nil {
			return nil, wrap(err, "shard %d", shardID)
		}
		out = append(out, entities...)
	}
	return out, nil
}

// RunInSession gives fn raw session access on the shard of key, inside a read-only transaction.
func (d *LookupDao[T]) RunInSession(key string, fn func(db.Session) error) error {
	_, err := onShard(d.table, key, true, func(s db.Session) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}

// --------------------------------------------------------------------------
// Executors
// --------------------------------------------------------------------------

// LockAndGetExecutor returns a plan that locks the existing entity under key and runs the
// queued operations in the same transaction.
func (d *LookupDao[T]) LockAndGetExecutor(key string) *LockedContext[T] {
	shardID, backend, err := d.table.shards.route(key)
	return &LockedContext[T]{
		mode:    ModeRead,
		shardID: shardID,
		backend: backend,
		err:     err,
		resolve: func(s db.Session) (*T, error) {
			root, err := d.table.get(s, key, db.LockUpgradeNoWait)
			if err != nil {
				return nil, err
			}
			if root == nil {
				return nil, newError(CodeNotFound, nil, "entity doesn't exist for key %s", key)
			}
			return root, nil
		},
		persist: func(s db.Session, root *T) error {
			return d.table.update(s, key, root)
		},
	}
}

// SaveAndGetExecutor returns a plan that inserts entity and runs the queued operations
// in the same transaction.
func (d *LookupDao[T]) SaveAndGetExecutor(entity *T) *LockedContext[T] {
	ctx := &LockedContext[T]{mode: ModeInsert, shardID: -1}
	if entity == nil {
		ctx.err = newError(CodeConfiguration, nil, "save of nil entity")
		return ctx
	}
	ctx.shardID, ctx.backend, ctx.err = d.table.shards.route(d.table.schema.Key(entity))
	ctx.resolve = func(s db.Session) (*T, error) {
		return d.table.insert(s, entity)
	}
	ctx.persist = func(s db.Session, root *T) error {
		return d.table.update(s, d.table.schema.Key(root), root)
	}
	return ctx
}

// ReadOnlyExecutor returns a plan that reads the entity under key and attaches children
// in one read-only transaction.
func (d *LookupDao[T]) ReadOnlyExecutor(key string) *ReadOnlyContext[T] {
	shardID, backend, err := d.table.shards.route(key)
	return &ReadOnlyContext[T]{
		shardID: shardID,
		backend: backend,
		err:     err,
		resolve: func(s db.Session) (*T, error) {
			return d.table.get(s, key, db.LockRead)
		},
	}
}
