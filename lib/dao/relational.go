package dao

import (
	"slices"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
)

// RelationalDao manages child entities routed by the key of their parent.
// All children of a parent live on the parent's shard, so they can be changed together
// with the parent inside one LockedContext.
type RelationalDao[T any] struct {
	table shardedTable[T]
}

// NewRelationalDao creates a DAO over one backend per shard. backends[i] is the backend of shard i.
func NewRelationalDao[T any](backends []db.Backend, calculator *sharding.Calculator, schema Schema[T]) (*RelationalDao[T], error) {
	table, err := newShardedTable(backends, calculator, schema)
	if err != nil {
		return nil, err
	}
	return &RelationalDao[T]{table: table}, nil
}

// Schema returns the normalized schema of the DAO.
func (d *RelationalDao[T]) Schema() Schema[T] {
	return d.table.schema
}

// Get returns the child with the given id on the shard of parentKey, nil if absent.
func (d *RelationalDao[T]) Get(parentKey, id string) (*T, error) {
	return onShard(d.table, parentKey, true, func(s db.Session) (*T, error) {
		return d.table.get(s, id, db.LockRead)
	})
}

// Exists reports whether the child with the given id exists.
func (d *RelationalDao[T]) Exists(parentKey, id string) (bool, error) {
	entity, err := d.Get(parentKey, id)
	return entity != nil, err
}

// Save inserts the child on the shard of parentKey and returns it with a generated id set.
func (d *RelationalDao[T]) Save(parentKey string, entity *T) (*T, error) {
	return onShard(d.table, parentKey, false, func(s db.Session) (*T, error) {
		return d.table.insert(s, entity)
	})
}

// SaveAll inserts all children in one transaction on the shard of parentKey.
func (d *RelationalDao[T]) SaveAll(parentKey string, entities []*T) error {
	_, err := onShard(d.table, parentKey, false, func(s db.Session) (struct{}, error) {
		for _, entity := range entities {
			if _, err := d.table.insert(s, entity); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Update replaces the child with the given id by updater's result.
// It returns false without writing if the child is absent or updater returns nil.
func (d *RelationalDao[T]) Update(parentKey, id string, updater func(*T) *T) (bool, error) {
	updated, err := onShard(d.table, parentKey, false, func(s db.Session) (bool, error) {
		return d.updateByID(s, id, updater)
	})
	return updated, wrap(err, "updating %s", id)
}

// UpdateWhere updates the first child matching criteria.
func (d *RelationalDao[T]) UpdateWhere(parentKey string, criteria Criteria[T], updater func(*T) *T) (bool, error) {
	updated, err := onShard(d.table, parentKey, false, func(s db.Session) (bool, error) {
		return d.updatePage(s, criteria, 0, 1, updater)
	})
	return updated, wrap(err, "updating %s", d.table.schema.Table)
}

// UpdateAll updates the page [start, start+numRows) of the matching children.
// It returns false if the page is empty or updater returns nil for one of them;
// children updated before that stay updated.
func (d *RelationalDao[T]) UpdateAll(parentKey string, start, numRows int, criteria Criteria[T], updater func(*T) *T) (bool, error) {
	updated, err := onShard(d.table, parentKey, false, func(s db.Session) (bool, error) {
		return d.updatePage(s, criteria, start, numRows, updater)
	})
	return updated, wrap(err, "updating %s", d.table.schema.Table)
}

// Select returns a page of the matching children, ordered by id. A limit <= 0 means no limit.
func (d *RelationalDao[T]) Select(parentKey string, criteria Criteria[T], offset, limit int) ([]*T, error) {
	return onShard(d.table, parentKey, true, func(s db.Session) ([]*T, error) {
		return d.table.list(s, criteria, offset, limit)
	})
}

// Count returns the number of matching children on the shard of parentKey.
func (d *RelationalDao[T]) Count(parentKey string, criteria Criteria[T]) (int64, error) {
	return onShard(d.table, parentKey, true, func(s db.Session) (int64, error) {
		return d.table.count(s, criteria)
	})
}

// ScatterGather selects a page of the matching children on every shard and concatenates
// the pages in shard order. The shards are queried one after another.
func (d *RelationalDao[T]) ScatterGather(criteria Criteria[T], offset, limit int) ([]*T, error) {
	perShard, err := scatter(d.table, func(s db.Session) ([]*T, error) {
		return d.table.list(s, criteria, offset, limit)
	})
	if err != nil {
		return nil, err
	}
	return slices.Concat(perShard...), nil
}

// CountScatterGather returns the number of matching children per shard, in shard order.
func (d *RelationalDao[T]) CountScatterGather(criteria Criteria[T]) ([]int64, error) {
	return scatter(d.table, func(s db.Session) (int64, error) {
		return d.table.count(s, criteria)
	})
}

// UpdateUsingQuery runs a named update on the shard of parentKey and returns the number of affected rows.
func (d *RelationalDao[T]) UpdateUsingQuery(parentKey string, params db.UpdateParams) (int, error) {
	return onShard(d.table, parentKey, false, func(s db.Session) (int, error) {
		return d.table.executeNamed(s, params)
	})
}

// RunInSession gives fn raw session access on the shard of parentKey, inside a read-only transaction.
func (d *RelationalDao[T]) RunInSession(parentKey string, fn func(db.Session) error) error {
	_, err := onShard(d.table, parentKey, true, func(s db.Session) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}

// --------------------------------------------------------------------------
// Shard-local operations (run on a session owned by the caller)
// --------------------------------------------------------------------------

func (d *RelationalDao[T]) updateByID(s db.Session, id string, updater func(*T) *T) (bool, error) {
	current, err := d.table.get(s, id, db.LockRead)
	if err != nil || current == nil {
		return false, err
	}
	next := updater(current)
	if next == nil {
		return false, nil
	}
	return true, d.table.update(s, id, next)
}

func (d *RelationalDao[T]) updatePage(s db.Session, criteria Criteria[T], start, numRows int, updater func(*T) *T) (bool, error) {
	page, err := d.table.list(s, criteria, start, numRows)
	if err != nil || len(page) == 0 {
		return false, err
	}
	for _, current := range page {
		next := updater(current)
		if next == nil {
			return false, nil
		}
		if err := d.table.update(s, d.table.schema.Key(current), next); err != nil {
			return false, err
		}
	}
	return true, nil
}

// The context-bound variants below join the transaction of an executing LockedContext.

func (d *RelationalDao[T]) saveIn(s db.Session, entity *T) (*T, error) {
	return Execute(NewSessionHandler(s), d.table.insert, entity, identity[*T], false)
}

func (d *RelationalDao[T]) updateIn(s db.Session, id string, updater func(*T) *T) (bool, error) {
	return Execute(NewSessionHandler(s), func(s db.Session, id string) (bool, error) {
		return d.updateByID(s, id, updater)
	}, id, identity[bool], false)
}

// scrollUpdateIn walks the matching children with a cursor, updating each, and continues
// while updateNext reports true. It returns false as soon as updater returns nil.
func (d *RelationalDao[T]) scrollUpdateIn(s db.Session, criteria Criteria[T], updater func(*T) *T, updateNext func() bool) (bool, error) {
	return Execute(NewSessionHandler(s), func(s db.Session, criteria Criteria[T]) (bool, error) {
		updated := true
		err := d.table.scroll(s, criteria, func(current *T) (bool, error) {
			next := updater(current)
			if next == nil {
				updated = false
				return false, nil
			}
			if err := d.table.update(s, d.table.schema.Key(current), next); err != nil {
				return false, err
			}
			return updateNext(), nil
		})
		return updated && err == nil, err
	}, criteria, identity[bool], false)
}

// createOrUpdateIn updates the first matching child, or saves a generated one if none matches.
func (d *RelationalDao[T]) createOrUpdateIn(s db.Session, criteria Criteria[T], updater func(*T) *T, generator func() *T) (bool, error) {
	return Execute(NewSessionHandler(s), func(s db.Session, criteria Criteria[T]) ([]*T, error) {
		return d.table.list(s, criteria, 0, 1)
	}, criteria, func(page []*T) (bool, error) {
		if len(page) == 0 {
			if generator == nil {
				return false, newError(CodeConfiguration, nil, "entity generator can't be nil")
			}
			created := generator()
			if created == nil {
				return false, newError(CodeConfiguration, nil, "generated entity can't be nil")
			}
			_, err := d.table.insert(s, created)
			return err == nil, err
		}
		next := updater(page[0])
		if next == nil {
			return false, nil
		}
		return true, d.table.update(s, d.table.schema.Key(page[0]), next)
	}, false)
}

func (d *RelationalDao[T]) updateUsingQueryIn(s db.Session, params db.UpdateParams) (int, error) {
	return Execute(NewSessionHandler(s), d.table.executeNamed, params, identity[int], false)
}

// --------------------------------------------------------------------------
// Executors
// --------------------------------------------------------------------------

// LockAndGetExecutor returns a plan that locks the first child matching criteria on the shard
// of parentKey and runs the queued operations in the same transaction.
func (d *RelationalDao[T]) LockAndGetExecutor(parentKey string, criteria Criteria[T]) *LockedContext[T] {
	shardID, backend, err := d.table.shards.route(parentKey)
	return &LockedContext[T]{
		mode:    ModeRead,
		shardID: shardID,
		backend: backend,
		err:     err,
		resolve: func(s db.Session) (*T, error) {
			page, err := d.table.list(s, criteria, 0, 1)
			if err != nil {
				return nil, err
			}
			if len(page) == 0 {
				return nil, newError(CodeNotFound, nil, "no %s matches the criteria for parent %s", d.table.schema.Table, parentKey)
			}
			key := d.table.schema.Key(page[0])
			root, err := d.table.get(s, key, db.LockUpgradeNoWait)
			if err != nil {
				return nil, err
			}
			if root == nil {
				return nil, newError(CodeNotFound, nil, "%s/%s was deleted concurrently", d.table.schema.Table, key)
			}
			return root, nil
		},
		persist: func(s db.Session, root *T) error {
			return d.table.update(s, d.table.schema.Key(root), root)
		},
	}
}

// SaveAndGetExecutor returns a plan that inserts entity on the shard of parentKey and runs
// the queued operations in the same transaction.
func (d *RelationalDao[T]) SaveAndGetExecutor(parentKey string, entity *T) *LockedContext[T] {
	shardID, backend, err := d.table.shards.route(parentKey)
	return &LockedContext[T]{
		mode:    ModeInsert,
		shardID: shardID,
		backend: backend,
		err:     err,
		resolve: func(s db.Session) (*T, error) {
			return d.table.insert(s, entity)
		},
		persist: func(s db.Session, root *T) error {
			return d.table.update(s, d.table.schema.Key(root), root)
		},
	}
}
