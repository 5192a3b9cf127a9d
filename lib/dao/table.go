package dao

import (
	"fmt"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
)

// shardSet routes keys to the backend of their shard
type shardSet struct {
	backends   []db.Backend
	calculator *sharding.Calculator
}

func newShardSet(backends []db.Backend, calculator *sharding.Calculator) (shardSet, error) {
	if calculator == nil {
		return shardSet{}, newError(CodeConfiguration, nil, "no shard calculator")
	}
	if len(backends) != calculator.NumShards() {
		return shardSet{}, newError(CodeConfiguration, nil, "%d backends for %d shards", len(backends), calculator.NumShards())
	}
	for i, b := range backends {
		if b == nil {
			return shardSet{}, newError(CodeConfiguration, nil, "no backend for shard %d", i)
		}
	}
	return shardSet{backends: backends, calculator: calculator}, nil
}

func (s shardSet) route(key string) (int, db.Backend, error) {
	shardID, err := s.calculator.ShardID(key)
	if err != nil {
		return -1, nil, fmt.Errorf("routing %q: %w", key, err)
	}
	return shardID, s.backends[shardID], nil
}

// shardedTable holds the shard-local operations shared by LookupDao and RelationalDao.
// Every method works on a session owned by the caller.
type shardedTable[T any] struct {
	schema Schema[T]
	shards shardSet
}

func newShardedTable[T any](backends []db.Backend, calculator *sharding.Calculator, schema Schema[T]) (shardedTable[T], error) {
	schema, err := schema.normalize()
	if err != nil {
		return shardedTable[T]{}, err
	}
	shards, err := newShardSet(backends, calculator)
	if err != nil {
		return shardedTable[T]{}, err
	}
	return shardedTable[T]{schema: schema, shards: shards}, nil
}

func (t shardedTable[T]) get(s db.Session, key string, mode db.LockMode) (*T, error) {
	row, found, err := s.Get(t.schema.Table, key, mode)
	if err != nil {
		return nil, wrap(err, "get %s/%s", t.schema.Table, key)
	}
	if !found {
		return nil, nil
	}
	return t.schema.decode(row)
}

// insert stores a new entity and hands a generated key back to it
func (t shardedTable[T]) insert(s db.Session, entity *T) (*T, error) {
	row, err := t.schema.encode(entity)
	if err != nil {
		return nil, err
	}
	stored, err := s.Insert(t.schema.Table, row)
	if err != nil {
		return nil, wrap(err, "save %s/%s", t.schema.Table, row.Key)
	}
	if stored.Key != row.Key {
		if t.schema.SetKey == nil {
			return nil, newError(CodeConfiguration, nil, "schema %s has no SetKey to receive generated key %q", t.schema.Table, stored.Key)
		}
		t.schema.SetKey(entity, stored.Key)
	}
	return entity, nil
}

// update replaces the row stored under key. The entity must keep its key.
func (t shardedTable[T]) update(s db.Session, key string, entity *T) error {
	row, err := t.schema.encode(entity)
	if err != nil {
		return err
	}
	if row.Key != key {
		return fmt.Errorf("update %s/%s: entity key changed to %q", t.schema.Table, key, row.Key)
	}
	return wrap(s.Update(t.schema.Table, row), "update %s/%s", t.schema.Table, key)
}

func (t shardedTable[T]) list(s db.Session, criteria Criteria[T], offset, limit int) ([]*T, error) {
	rows, err := s.Select(t.schema.Table, criteria.toDB(t.schema), offset, limit)
	if err != nil {
		return nil, wrap(err, "select %s", t.schema.Table)
	}
	return t.schema.decodeAll(rows)
}

func (t shardedTable[T]) count(s db.Session, criteria Criteria[T]) (int64, error) {
	n, err := s.Count(t.schema.Table, criteria.toDB(t.schema))
	return n, wrap(err, "count %s", t.schema.Table)
}

// remove locks the row and deletes it, false if it does not exist
func (t shardedTable[T]) remove(s db.Session, key string) (bool, error) {
	entity, err := t.get(s, key, db.LockUpgradeNoWait)
	if err != nil || entity == nil {
		return false, err
	}
	if err := s.Delete(t.schema.Table, key); err != nil {
		return false, wrap(err, "delete %s/%s", t.schema.Table, key)
	}
	return true, nil
}

func (t shardedTable[T]) executeNamed(s db.Session, params db.UpdateParams) (int, error) {
	n, err := s.ExecuteNamed(params)
	return n, wrap(err, "named update %q", params.Name)
}

// scroll walks the matching entities with a cursor until visit returns false or an error
func (t shardedTable[T]) scroll(s db.Session, criteria Criteria[T], visit func(*T) (bool, error)) error {
	cursor, err := s.Scroll(t.schema.Table, criteria.toDB(t.schema))
	if err != nil {
		return wrap(err, "scroll %s", t.schema.Table)
	}
	defer cursor.Close()

	for cursor.Next() {
		entity, err := t.schema.decode(cursor.Row())
		if err != nil {
			return err
		}
		more, err := visit(entity)
		if err != nil || !more {
			return err
		}
	}
	return wrap(cursor.Err(), "scroll %s", t.schema.Table)
}

// --------------------------------------------------------------------------
// Transaction helpers
// --------------------------------------------------------------------------

// onShard runs fn in a transaction on the shard owning key
func onShard[T, R any](t shardedTable[T], key string, readOnly bool, fn func(db.Session) (R, error)) (R, error) {
	_, backend, err := t.shards.route(key)
	if err != nil {
		var zero R
		return zero, err
	}
	return Transactional(backend, readOnly, fn)
}

// scatter runs fn in a read-only transaction on every shard, serially and in shard order
func scatter[T, R any](t shardedTable[T], fn func(db.Session) (R, error)) ([]R, error) {
	out := make([]R, 0, len(t.shards.backends))
	for shardID, backend := range t.shards.backends {
		result, err := Transactional(backend, true, fn)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", shardID, err)
		}
		out = append(out, result)
	}
	return out, nil
}
