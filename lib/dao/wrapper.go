package dao

import (
	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
)

// WrapperDao holds one custom DAO per shard and hands out the one owning a parent key.
// The custom DAO gets its shard's backend at construction and opens transactions itself,
// usually with Transactional:
//
//	type orderStats struct{ backend db.Backend }
//
//	func (o *orderStats) Total(customer string) (int64, error) {
//	    return dao.Transactional(o.backend, true, func(s db.Session) (int64, error) { ... })
//	}
//
//	stats, _ := dao.NewWrapperDao(backends, calculator, func(_ int, b db.Backend) (*orderStats, error) {
//	    return &orderStats{backend: b}, nil
//	})
//	d, err := stats.ForParent("customer-42")
type WrapperDao[D any] struct {
	daos   []D
	shards shardSet
}

// NewWrapperDao builds one DAO per shard with factory.
func NewWrapperDao[D any](backends []db.Backend, calculator *sharding.Calculator, factory func(shardID int, backend db.Backend) (D, error)) (*WrapperDao[D], error) {
	shards, err := newShardSet(backends, calculator)
	if err != nil {
		return nil, err
	}
	daos := make([]D, len(backends))
	for shardID, backend := range backends {
		if daos[shardID], err = factory(shardID, backend); err != nil {
			return nil, newError(CodeConfiguration, err, "creating dao for shard %d", shardID)
		}
	}
	return &WrapperDao[D]{daos: daos, shards: shards}, nil
}

// ForParent returns the DAO of the shard owning parentKey. The parent does not need to exist.
func (w *WrapperDao[D]) ForParent(parentKey string) (D, error) {
	shardID, _, err := w.shards.route(parentKey)
	if err != nil {
		var zero D
		return zero, err
	}
	return w.daos[shardID], nil
}

// NumShards returns the number of wrapped DAOs.
func (w *WrapperDao[D]) NumShards() int {
	return len(w.daos)
}
