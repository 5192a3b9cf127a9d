package bundle

import (
	"github.com/ValentinKolb/dShard/lib/dao"
	"github.com/ValentinKolb/dShard/lib/db"
)

// withCodec applies the bundle codec to schemas that do not set their own
func withCodec[T any](b *Bundle, schema dao.Schema[T]) dao.Schema[T] {
	if schema.Codec == nil {
		schema.Codec = b.codec
	}
	return schema
}

// NewLookupDao creates a LookupDao over the shards of the bundle.
func NewLookupDao[T any](b *Bundle, schema dao.Schema[T]) (*dao.LookupDao[T], error) {
	return dao.NewLookupDao(b.backends, b.calculator, withCodec(b, schema))
}

// NewRelationalDao creates a RelationalDao over the shards of the bundle.
func NewRelationalDao[T any](b *Bundle, schema dao.Schema[T]) (*dao.RelationalDao[T], error) {
	return dao.NewRelationalDao(b.backends, b.calculator, withCodec(b, schema))
}

// NewCacheableLookupDao creates a LookupDao with an LRU cache of cacheSize entities.
func NewCacheableLookupDao[T any](b *Bundle, schema dao.Schema[T], cacheSize int) (*dao.CacheableLookupDao[T], error) {
	d, err := NewLookupDao(b, schema)
	if err != nil {
		return nil, err
	}
	cache, err := dao.NewLRULookupCache[T](cacheSize)
	if err != nil {
		return nil, err
	}
	return dao.NewCacheableLookupDao(d, cache), nil
}

// NewCacheableRelationalDao creates a RelationalDao with an LRU cache of cacheSize entries.
func NewCacheableRelationalDao[T any](b *Bundle, schema dao.Schema[T], cacheSize int) (*dao.CacheableRelationalDao[T], error) {
	d, err := NewRelationalDao(b, schema)
	if err != nil {
		return nil, err
	}
	cache, err := dao.NewLRURelationalCache[T](cacheSize)
	if err != nil {
		return nil, err
	}
	return dao.NewCacheableRelationalDao(d, cache), nil
}

// NewWrapperDao creates one custom DAO per shard.
func NewWrapperDao[D any](b *Bundle, factory func(shardID int, backend db.Backend) (D, error)) (*dao.WrapperDao[D], error) {
	return dao.NewWrapperDao(b.backends, b.calculator, factory)
}
