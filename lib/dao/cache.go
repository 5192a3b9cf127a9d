package dao

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dShard/lib/db"
	lru "github.com/hashicorp/golang-lru/v2"
)

// LookupCache caches top level entities by key.
type LookupCache[T any] interface {
	Put(key string, entity *T)
	Exists(key string) bool
	// Get returns the cached entity and whether it was cached, in one lookup.
	Get(key string) (*T, bool)
	Remove(key string)
}

// RelationalCache caches children by parent key and id, and select pages by parent key and window.
type RelationalCache[T any] interface {
	Put(parentKey, key string, entity *T)
	Exists(parentKey, key string) bool
	Get(parentKey, key string) (*T, bool)
	PutPage(parentKey string, offset, limit int, page []*T)
	Page(parentKey string, offset, limit int) ([]*T, bool)
	InvalidatePages(parentKey string)
}

// --------------------------------------------------------------------------
// LRU implementations
// --------------------------------------------------------------------------

type lruLookupCache[T any] struct {
	entries *lru.Cache[string, *T]
}

// NewLRULookupCache creates a LookupCache keeping the size most recently used entities.
func NewLRULookupCache[T any](size int) (LookupCache[T], error) {
	entries, err := lru.New[string, *T](size)
	if err != nil {
		return nil, newError(CodeConfiguration, err, "lookup cache")
	}
	return &lruLookupCache[T]{entries: entries}, nil
}

func (c *lruLookupCache[T]) Put(key string, entity *T) {
	c.entries.Add(key, entity)
}

func (c *lruLookupCache[T]) Exists(key string) bool {
	return c.entries.Contains(key)
}

func (c *lruLookupCache[T]) Get(key string) (*T, bool) {
	return c.entries.Get(key)
}

func (c *lruLookupCache[T]) Remove(key string) {
	c.entries.Remove(key)
}

type lruRelationalCache[T any] struct {
	entries *lru.Cache[string, *T]
	pages   *lru.Cache[string, []*T]
}

// NewLRURelationalCache creates a RelationalCache keeping the size most recently used
// children and the size most recently used pages.
func NewLRURelationalCache[T any](size int) (RelationalCache[T], error) {
	entries, err := lru.New[string, *T](size)
	if err != nil {
		return nil, newError(CodeConfiguration, err, "relational cache")
	}
	pages, err := lru.New[string, []*T](size)
	if err != nil {
		return nil, newError(CodeConfiguration, err, "relational page cache")
	}
	return &lruRelationalCache[T]{entries: entries, pages: pages}, nil
}

func entryKey(parentKey, key string) string {
	return parentKey + "\x00" + key
}

func pageKey(parentKey string, offset, limit int) string {
	return fmt.Sprintf("%s\x00%d:%d", parentKey, offset, limit)
}

func (c *lruRelationalCache[T]) Put(parentKey, key string, entity *T) {
	c.entries.Add(entryKey(parentKey, key), entity)
}

func (c *lruRelationalCache[T]) Exists(parentKey, key string) bool {
	return c.entries.Contains(entryKey(parentKey, key))
}

func (c *lruRelationalCache[T]) Get(parentKey, key string) (*T, bool) {
	return c.entries.Get(entryKey(parentKey, key))
}

func (c *lruRelationalCache[T]) PutPage(parentKey string, offset, limit int, page []*T) {
	c.pages.Add(pageKey(parentKey, offset, limit), page)
}

func (c *lruRelationalCache[T]) Page(parentKey string, offset, limit int) ([]*T, bool) {
	return c.pages.Get(pageKey(parentKey, offset, limit))
}

func (c *lruRelationalCache[T]) InvalidatePages(parentKey string) {
	prefix := parentKey + "\x00"
	for _, key := range c.pages.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.pages.Remove(key)
		}
	}
}

// --------------------------------------------------------------------------
// Caching DAOs
// --------------------------------------------------------------------------

// CacheableLookupDao is a read-through, write-through cache in front of a LookupDao.
// Cached entities are shared between callers and must not be modified.
type CacheableLookupDao[T any] struct {
	dao   *LookupDao[T]
	cache LookupCache[T]
}

// NewCacheableLookupDao wraps dao with cache.
func NewCacheableLookupDao[T any](dao *LookupDao[T], cache LookupCache[T]) *CacheableLookupDao[T] {
	return &CacheableLookupDao[T]{dao: dao, cache: cache}
}

// Unwrap returns the plain DAO for the operations that bypass the cache.
func (c *CacheableLookupDao[T]) Unwrap() *LookupDao[T] {
	return c.dao
}

// Get serves key from the cache, a miss is read from the shard and cached.
func (c *CacheableLookupDao[T]) Get(key string) (*T, error) {
	if entity, ok := c.cache.Get(key); ok {
		return entity, nil
	}
	entity, err := c.dao.Get(key)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		c.cache.Put(key, entity)
	}
	return entity, nil
}

// Exists checks the cache before reading from the shard.
func (c *CacheableLookupDao[T]) Exists(key string) (bool, error) {
	entity, err := c.Get(key)
	return entity != nil, err
}

// Save stores the entity and caches it.
func (c *CacheableLookupDao[T]) Save(entity *T) (*T, error) {
	saved, err := c.dao.Save(entity)
	if err != nil {
		return nil, err
	}
	c.cache.Put(c.dao.Schema().Key(saved), saved)
	return saved, nil
}

// Update updates the entity and refreshes the cached copy from the shard.
func (c *CacheableLookupDao[T]) Update(key string, updater func(*T) *T) (bool, error) {
	updated, err := c.dao.Update(key, updater)
	if err != nil || !updated {
		return updated, err
	}
	entity, err := c.dao.Get(key)
	if err != nil {
		c.cache.Remove(key)
		return true, fmt.Errorf("refreshing cached %s: %w", key, err)
	}
	if entity != nil {
		c.cache.Put(key, entity)
	}
	return true, nil
}

// Delete removes the entity from the shard and the cache.
func (c *CacheableLookupDao[T]) Delete(key string) (bool, error) {
	deleted, err := c.dao.Delete(key)
	c.cache.Remove(key)
	return deleted, err
}

// CacheableRelationalDao is a read-through, write-through cache in front of a RelationalDao.
// Select pages are cached per parent key and window, one criteria per parent is assumed.
type CacheableRelationalDao[T any] struct {
	dao   *RelationalDao[T]
	cache RelationalCache[T]
}

// NewCacheableRelationalDao wraps dao with cache.
func NewCacheableRelationalDao[T any](dao *RelationalDao[T], cache RelationalCache[T]) *CacheableRelationalDao[T] {
	return &CacheableRelationalDao[T]{dao: dao, cache: cache}
}

// Unwrap returns the plain DAO for the operations that bypass the cache.
func (c *CacheableRelationalDao[T]) Unwrap() *RelationalDao[T] {
	return c.dao
}

// Get serves the child from the cache, a miss is read from the shard and cached.
func (c *CacheableRelationalDao[T]) Get(parentKey, id string) (*T, error) {
	if entity, ok := c.cache.Get(parentKey, id); ok {
		return entity, nil
	}
	entity, err := c.dao.Get(parentKey, id)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		c.cache.Put(parentKey, id, entity)
	}
	return entity, nil
}

// Save stores the child, caches it and drops the cached pages of the parent.
func (c *CacheableRelationalDao[T]) Save(parentKey string, entity *T) (*T, error) {
	saved, err := c.dao.Save(parentKey, entity)
	if err != nil {
		return nil, err
	}
	c.cache.Put(parentKey, c.dao.Schema().Key(saved), saved)
	c.cache.InvalidatePages(parentKey)
	return saved, nil
}

// Select serves the page from the cache, a miss is read from the shard and cached.
func (c *CacheableRelationalDao[T]) Select(parentKey string, criteria Criteria[T], offset, limit int) ([]*T, error) {
	if page, ok := c.cache.Page(parentKey, offset, limit); ok {
		return page, nil
	}
	page, err := c.dao.Select(parentKey, criteria, offset, limit)
	if err != nil {
		return nil, err
	}
	c.cache.PutPage(parentKey, offset, limit, page)
	return page, nil
}

// RunInSession is passed through to the wrapped DAO.
func (c *CacheableRelationalDao[T]) RunInSession(parentKey string, fn func(db.Session) error) error {
	return c.dao.RunInSession(parentKey, fn)
}
