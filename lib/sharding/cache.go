package sharding

import (
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize    = 10_000
	defaultCacheExpiry  = 5 * time.Minute
	defaultRefreshAfter = time.Minute
)

type cachedFlag struct {
	blacklisted bool
	loadedAt    time.Time
}

// blacklistCache caches the blacklisted flag per shard.
//
// Entries older than refreshAfter are still served, a background reload is started
// (at most one per shard). If the reload fails the old value stays. Entries older
// than expiry count as a miss and are loaded synchronously on the next access.
// Expiry is checked on access, the cache owns no goroutines.
type blacklistCache struct {
	entries      *lru.Cache[int, cachedFlag]
	loader       func(shardID int) (bool, error)
	expiry       time.Duration
	refreshAfter time.Duration
	now          func() time.Time

	loads singleflight.Group

	// generation per shard, bumped by forced refreshes so older loads cannot overwrite newer values
	mu   sync.Mutex
	gens map[int]uint64
}

func newBlacklistCache(size int, expiry, refreshAfter time.Duration, loader func(int) (bool, error)) (*blacklistCache, error) {
	entries, err := lru.New[int, cachedFlag](size)
	if err != nil {
		return nil, err
	}
	return &blacklistCache{
		entries:      entries,
		loader:       loader,
		expiry:       expiry,
		refreshAfter: refreshAfter,
		now:          time.Now,
		gens:         make(map[int]uint64),
	}, nil
}

func (c *blacklistCache) generation(shardID int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[shardID]
}

// load reads the flag from the store and caches it if no newer forced refresh happened in between.
func (c *blacklistCache) load(shardID int, gen uint64) (bool, error) {
	blacklisted, err := c.loader(shardID)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	if c.gens[shardID] == gen {
		c.entries.Add(shardID, cachedFlag{blacklisted: blacklisted, loadedAt: c.now()})
	}
	c.mu.Unlock()
	return blacklisted, nil
}

// Get returns the cached flag, loading it on a miss.
func (c *blacklistCache) Get(shardID int) (bool, error) {
	if entry, ok := c.entries.Get(shardID); ok {
		age := c.now().Sub(entry.loadedAt)
		if age < c.expiry {
			if age >= c.refreshAfter {
				c.refreshAsync(shardID)
			}
			return entry.blacklisted, nil
		}
	}

	gen := c.generation(shardID)
	v, err, _ := c.loads.Do(strconv.Itoa(shardID), func() (any, error) {
		return c.load(shardID, gen)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *blacklistCache) refreshAsync(shardID int) {
	gen := c.generation(shardID)
	ch := c.loads.DoChan(strconv.Itoa(shardID), func() (any, error) {
		return c.load(shardID, gen)
	})
	go func() {
		if res := <-ch; res.Err != nil {
			log.Warningf("refreshing blacklist flag of shard %d failed, keeping cached value: %v", shardID, res.Err)
		}
	}()
}

// Refresh synchronously reloads the flag of a shard, superseding any load in flight.
// On failure the entry is dropped so the next access reloads it.
func (c *blacklistCache) Refresh(shardID int) error {
	c.mu.Lock()
	c.gens[shardID]++
	gen := c.gens[shardID]
	c.mu.Unlock()

	if _, err := c.load(shardID, gen); err != nil {
		c.entries.Remove(shardID)
		return err
	}
	return nil
}

// Len returns the number of cached entries.
func (c *blacklistCache) Len() int {
	return c.entries.Len()
}
