package sharding

import (
	"errors"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("sharding")

var (
	blacklistOps       = metrics.NewCounter(`dshard_blacklist_total{op="blacklist"}`)
	unblacklistOps     = metrics.NewCounter(`dshard_blacklist_total{op="unblacklist"}`)
	routingBlacklisted = metrics.NewCounter(`dshard_routing_errors_total{reason="blacklisted"}`)
	routingInvalid     = metrics.NewCounter(`dshard_routing_errors_total{reason="invalid_bucket"}`)
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type managerOptions struct {
	cacheSize    int
	cacheExpiry  time.Duration
	refreshAfter time.Duration
}

// Option configures a Manager.
type Option func(*managerOptions)

// WithCacheSize sets the maximum number of cached blacklist flags.
func WithCacheSize(size int) Option {
	return func(o *managerOptions) { o.cacheSize = size }
}

// WithCacheExpiry sets the age after which a cached flag is no longer served.
func WithCacheExpiry(d time.Duration) Option {
	return func(o *managerOptions) { o.cacheExpiry = d }
}

// WithRefreshAfter sets the age after which a cached flag is reloaded in the background.
func WithRefreshAfter(d time.Duration) Option {
	return func(o *managerOptions) { o.refreshAfter = d }
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Manager owns the bucket allocation and the blacklist state of all shards.
// It is safe for concurrent use.
type Manager struct {
	alloc *Allocation
	store BlacklistingStore
	cache *blacklistCache
}

// NewManager allocates the bucket space of the policy between numShards shards.
// A nil store selects an InMemoryBlacklistingStore.
func NewManager(policy AllocationPolicy, numShards int, store BlacklistingStore, opts ...Option) (*Manager, error) {
	alloc, err := policy.Allocate(numShards)
	if err != nil {
		return nil, err
	}

	o := managerOptions{
		cacheSize:    defaultCacheSize,
		cacheExpiry:  defaultCacheExpiry,
		refreshAfter: defaultRefreshAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize <= 0 {
		return nil, newError(CodeConfiguration, -1, nil, "cache size must be positive, got %d", o.cacheSize)
	}
	if o.cacheExpiry <= 0 {
		return nil, newError(CodeConfiguration, -1, nil, "cache expiry must be positive, got %s", o.cacheExpiry)
	}
	if o.refreshAfter <= 0 {
		return nil, newError(CodeConfiguration, -1, nil, "cache refresh interval must be positive, got %s", o.refreshAfter)
	}

	if store == nil {
		store = NewInMemoryBlacklistingStore()
	}

	cache, err := newBlacklistCache(o.cacheSize, o.cacheExpiry, o.refreshAfter, store.Blacklisted)
	if err != nil {
		return nil, newError(CodeConfiguration, -1, err, "creating blacklist cache")
	}
	m := &Manager{alloc: alloc, store: store, cache: cache}

	log.Infof("allocated %d buckets to %d shards using the %s policy", alloc.NumBuckets(), numShards, policy.Name)
	return m, nil
}

func (m *Manager) NumBuckets() int {
	return m.alloc.NumBuckets()
}

func (m *Manager) NumShards() int {
	return m.alloc.NumShards()
}

func (m *Manager) Policy() AllocationPolicy {
	return m.alloc.Policy()
}

// Ranges returns the bucket ranges in shard order.
func (m *Manager) Ranges() []BucketRange {
	return m.alloc.Ranges()
}

func (m *Manager) validShard(shardID int) bool {
	return shardID >= 0 && shardID < m.alloc.NumShards()
}

// ShardForBucket returns the shard owning the bucket.
// Fails with CodeInvalidBucket for buckets outside the bucket space and with
// CodeShardBlacklisted if the owner is blacklisted according to the cache.
func (m *Manager) ShardForBucket(bucket int) (int, error) {
	shardID, err := m.alloc.ShardFor(bucket)
	if err != nil {
		routingInvalid.Inc()
		return -1, err
	}

	blacklisted, err := m.cache.Get(shardID)
	if err != nil {
		return -1, newError(CodeStore, shardID, err, "reading blacklist flag")
	}
	if blacklisted {
		routingBlacklisted.Inc()
		return -1, newError(CodeShardBlacklisted, shardID, nil, "bucket %d is mapped to a blacklisted shard", bucket)
	}
	return shardID, nil
}

// IsMappedToValidShard reports whether ShardForBucket would succeed for the bucket.
// Failures of the blacklisting store count as not valid.
func (m *Manager) IsMappedToValidShard(bucket int) bool {
	_, err := m.ShardForBucket(bucket)
	if err != nil && errors.Is(err, ErrStore) {
		log.Warningf("could not validate bucket %d: %v", bucket, err)
	}
	return err == nil
}

// BlacklistShard marks the shard as blacklisted and refreshes the local cache.
// Ids outside of [0, NumShards) are ignored.
func (m *Manager) BlacklistShard(shardID int) error {
	if !m.validShard(shardID) {
		return nil
	}
	if err := m.store.Blacklist(shardID); err != nil {
		return newError(CodeStore, shardID, err, "blacklisting shard")
	}
	blacklistOps.Inc()
	if err := m.cache.Refresh(shardID); err != nil {
		return newError(CodeStore, shardID, err, "refreshing blacklist cache")
	}
	log.Infof("shard %d blacklisted", shardID)
	return nil
}

// UnblacklistShard clears the blacklist flag and refreshes the local cache.
// Ids outside of [0, NumShards) are ignored.
func (m *Manager) UnblacklistShard(shardID int) error {
	if !m.validShard(shardID) {
		return nil
	}
	if err := m.store.Unblacklist(shardID); err != nil {
		return newError(CodeStore, shardID, err, "unblacklisting shard")
	}
	unblacklistOps.Inc()
	if err := m.cache.Refresh(shardID); err != nil {
		return newError(CodeStore, shardID, err, "refreshing blacklist cache")
	}
	log.Infof("shard %d unblacklisted", shardID)
	return nil
}

// IsBlacklisted reads the flag directly from the store, bypassing the cache.
// Returns false for ids outside of [0, NumShards).
func (m *Manager) IsBlacklisted(shardID int) (bool, error) {
	if !m.validShard(shardID) {
		return false, nil
	}
	blacklisted, err := m.store.Blacklisted(shardID)
	if err != nil {
		return false, newError(CodeStore, shardID, err, "reading blacklist flag")
	}
	return blacklisted, nil
}

func (m *Manager) String() string {
	return fmt.Sprintf("Manager{policy=%s, buckets=%d, shards=%d}", m.alloc.Policy().Name, m.NumBuckets(), m.NumShards())
}
