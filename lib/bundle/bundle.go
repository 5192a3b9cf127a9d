package bundle

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/db/engines/memdb"
	"github.com/ValentinKolb/dShard/lib/health"
	"github.com/ValentinKolb/dShard/lib/serializer"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/ValentinKolb/dShard/lib/store/dstore"
	"github.com/ValentinKolb/dShard/lib/store/lstore"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("bundle")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type options struct {
	namedUpdates map[string]db.NamedUpdate
	backends     []db.Backend
}

// Option configures a Bundle.
type Option func(*options)

// WithNamedUpdate registers a named update on every memdb shard.
func WithNamedUpdate(name string, update db.NamedUpdate) Option {
	return func(o *options) {
		if o.namedUpdates == nil {
			o.namedUpdates = make(map[string]db.NamedUpdate)
		}
		o.namedUpdates[name] = update
	}
}

// WithBackends uses the given backends instead of creating memdb shards.
// The number of backends must match the configured number of shards.
func WithBackends(backends ...db.Backend) Option {
	return func(o *options) { o.backends = backends }
}

// --------------------------------------------------------------------------
// Bundle
// --------------------------------------------------------------------------

// Bundle is a fully wired shard set.
type Bundle struct {
	cfg        common.Config
	backends   []db.Backend
	manager    *sharding.Manager
	calculator *sharding.Calculator
	codec      serializer.ISerializer
	health     *health.Manager
	nodeHost   *dragonboat.NodeHost
	metrics    *metrics.Set
}

// New validates the configuration and creates all components. On error everything
// created so far is released again.
func New(cfg common.Config, opts ...Option) (_ *Bundle, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	policy, err := sharding.PolicyByName(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	extractor, err := sharding.ExtractorByName(cfg.Extractor, policy.NumBuckets)
	if err != nil {
		return nil, err
	}
	codec, err := serializer.ByName(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	b := &Bundle{cfg: cfg, codec: codec, metrics: metrics.NewSet()}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	blacklist, err := b.createBlacklistingStore()
	if err != nil {
		return nil, err
	}

	b.manager, err = sharding.NewManager(policy, cfg.Shards, blacklist,
		sharding.WithCacheSize(cfg.Cache.Size),
		sharding.WithCacheExpiry(cfg.CacheExpiry()),
		sharding.WithRefreshAfter(cfg.CacheRefresh()),
	)
	if err != nil {
		return nil, err
	}
	b.calculator = sharding.NewCalculator(b.manager, extractor)

	if o.backends != nil {
		if len(o.backends) != cfg.Shards {
			return nil, fmt.Errorf("got %d backends for %d shards", len(o.backends), cfg.Shards)
		}
		b.backends = o.backends
	} else if err := b.createBackends(o.namedUpdates); err != nil {
		return nil, err
	}

	b.health = health.NewManager(cfg.Namespace, b.manager)
	b.health.RegisterBackends(b.backends)
	b.health.Manage(cfg.SkipNativeHealthcheck)

	b.registerMetrics()

	log.Infof("bundle %s ready: %s", cfg.Namespace, b.manager)
	return b, nil
}

// createBlacklistingStore returns the configured store. A nil store selects the in memory store of the manager.
func (b *Bundle) createBlacklistingStore() (sharding.BlacklistingStore, error) {
	switch b.cfg.BlacklistStore {
	case common.BlacklistStoreLocal:
		return sharding.NewStoreBlacklistingStore(lstore.NewLocalStore()), nil
	case common.BlacklistStoreRaft:
		r := b.cfg.Raft
		nh, err := dragonboat.NewNodeHost(r.ToNodeHostConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create node host: %w", err)
		}
		b.nodeHost = nh
		if err := nh.StartConcurrentReplica(r.ClusterMembers, false, dstore.CreateStateMachineFactory(), r.ToDragonboatConfig()); err != nil {
			return nil, fmt.Errorf("failed to start blacklist shard %d: %w", r.ShardID, err)
		}
		log.Infof("started raft replica %d of blacklist shard %d", r.ReplicaID, r.ShardID)
		timeout := time.Duration(r.TimeoutSecond) * time.Second
		return sharding.NewStoreBlacklistingStore(dstore.NewDistributedStore(nh, r.ShardID, timeout)), nil
	default:
		return nil, nil
	}
}

func (b *Bundle) createBackends(namedUpdates map[string]db.NamedUpdate) error {
	naming := sharding.NewNamingProvider(b.cfg.Namespace)
	for shardID := range b.cfg.Shards {
		backend, err := memdb.NewMemDB(&memdb.Options{
			Name:         naming.ShardName(shardID),
			NodeID:       int64(shardID),
			NamedUpdates: namedUpdates,
		})
		if err != nil {
			return fmt.Errorf("creating shard %d: %w", shardID, err)
		}
		b.backends = append(b.backends, backend)
	}
	log.Infof("created %d memdb shards", len(b.backends))
	return nil
}

func (b *Bundle) registerMetrics() {
	ns := b.cfg.Namespace
	b.metrics.NewGauge(fmt.Sprintf(`dshard_shards{namespace=%q}`, ns), func() float64 {
		return float64(b.manager.NumShards())
	})
	b.metrics.NewGauge(fmt.Sprintf(`dshard_blacklisted_shards{namespace=%q}`, ns), func() float64 {
		return float64(len(b.BlacklistedShards()))
	})
	b.metrics.NewGauge(fmt.Sprintf(`dshard_unhealthy_shards{namespace=%q}`, ns), func() float64 {
		unhealthy := 0
		for _, ok := range b.health.Status() {
			if !ok {
				unhealthy++
			}
		}
		return float64(unhealthy)
	})
	if b.nodeHost != nil {
		s := dstore.NewDistributedStore(b.nodeHost, b.cfg.Raft.ShardID, time.Second)
		b.metrics.NewGauge(fmt.Sprintf(`dshard_blacklist_store_entries{namespace=%q}`, ns), func() float64 {
			n, err := dstore.Len(s)
			if err != nil {
				return 0
			}
			return float64(n)
		})
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

func (b *Bundle) Config() common.Config {
	return b.cfg
}

// Backends returns the backends in shard order.
func (b *Bundle) Backends() []db.Backend {
	return b.backends
}

func (b *Bundle) Manager() *sharding.Manager {
	return b.manager
}

func (b *Bundle) Calculator() *sharding.Calculator {
	return b.calculator
}

func (b *Bundle) Health() *health.Manager {
	return b.health
}

func (b *Bundle) Codec() serializer.ISerializer {
	return b.codec
}

// Naming returns the naming provider of the bundle namespace.
func (b *Bundle) Naming() sharding.NamingProvider {
	return sharding.NewNamingProvider(b.cfg.Namespace)
}

// BlacklistedShards returns the ids of all blacklisted shards in ascending order.
// Shards whose flag cannot be read are not included.
func (b *Bundle) BlacklistedShards() []int {
	var ids []int
	for shardID := range b.manager.NumShards() {
		if blacklisted, err := b.manager.IsBlacklisted(shardID); err == nil && blacklisted {
			ids = append(ids, shardID)
		}
	}
	return ids
}

// WriteMetrics writes the bundle gauges and the counters of all backends exposing them.
func (b *Bundle) WriteMetrics(w io.Writer) {
	b.metrics.WritePrometheus(w)
	for _, backend := range b.backends {
		if m, ok := backend.(interface{ WriteMetrics(io.Writer) }); ok {
			m.WriteMetrics(w)
		}
	}
}

// Close closes all backends and stops the raft node host.
func (b *Bundle) Close() error {
	var errs []error
	for shardID, backend := range b.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing shard %d: %w", shardID, err))
		}
	}
	if b.nodeHost != nil {
		b.nodeHost.Close()
		b.nodeHost = nil
	}
	return errors.Join(errs...)
}
