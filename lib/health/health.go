package health

import (
	"maps"
	"slices"
	"sync"

	"github.com/ValentinKolb/dShard/lib/db"
	"github.com/ValentinKolb/dShard/lib/sharding"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("health")

// Check returns nil if the checked resource is healthy.
type Check func() error

// PingCheck checks a backend with Ping.
func PingCheck(backend db.Backend) Check {
	return backend.Ping
}

// --------------------------------------------------------------------------
// Blacklisting aware check
// --------------------------------------------------------------------------

// BlacklistingAwareCheck wraps the native check of one shard.
type BlacklistingAwareCheck struct {
	shardID    int
	base       Check
	manager    *sharding.Manager
	skipNative bool
}

func NewBlacklistingAwareCheck(shardID int, base Check, manager *sharding.Manager, skipNative bool) *BlacklistingAwareCheck {
	return &BlacklistingAwareCheck{
		shardID:    shardID,
		base:       base,
		manager:    manager,
		skipNative: skipNative,
	}
}

func (c *BlacklistingAwareCheck) ShardID() int {
	return c.shardID
}

// Check reports a blacklisted shard as healthy. Otherwise the native check decides,
// unless native checks are skipped. If the blacklist flag cannot be read the native check runs.
func (c *BlacklistingAwareCheck) Check() error {
	blacklisted, err := c.manager.IsBlacklisted(c.shardID)
	if err != nil {
		log.Warningf("could not read blacklist flag of shard %d: %v", c.shardID, err)
	}
	if blacklisted {
		log.Infof("returning healthy since shard %d is blacklisted", c.shardID)
		return nil
	}
	if c.skipNative {
		return nil
	}
	err = c.base()
	log.Debugf("health check of shard %d: healthy=%t err=%v", c.shardID, err == nil, err)
	return err
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

type shardCheck struct {
	shardID int
	check   Check
}

// Manager collects the native checks of one namespace and wraps them.
type Manager struct {
	naming  sharding.NamingProvider
	shards  *sharding.Manager
	mu      sync.RWMutex
	native  map[string]shardCheck
	wrapped map[string]shardCheck
}

// NewManager creates a health manager for namespace. If shards is nil the checks are never wrapped.
func NewManager(namespace string, shards *sharding.Manager) *Manager {
	return &Manager{
		naming:  sharding.NewNamingProvider(namespace),
		shards:  shards,
		native:  make(map[string]shardCheck),
		wrapped: make(map[string]shardCheck),
	}
}

// Register adds a native check. It returns false if the name does not belong to the namespace
// or has no shard id.
func (m *Manager) Register(name string, check Check) bool {
	if m.naming.NamespaceOf(name) != m.naming.Namespace() {
		return false
	}
	shardID := m.naming.ShardID(name)
	if shardID == -1 {
		return false
	}
	log.Infof("db health check added %s", name)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[name] = shardCheck{shardID: shardID, check: check}
	return true
}

// RegisterBackends registers a ping check per backend, the backend index is the shard id.
func (m *Manager) RegisterBackends(backends []db.Backend) {
	for shardID, backend := range backends {
		m.Register(m.naming.ShardName(shardID), PingCheck(backend))
	}
}

// Manage replaces the registered checks by blacklisting aware ones.
func (m *Manager) Manage(skipNative bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shards == nil {
		maps.Copy(m.wrapped, m.native)
		return
	}
	for name, sc := range m.native {
		hc := NewBlacklistingAwareCheck(sc.shardID, sc.check, m.shards, skipNative)
		m.wrapped[name] = shardCheck{shardID: sc.shardID, check: hc.Check}
	}
}

// Names returns the names of the managed checks in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.wrapped))
}

// Results runs all managed checks and returns the error per shard id (nil = healthy).
func (m *Manager) Results() map[int]error {
	m.mu.RLock()
	checks := slices.Collect(maps.Values(m.wrapped))
	m.mu.RUnlock()

	results := make(map[int]error, len(checks))
	for _, sc := range checks {
		results[sc.shardID] = sc.check()
	}
	return results
}

// Status runs all managed checks and returns whether each shard is healthy.
func (m *Manager) Status() map[int]bool {
	results := m.Results()
	status := make(map[int]bool, len(results))
	for shardID, err := range results {
		status[shardID] = err == nil
	}
	return status
}

// Healthy reports whether all managed checks pass.
func (m *Manager) Healthy() bool {
	for _, ok := range m.Status() {
		if !ok {
			return false
		}
	}
	return true
}
