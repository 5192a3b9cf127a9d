package common

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
	"gopkg.in/yaml.v3"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (replicated blacklist store)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the raft settings to a Dragonboat Config
func (c *RaftConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *RaftConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Sharding configuration struct
// --------------------------------------------------------------------------

type BlacklistStoreType string

const (
	BlacklistStoreMemory BlacklistStoreType = "memory" // process local map
	BlacklistStoreLocal  BlacklistStoreType = "lstore" // local store.IStore
	BlacklistStoreRaft   BlacklistStoreType = "dstore" // raft replicated store.IStore
)

// CacheConfig configures the blacklist cache of the shard manager
type CacheConfig struct {
	Size           int `yaml:"size"`
	ExpireSeconds  int `yaml:"expire_seconds"`
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// RaftConfig holds the parameters of the raft shard replicating the blacklist (dstore only)
type RaftConfig struct {
	ShardID            uint64            `yaml:"shard_id"`
	RTTMillisecond     uint64            `yaml:"rtt_ms"`
	SnapshotEntries    uint64            `yaml:"snapshot_entries"`
	CompactionOverhead uint64            `yaml:"compaction_overhead"`
	DataDir            string            `yaml:"data_dir"`
	ReplicaID          uint64            `yaml:"replica_id"`
	ClusterMembers     map[uint64]string `yaml:"cluster_members"`
	TimeoutSecond      int64             `yaml:"timeout_seconds"`
}

// Config holds all configuration parameters of a dShard node
type Config struct {
	// Namespace names the shard set, it is part of every health check name
	Namespace string `yaml:"namespace"`
	// Shards is the number of physical shards
	Shards int `yaml:"shards"`
	// Scheme is the bucket allocation policy (balanced or legacy)
	Scheme string `yaml:"scheme"`
	// Extractor selects the bucket id extractor (consistent or random)
	Extractor string `yaml:"extractor"`
	// Serializer is the entity codec (json or gob)
	Serializer string `yaml:"serializer"`

	BlacklistStore        BlacklistStoreType `yaml:"blacklist_store"`
	SkipNativeHealthcheck bool               `yaml:"skip_native_healthcheck"`
	Cache                 CacheConfig        `yaml:"cache"`
	Raft                  RaftConfig         `yaml:"raft"`

	// HTTP admin api settings
	Endpoint string `yaml:"endpoint"`

	// Logging configuration
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns a single node configuration with four balanced shards
func DefaultConfig() Config {
	return Config{
		Namespace:      "default",
		Shards:         4,
		Scheme:         "balanced",
		Extractor:      "consistent",
		Serializer:     "json",
		BlacklistStore: BlacklistStoreMemory,
		Cache: CacheConfig{
			Size:           10_000,
			ExpireSeconds:  300,
			RefreshSeconds: 60,
		},
		Raft: RaftConfig{
			ShardID:            100,
			RTTMillisecond:     100,
			SnapshotEntries:    10_000,
			CompactionOverhead: 5_000,
			DataDir:            "/tmp/dshard",
			ReplicaID:          1,
			ClusterMembers:     map[uint64]string{1: "localhost:63001"},
			TimeoutSecond:      5,
		},
		Endpoint: "localhost:8080",
		LogLevel: "info",
	}
}

// CacheExpiry returns the cache expiry as duration
func (c *Config) CacheExpiry() time.Duration {
	return time.Duration(c.Cache.ExpireSeconds) * time.Second
}

// CacheRefresh returns the cache refresh interval as duration
func (c *Config) CacheRefresh() time.Duration {
	return time.Duration(c.Cache.RefreshSeconds) * time.Second
}

// Validate checks the settings that do not depend on the sharding package
func (c *Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace must not be empty"))
	}
	if c.Shards < 1 {
		errs = append(errs, fmt.Errorf("shards must be positive, got %d", c.Shards))
	}
	switch c.BlacklistStore {
	case BlacklistStoreMemory, BlacklistStoreLocal:
	case BlacklistStoreRaft:
		if _, ok := c.Raft.ClusterMembers[c.Raft.ReplicaID]; !ok {
			errs = append(errs, fmt.Errorf("replica %d is not a cluster member", c.Raft.ReplicaID))
		}
		if c.Raft.TimeoutSecond <= 0 {
			errs = append(errs, errors.New("raft timeout must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blacklist store %q", c.BlacklistStore))
	}
	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.Cache.Size))
	}
	if c.Cache.ExpireSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache expire seconds must be positive, got %d", c.Cache.ExpireSeconds))
	}
	if c.Cache.RefreshSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache refresh seconds must be positive, got %d", c.Cache.RefreshSeconds))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// YAML returns the configuration as yaml document
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseYAML reads a configuration from yaml. Missing fields keep their default value.
func ParseYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Sharding")
	addField("Namespace", c.Namespace)
	addField("Shards", strconv.Itoa(c.Shards))
	addField("Scheme", c.Scheme)
	addField("Extractor", c.Extractor)
	addField("Serializer", c.Serializer)

	addSection("Blacklist")
	addField("Store", string(c.BlacklistStore))
	addField("Cache Size", strconv.Itoa(c.Cache.Size))
	addField("Cache Expiry", c.CacheExpiry().String())
	addField("Cache Refresh", c.CacheRefresh().String())
	addField("Skip Native Check", strconv.FormatBool(c.SkipNativeHealthcheck))

	addSection("Admin Server")
	addField("Endpoint", c.Endpoint)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.BlacklistStore == BlacklistStoreRaft {
		r := c.Raft

		addSection("Node Identity")
		addField("RAFT Address", r.ClusterMembers[r.ReplicaID])
		addField("Node ID", strconv.FormatUint(r.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(r.ShardID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", r.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", r.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", r.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", r.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", r.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", r.TimeoutSecond))
		addField("Data Directory", r.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range r.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, r.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Admin client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	return sb.String()
}
