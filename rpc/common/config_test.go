package common

import (
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"EmptyNamespace", func(c *Config) { c.Namespace = "" }, "namespace"},
		{"NoShards", func(c *Config) { c.Shards = 0 }, "shards must be positive"},
		{"UnknownStore", func(c *Config) { c.BlacklistStore = "etcd" }, "unknown blacklist store"},
		{"ReplicaNotMember", func(c *Config) {
			c.BlacklistStore = BlacklistStoreRaft
			c.Raft.ReplicaID = 7
		}, "not a cluster member"},
		{"CacheSize", func(c *Config) { c.Cache.Size = 0 }, "cache size"},
		{"CacheExpiry", func(c *Config) { c.Cache.ExpireSeconds = 0 }, "cache expire seconds"},
		{"CacheRefresh", func(c *Config) { c.Cache.RefreshSeconds = -1 }, "cache refresh seconds"},
		{"LogLevel", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestYAML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shards = 8
	cfg.Scheme = "legacy"

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "scheme: legacy")

	parsed, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)

	partial, err := ParseYAML([]byte("shards: 16\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, partial.Shards)
	assert.Equal(t, "balanced", partial.Scheme)
}

func TestString(t *testing.T) {
	cfg := DefaultConfig()
	out := cfg.String()
	assert.Contains(t, out, "SHARDING")
	assert.Contains(t, out, "BLACKLIST")
	assert.NotContains(t, out, "RAFT PARAMETERS")

	cfg.BlacklistStore = BlacklistStoreRaft
	out = cfg.String()
	assert.Contains(t, out, "RAFT PARAMETERS")
	assert.True(t, strings.Contains(out, "Node 1: localhost:63001"))
}

func TestDragonboatConfig(t *testing.T) {
	cfg := DefaultConfig()
	rc := cfg.Raft.ToDragonboatConfig()
	assert.Equal(t, cfg.Raft.ShardID, rc.ShardID)
	assert.Equal(t, uint64(electionRTTFactor), rc.ElectionRTT)
	require.NoError(t, rc.Validate())

	nh := cfg.Raft.ToNodeHostConfig()
	assert.Equal(t, "localhost:63001", nh.RaftAddress)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WARNING, lvl)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}
