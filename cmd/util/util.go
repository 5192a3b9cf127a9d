package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/cespare/xxhash/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DSHARD_<FLAG> environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dshard")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// ReplicaID hashes a replica name (e.g. node-1) to the numeric id used by raft
func ReplicaID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// ParseClusterMembers parses 'node-1=localhost:63001,node-2=localhost:63002'
func ParseClusterMembers(members string) (map[uint64]string, error) {
	result := make(map[uint64]string)
	for _, member := range strings.Split(members, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		result[ReplicaID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Node configuration
// --------------------------------------------------------------------------

// SetupNodeFlags adds the flags describing a dShard node to a command
func SetupNodeFlags(cmd *cobra.Command) {
	d := common.DefaultConfig()
	flags := cmd.PersistentFlags()

	key := "config"
	flags.String(key, "", WrapString("Optional yaml file with the node configuration (see 'dshard config'). Flags and environment variables override its values"))

	key = "namespace"
	flags.String(key, d.Namespace, WrapString("Namespace of the shard set, part of every shard name"))
	key = "shards"
	flags.Int(key, d.Shards, WrapString("Number of physical shards. The balanced scheme requires a power of two"))
	key = "scheme"
	flags.String(key, d.Scheme, WrapString("Bucket allocation scheme (balanced: 1024 buckets split equally, legacy: 1000 buckets, remainder to the last shard)"))
	key = "extractor"
	flags.String(key, d.Extractor, WrapString("Bucket id extractor (consistent: murmur3 hash of the key, random)"))
	key = "serializer"
	flags.String(key, d.Serializer, WrapString("Entity codec (json, gob)"))

	key = "blacklist-store"
	flags.String(key, string(d.BlacklistStore), WrapString("Where blacklist flags are kept (memory, lstore, dstore). dstore replicates the flags with raft"))
	key = "skip-native-healthcheck"
	flags.Bool(key, d.SkipNativeHealthcheck, WrapString("Report shards as healthy without pinging their backend"))
	key = "cache-size"
	flags.Int(key, d.Cache.Size, WrapString("Maximum number of cached blacklist flags"))
	key = "cache-expire-seconds"
	flags.Int(key, d.Cache.ExpireSeconds, WrapString("Seconds after which a cached blacklist flag is reloaded synchronously"))
	key = "cache-refresh-seconds"
	flags.Int(key, d.Cache.RefreshSeconds, WrapString("Seconds after which a cached blacklist flag is reloaded in the background"))

	key = "raft-shard-id"
	flags.Uint64(key, d.Raft.ShardID, WrapString("(dstore) Raft shard id of the blacklist store"))
	key = "rtt-millisecond"
	flags.Uint64(key, d.Raft.RTTMillisecond, WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))
	key = "snapshot-entries"
	flags.Uint64(key, d.Raft.SnapshotEntries, WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically"))
	key = "compaction-overhead"
	flags.Uint64(key, d.Raft.CompactionOverhead, WrapString("(dstore) CompactionOverhead defines the number of raft log entries kept after a snapshot"))
	key = "data-dir"
	flags.String(key, d.Raft.DataDir, WrapString("(dstore) DataDir is the directory used for storing the raft logs and snapshots"))
	key = "replica-id"
	flags.String(key, "", WrapString("(dstore) ReplicaID is the unique name of this NodeHost instance (e.g. 'node-1')"))
	key = "cluster-members"
	flags.String(key, "", WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))
	key = "timeout"
	flags.Int64(key, d.Raft.TimeoutSecond, WrapString("(dstore) Timeout of raft operations in seconds"))

	key = "endpoint"
	flags.String(key, d.Endpoint, WrapString("The address on which the admin API will listen"))
	key = "log-level"
	flags.String(key, d.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// GetNodeConfig builds the node configuration. The yaml file (if any) replaces the defaults,
// flags and environment variables that are set replace the file values.
func GetNodeConfig() (common.Config, error) {
	cfg := common.DefaultConfig()
	if path := viper.GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if cfg, err = common.ParseYAML(data); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	set := func(key string, apply func()) {
		if viper.IsSet(key) {
			apply()
		}
	}
	set("namespace", func() { cfg.Namespace = viper.GetString("namespace") })
	set("shards", func() { cfg.Shards = viper.GetInt("shards") })
	set("scheme", func() { cfg.Scheme = viper.GetString("scheme") })
	set("extractor", func() { cfg.Extractor = viper.GetString("extractor") })
	set("serializer", func() { cfg.Serializer = viper.GetString("serializer") })
	set("blacklist-store", func() { cfg.BlacklistStore = common.BlacklistStoreType(viper.GetString("blacklist-store")) })
	set("skip-native-healthcheck", func() { cfg.SkipNativeHealthcheck = viper.GetBool("skip-native-healthcheck") })
	set("cache-size", func() { cfg.Cache.Size = viper.GetInt("cache-size") })
	set("cache-expire-seconds", func() { cfg.Cache.ExpireSeconds = viper.GetInt("cache-expire-seconds") })
	set("cache-refresh-seconds", func() { cfg.Cache.RefreshSeconds = viper.GetInt("cache-refresh-seconds") })
	set("raft-shard-id", func() { cfg.Raft.ShardID = viper.GetUint64("raft-shard-id") })
	set("rtt-millisecond", func() { cfg.Raft.RTTMillisecond = viper.GetUint64("rtt-millisecond") })
	set("snapshot-entries", func() { cfg.Raft.SnapshotEntries = viper.GetUint64("snapshot-entries") })
	set("compaction-overhead", func() { cfg.Raft.CompactionOverhead = viper.GetUint64("compaction-overhead") })
	set("data-dir", func() { cfg.Raft.DataDir = viper.GetString("data-dir") })
	set("timeout", func() { cfg.Raft.TimeoutSecond = viper.GetInt64("timeout") })
	set("endpoint", func() { cfg.Endpoint = viper.GetString("endpoint") })
	set("log-level", func() { cfg.LogLevel = viper.GetString("log-level") })

	if id := viper.GetString("replica-id"); id != "" {
		cfg.Raft.ReplicaID = ReplicaID(id)
	}
	if members := viper.GetString("cluster-members"); members != "" {
		parsed, err := ParseClusterMembers(members)
		if err != nil {
			return cfg, err
		}
		cfg.Raft.ClusterMembers = parsed
	}

	return cfg, cfg.Validate()
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupClientFlags adds the admin client flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dShard admin API"))
	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))
	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	return common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
	}
}
