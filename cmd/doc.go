// Package cmd implements the command-line interface of dShard. It provides
// commands for running a node, managing its shards and inspecting the routing.
//
// The package is organized into several subpackages:
//
//   - serve: Start a node (bundle plus admin API)
//   - shard: Blacklist, unblacklist and inspect shards of a running node
//   - locate: Resolve partition keys to buckets and shards offline
//   - config: Print the effective node configuration as yaml
//   - perf: In-process benchmark of the DAO layer
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dshard -help for a list of all commands.
package cmd
