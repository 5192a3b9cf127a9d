// Package common holds the configuration and logging shared by the admin server,
// the admin client and the CLI.
//
// Key Components:
//
//   - Config: settings of a dShard node (shard count, allocation scheme, blacklist store,
//     cache, raft parameters for the replicated blacklist, admin endpoint, log level).
//     Provides a yaml form and converters to Dragonboat configs.
//
//   - ClientConfig: settings of the admin client.
//
//   - Logger: a Dragonboat logger.Factory writing through zerolog, so raft internals
//     and dShard packages log in one format.
package common
