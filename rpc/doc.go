// Package rpc contains the network facing parts of a dShard node.
//
// The package is organized into several subpackages:
//
//   - common: Configuration of nodes and clients, the admin api messages and the
//     zerolog backed logger factory installed into dragonboat.
//
//   - server: The HTTP admin server exposing the blacklisting tasks, the health
//     report, the shard layout and the metrics of a bundle.
//
//   - client: A client for the admin api, used by the dshard shard commands.
package rpc
