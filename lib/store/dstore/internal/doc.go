// Package internal provides the command and query structures of the dstore package
// together with the binary encoding of commands written to the RAFT log.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Commands (Set, SetIfUnset, Delete, DeleteIfEqual) modify the replicated map. They are
//     serialized, proposed to the RAFT cluster and applied on every replica.
//
//   - Queries (Get, Has, Len) are executed locally on the state machine and are never
//     serialized.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 4 bytes: Key length (uint32, big endian)
//	- N bytes: Key data
//	- M bytes: Value data (optional)
//
// Thread Safety:
//
//	The types in this package are not thread-safe. The RAFT protocol applies commands
//	sequentially on the state machine.
package internal
