// Package db defines the persistence backend contract consumed by the sharding layer.
// Every shard owns exactly one Backend, and every DAO call opens its own Session on it.
//
// The package focuses on:
//   - A backend agnostic unit-of-work abstraction (Session) with explicit transactions
//   - Unique key lookups with lock modes, including pessimistic no-wait row locks
//   - Criteria based paginated selects, row counts and forward-only cursors
//   - Named, parameterized bulk updates
//   - Feature discovery through capability flags
//
// Key Components:
//
//   - Backend: The per shard handle. It opens sessions, answers a native health
//     probe (Ping) and reports metadata (GetInfo).
//
//   - Session: A unit of work. Begin/Commit/Rollback drive the transaction, Get/Select/
//     Scroll/Count read, Insert/Update/Delete/ExecuteNamed write. Sessions are never shared
//     between concurrently executing calls.
//
//   - Row and Criteria: Rows are opaque byte values addressed by a unique string key.
//     Criteria restrict a query by a key set (IN clause) and an optional predicate.
//
//   - Lock Modes: LockUpgradeNoWait takes an exclusive row lock for the rest of the
//     transaction. A lock held by another session fails immediately with ErrLockContention,
//     there is no waiting and no retry.
//
//   - Errors: Sentinel errors (ErrConstraintViolation, ErrLockContention, ErrReadOnly, ...)
//     are wrapped by implementations and must be checked with errors.Is.
//
// Related Packages:
//
// The engines/memdb package (github.com/ValentinKolb/dShard/lib/db/engines/memdb) provides an
// in-memory, transactional implementation with ordered tables, per-session write sets and
// row locks managed through the lockmgr package.
//
// The testing package (github.com/ValentinKolb/dShard/lib/db/testing) provides a conformance
// suite that every Backend implementation should pass:
//   - RunBackendTests: Runs the standardized test suite to validate implementations
package db
