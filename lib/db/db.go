package db

import "slices"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemDB Implementation = "memdb"
)

// Feature represents backend features as bit flags
type Feature uint64

const (
	FeatureTransactions  Feature = 1 << iota // Support for Begin/Commit/Rollback
	FeatureReadOnly                          // Support for read-only transactions
	FeatureLocking                           // Support for pessimistic no-wait row locks
	FeatureScroll                            // Support for forward-only cursors
	FeatureNamedUpdates                      // Support for named bulk updates
	FeatureKeyGeneration                     // Support for backend generated keys on insert
)

func (f Feature) String() string {
	switch f {
	case FeatureTransactions:
		return "Transactions"
	case FeatureReadOnly:
		return "ReadOnly"
	case FeatureLocking:
		return "Locking"
	case FeatureScroll:
		return "Scroll"
	case FeatureNamedUpdates:
		return "NamedUpdates"
	case FeatureKeyGeneration:
		return "KeyGeneration"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	Name              string         `json:"name"`
	DbType            Implementation `json:"db_type"`
	Tables            map[string]int `json:"tables"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// LockMode is the lock taken on a row read through Session.Get
type LockMode uint8

const (
	LockNone          LockMode = iota // plain read
	LockRead                          // shared read, never blocks writers of other sessions
	LockUpgradeNoWait                 // exclusive row lock, fails immediately with ErrLockContention if held elsewhere
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "None"
	case LockRead:
		return "Read"
	case LockUpgradeNoWait:
		return "UpgradeNoWait"
	default:
		return "Unknown"
	}
}

// Row is a single stored record. Key is unique per table.
type Row struct {
	Key   string
	Value []byte
}

// Criteria selects rows of one table.
// Keys restricts the result to the given keys (an IN clause), nil means no restriction.
// Match is an optional predicate evaluated on every candidate row.
type Criteria struct {
	Keys  []string
	Match func(row Row) (bool, error)
}

// All returns a Criteria matching every row.
func All() Criteria {
	return Criteria{}
}

// Matches reports whether the row satisfies the criteria.
func (c Criteria) Matches(row Row) (bool, error) {
	if c.Keys != nil && !slices.Contains(c.Keys, row.Key) {
		return false, nil
	}
	if c.Match == nil {
		return true, nil
	}
	return c.Match(row)
}

// TxOptions configures a transaction started with Session.Begin
type TxOptions struct {
	ReadOnly bool
}

// UpdateParams names a registered NamedUpdate and carries its parameters.
type UpdateParams struct {
	Name   string
	Params map[string]any
}

// NamedUpdate is a parameterized set based update registered on a backend.
// Criteria builds the row selection from the parameters, Apply rewrites a single matching row.
// Apply must not change the row key.
type NamedUpdate struct {
	Table    string
	Criteria func(params map[string]any) (Criteria, error)
	Apply    func(row Row, params map[string]any) (Row, error)
}

// --------------------------------------------------------------------------
// Backend Interfaces
// --------------------------------------------------------------------------

// Cursor is a forward-only iterator over the rows matched by Session.Scroll.
type Cursor interface {
	// Next advances the cursor. It returns false when the rows are exhausted or an error occurred.
	Next() bool
	// Row returns the current row.
	Row() Row
	// Err returns the first error hit while iterating.
	Err() error
	// Close releases the cursor. Close is idempotent.
	Close() error
}

// Session is a unit of work against a single shard.
// A session is used sequentially by one logical call and must never be shared between goroutines.
type Session interface {

	// --------------------------------------------------------------------------
	// Transaction Operations
	// --------------------------------------------------------------------------

	// ID returns the unique id of the session.
	ID() uint64

	// Begin starts a transaction. Only one transaction can be active per session.
	Begin(opts TxOptions) (err error)

	// Commit makes all writes of the active transaction visible and releases held locks.
	Commit() (err error)

	// Rollback discards all writes of the active transaction and releases held locks.
	Rollback() (err error)

	// Active reports whether a transaction is currently open.
	Active() (ok bool)

	// Close releases the session. An active transaction is rolled back.
	Close() (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get locates a row by its unique key using the given lock mode.
	// The boolean return value indicates whether the row was found.
	Get(table, key string, mode LockMode) (row Row, found bool, err error)

	// Select returns the matching rows in ascending key order, skipping offset rows and returning at most limit rows.
	// A limit <= 0 means no limit.
	Select(table string, criteria Criteria, offset, limit int) (rows []Row, err error)

	// Scroll opens a forward-only cursor over the matching rows in ascending key order.
	Scroll(table string, criteria Criteria) (cursor Cursor, err error)

	// Count returns the number of matching rows.
	Count(table string, criteria Criteria) (count int64, err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert stores a new row. If row.Key is empty the backend generates one.
	// The stored row (with its final key) is returned. A duplicate key fails with ErrConstraintViolation.
	Insert(table string, row Row) (stored Row, err error)

	// Update replaces an existing row. A missing row fails with ErrNotFound.
	Update(table string, row Row) (err error)

	// Delete removes a row. Deleting a missing row is not an error.
	Delete(table, key string) (err error)

	// ExecuteNamed runs a registered NamedUpdate and returns the number of affected rows.
	ExecuteNamed(params UpdateParams) (affected int, err error)
}

// Backend is the persistence handle of one shard.
type Backend interface {
	// Open creates a new session.
	Open() (session Session, err error)

	// Ping is the native health probe of the backend.
	Ping() (err error)

	// SupportsFeature checks if the backend supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the backend.
	GetInfo() (info DatabaseInfo)

	// Close closes the backend. Sessions opened afterward fail with ErrClosed.
	Close() (err error)
}
