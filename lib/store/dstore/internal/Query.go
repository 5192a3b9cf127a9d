package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet QueryType = iota // Retrieve an entry by key.
	QueryTHas                  // Check if a key exists.
	QueryTLen                  // Number of stored entries.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTHas:
		return "Has"
	case QueryTLen:
		return "Len"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for QueryTLen).
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types.
type QueryResult struct {
	Ok    bool
	Value []byte
}
