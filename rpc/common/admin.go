package common

// --------------------------------------------------------------------------
// Admin API messages (json encoded)
// --------------------------------------------------------------------------

const (
	TaskBlacklist   = "blacklist"
	TaskUnblacklist = "unblacklist"

	// ShardIDParam is the query parameter naming the shard of a task
	ShardIDParam = "shardId"
)

// TaskResponse is returned by POST /tasks/{task}
type TaskResponse struct {
	Task    string `json:"task"`
	ShardID int    `json:"shard_id"`
	// Blacklisted is the flag after the task ran
	Blacklisted bool `json:"blacklisted"`
}

// HealthResponse is returned by GET /healthcheck
type HealthResponse struct {
	Healthy bool `json:"healthy"`
	// Shards maps the check name to its result
	Shards map[string]ShardHealth `json:"shards"`
}

type ShardHealth struct {
	ShardID int    `json:"shard_id"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// ShardsResponse is returned by GET /shards
type ShardsResponse struct {
	Namespace  string      `json:"namespace"`
	Policy     string      `json:"policy"`
	NumBuckets int         `json:"num_buckets"`
	Shards     []ShardInfo `json:"shards"`
}

type ShardInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	FirstBucket int    `json:"first_bucket"`
	LastBucket  int    `json:"last_bucket"`
	Blacklisted bool   `json:"blacklisted"`
	// Rows is the number of committed rows per table
	Rows map[string]int `json:"rows,omitempty"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error string `json:"error"`
}
