// Package server implements the HTTP admin api of a dShard node.
//
// Routes:
//
//	POST /tasks/blacklist?shardId=N     take shard N out of rotation
//	POST /tasks/unblacklist?shardId=N   put shard N back into rotation
//	GET  /healthcheck                   per shard health, 200 if all shards are healthy, 500 otherwise
//	GET  /shards                        bucket ranges, blacklist flags and table sizes
//	GET  /metrics                       process and shard metrics in Prometheus text format
//
// A missing, empty or non integer shardId is answered with 400. Shard ids outside of the
// configured range are accepted and ignored.
//
// Usage Example:
//
//	b, err := bundle.New(cfg)
//	if err != nil {
//	  log.Fatalf("Bundle error: %v", err)
//	}
//	defer b.Close()
//
//	if err := server.NewAdminServer(cfg, b).Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Serve blocks until SIGINT or SIGTERM and then shuts the server down gracefully.
package server
