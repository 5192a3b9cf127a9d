// Package client implements a client for the admin api of a dShard node.
//
// Usage Example:
//
//	c, _ := client.NewAdminClient(common.ClientConfig{
//	  Endpoint:      "localhost:8080",
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	})
//	defer c.Close()
//
//	// take shard 3 out of rotation
//	if _, err := c.Blacklist(3); err != nil {
//	  return err
//	}
//
//	report, _ := c.Health()
//	fmt.Println(report.Healthy)
//
// The client is safe for concurrent use.
package client
