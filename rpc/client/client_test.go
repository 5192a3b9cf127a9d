package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/dShard/lib/bundle"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/ValentinKolb/dShard/rpc/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newAdmin(t *testing.T) (*AdminClient, *bundle.Bundle) {
	t.Helper()
	cfg := common.DefaultConfig()
	cfg.Namespace = "client"

	b, err := bundle.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(server.NewAdminServer(cfg, b).Handler())

	c, err := NewAdminClient(common.ClientConfig{
		Endpoint:      strings.TrimPrefix(srv.URL, "http://"),
		TimeoutSecond: 5,
		RetryCount:    2,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		srv.Close()
		_ = b.Close()
	})
	return c, b
}

func TestAdminClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("blacklist", func(t *testing.T) {
		c, b := newAdmin(t)

		resp, err := c.Blacklist(2)
		require.NoError(t, err)
		assert.Equal(t, common.TaskResponse{Task: "blacklist", ShardID: 2, Blacklisted: true}, resp)
		assert.Equal(t, []int{2}, b.BlacklistedShards())

		shards, err := c.Shards()
		require.NoError(t, err)
		require.Len(t, shards.Shards, 4)
		assert.True(t, shards.Shards[2].Blacklisted)
		assert.Equal(t, 512, shards.Shards[2].FirstBucket)

		resp, err = c.Unblacklist(2)
		require.NoError(t, err)
		assert.False(t, resp.Blacklisted)
	})

	t.Run("health", func(t *testing.T) {
		c, b := newAdmin(t)

		report, err := c.Health()
		require.NoError(t, err)
		assert.True(t, report.Healthy)

		require.NoError(t, b.Backends()[3].Close())
		report, err = c.Health()
		require.NoError(t, err, "an unhealthy node is reported, not returned as error")
		assert.False(t, report.Healthy)
		assert.False(t, report.Shards["connectionpool-client-3"].Healthy)
	})

	t.Run("metrics", func(t *testing.T) {
		c, _ := newAdmin(t)

		out, err := c.Metrics()
		require.NoError(t, err)
		assert.Contains(t, out, `dshard_shards{namespace="client"} 4`)
	})
}

func TestAdminClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid shard id provided: x"}`))
	}))
	defer srv.Close()

	c, err := NewAdminClient(common.ClientConfig{Endpoint: srv.URL, TimeoutSecond: 1})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Blacklist(1)
	assert.EqualError(t, err, "http error: 400 Bad Request: invalid shard id provided: x")

	_, err = c.Shards()
	assert.Error(t, err)

	_, err = NewAdminClient(common.ClientConfig{Endpoint: "http://[::1"})
	assert.Error(t, err)
}
