package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dShard/lib/serializer"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("admin")

// AdminClient talks to the admin api of a dShard node.
type AdminClient struct {
	base       *url.URL
	client     *http.Client
	codec      serializer.ISerializer
	retryCount int
}

// NewAdminClient creates a client for config.Endpoint. An endpoint without scheme uses http.
func NewAdminClient(config common.ClientConfig) (*AdminClient, error) {
	endpoint := config.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}

	retries := config.RetryCount
	if retries < 1 {
		retries = 1
	}

	return &AdminClient{
		base: base,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSecond) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     time.Duration(config.TimeoutSecond) * time.Second,
			},
		},
		codec:      serializer.NewJSONSerializer(),
		retryCount: retries,
	}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// do sends the request (with retries on transport errors) and returns status and body
func (c *AdminClient) do(method, path string, query url.Values) (int, []byte, error) {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	var (
		resp *http.Response
		err  error
	)
	for i := 0; i < c.retryCount; i++ {
		var req *http.Request
		req, err = http.NewRequest(method, u.String(), nil)
		if err != nil {
			return 0, nil, err
		}
		resp, err = c.client.Do(req)
		if err == nil {
			break
		}
		log.Debugf("%s %s failed (%d/%d): %v", method, u, i+1, c.retryCount, err)
	}
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// errorFrom converts a non 200 response into an error
func (c *AdminClient) errorFrom(status int, body []byte) error {
	var e common.ErrorResponse
	if err := c.codec.Deserialize(body, &e); err != nil || e.Error == "" {
		return fmt.Errorf("http error: %d %s", status, http.StatusText(status))
	}
	return fmt.Errorf("http error: %d %s: %s", status, http.StatusText(status), e.Error)
}

func (c *AdminClient) task(task string, shardID int) (common.TaskResponse, error) {
	var resp common.TaskResponse
	status, body, err := c.do(http.MethodPost, "/tasks/"+task, url.Values{common.ShardIDParam: {strconv.Itoa(shardID)}})
	if err != nil {
		return resp, err
	}
	if status != http.StatusOK {
		return resp, c.errorFrom(status, body)
	}
	err = c.codec.Deserialize(body, &resp)
	return resp, err
}

// --------------------------------------------------------------------------
// Admin api
// --------------------------------------------------------------------------

// Blacklist takes the shard out of rotation on the node.
func (c *AdminClient) Blacklist(shardID int) (common.TaskResponse, error) {
	return c.task(common.TaskBlacklist, shardID)
}

// Unblacklist puts the shard back into rotation.
func (c *AdminClient) Unblacklist(shardID int) (common.TaskResponse, error) {
	return c.task(common.TaskUnblacklist, shardID)
}

// Health returns the health report. An unhealthy node is not an error, check HealthResponse.Healthy.
func (c *AdminClient) Health() (common.HealthResponse, error) {
	var resp common.HealthResponse
	status, body, err := c.do(http.MethodGet, "/healthcheck", nil)
	if err != nil {
		return resp, err
	}
	if status != http.StatusOK && status != http.StatusInternalServerError {
		return resp, c.errorFrom(status, body)
	}
	err = c.codec.Deserialize(body, &resp)
	return resp, err
}

// Shards returns the bucket ranges and blacklist flags of all shards.
func (c *AdminClient) Shards() (common.ShardsResponse, error) {
	var resp common.ShardsResponse
	status, body, err := c.do(http.MethodGet, "/shards", nil)
	if err != nil {
		return resp, err
	}
	if status != http.StatusOK {
		return resp, c.errorFrom(status, body)
	}
	err = c.codec.Deserialize(body, &resp)
	return resp, err
}

// Metrics returns the metrics in Prometheus text format.
func (c *AdminClient) Metrics() (string, error) {
	status, body, err := c.do(http.MethodGet, "/metrics", nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", c.errorFrom(status, body)
	}
	return string(body), nil
}

// Close releases idle connections.
func (c *AdminClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
