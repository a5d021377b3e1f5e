package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/ratelimit"
)

const (
	// DefaultTimeout is the timeout of every request.
	DefaultTimeout = 30 * time.Second
	// DefaultRequestsPerSecond ...
	DefaultRequestsPerSecond = 10
)

// Client makes HTTP requests that never exceed the configured rate.
type Client struct {
	client  *http.Client
	limiter ratelimit.Limiter
}

// NewClient returns a Client with the given timeout and rate. Zero values
// select the defaults.
func NewClient(timeout time.Duration, requestsPerSecond int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.New(requestsPerSecond),
	}
}

// NewHTTPRequest function builds http call
// @param method <string>: http method
// @param url <string>: URL http to call
// @return <int>, <string>, error: status code and body of the response
func (c *Client) NewHTTPRequest(
	ctx context.Context, method, url, bodyString string,
	header map[string]string,
) (int, string, error) {
	switch method {
	case http.MethodGet, http.MethodDelete:
		return c.do(ctx, method, url, nil, header)
	case http.MethodPost:
		return c.do(ctx, method, url, strings.NewReader(bodyString), header)
	default:
		return 0, "", fmt.Errorf("verb not supported %s", method)
	}
}

func (c *Client) do(
	ctx context.Context, method, url string, body io.Reader,
	header map[string]string,
) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, "", err
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	c.limiter.Take()

	rs, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return rs.StatusCode, string(bodyBytes), nil
}
