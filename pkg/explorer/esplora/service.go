package esplora

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/btcvault/pkg/circuitbreaker"
	"github.com/tdex-network/btcvault/pkg/explorer"
	"github.com/tdex-network/btcvault/pkg/httputil"
)

// maxConcurrentRequests bounds the requests made in parallel when fetching
// data for many addresses.
const maxConcurrentRequests = 8

type esplora struct {
	apiURL string
	net    *chaincfg.Params
	client *httputil.Client
	cb     *gobreaker.CircuitBreaker
}

// NewService returns a new esplora service as an explorer.Service interface.
// Requests are limited to requestsPerSecond, 0 selecting the default rate.
func NewService(
	apiURL string, net *chaincfg.Params, requestsPerSecond int,
	timeout time.Duration,
) (explorer.Service, error) {
	if len(apiURL) <= 0 {
		return nil, fmt.Errorf("missing explorer url")
	}
	if net == nil {
		return nil, fmt.Errorf("missing network")
	}

	service := &esplora{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		net:    net,
		client: httputil.NewClient(timeout, requestsPerSecond),
		cb:     circuitbreaker.NewCircuitBreaker("esplora"),
	}

	if _, err := service.GetBlockHeight(context.Background()); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

type response struct {
	status int
	body   string
}

// request makes an http call through the circuit breaker. Only transport
// errors and server errors count as failures for the breaker.
func (e *esplora) request(
	ctx context.Context, method, path, body string, header map[string]string,
) (string, error) {
	url := e.apiURL + path
	iResp, err := e.cb.Execute(func() (interface{}, error) {
		status, resp, err := e.client.NewHTTPRequest(ctx, method, url, body, header)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%s %s: %d %s", method, path, status, resp)
		}
		return response{status, resp}, nil
	})
	if err != nil {
		return "", err
	}

	resp := iResp.(response)
	switch {
	case resp.status == http.StatusNotFound:
		return "", fmt.Errorf("%s: %w", path, explorer.ErrNotFound)
	case resp.status != http.StatusOK:
		return "", fmt.Errorf("%s %s: %d %s", method, path, resp.status, resp.body)
	}
	return resp.body, nil
}

func (e *esplora) get(ctx context.Context, path string) (string, error) {
	return e.request(ctx, http.MethodGet, path, "", nil)
}
