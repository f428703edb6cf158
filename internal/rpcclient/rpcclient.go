// Package rpcclient implements a single and batched JSON-RPC client
// against an Ethereum-compatible node, with exponential backoff and
// Retry-After honoring, grounded on xquery/provider.py's
// BatchHTTPProvider and xquery/middleware.py's retry middleware.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// Request is one entry of a JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// Response is one entry of a JSON-RPC 2.0 reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC protocol-level error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return errors.Errorf("rpc error %d: %s", e.Code, e.Message).Error()
}

// retriableMethods whitelists read-only methods the backoff middleware
// is allowed to retry, matching the reference design: "mutating methods never
// retry."
var retriableMethods = map[string]bool{
	"eth_blockNumber":        true,
	"eth_getBlockByHash":     true,
	"eth_getBlockByNumber":   true,
	"eth_getTransactionByHash": true,
	"eth_getLogs":            true,
	"eth_call":               true,
	"eth_chainId":            true,
	"net_version":            true,
}

// Client is a batched JSON-RPC HTTP client with retry/backoff.
type Client struct {
	url        string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient constructs a Client targeting url (e.g. API_URL).
func NewClient(url string, httpClient *http.Client, retry RetryConfig) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, httpClient: httpClient, retry: retry}
}

// Call issues a single JSON-RPC request and decodes its result into out.
func (c *Client) Call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	resps, err := c.BatchCall(ctx, []Request{{JSONRPC: "2.0", Method: method, Params: params, ID: 1}})
	if err != nil {
		return err
	}
	if len(resps) != 1 {
		return errors.New("rpcclient: expected exactly one response")
	}
	if resps[0].Error != nil {
		return resps[0].Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resps[0].Result, out)
}

// BatchCall issues an ordered batch of JSON-RPC requests and returns the
// responses aligned by id, matching provider.py's build_entry/
// make_batch_request. The batch is retried as a whole per the backoff
// middleware, and only when every method in it is on the read-only
// whitelist; otherwise it is sent once.
func (c *Client) BatchCall(ctx context.Context, reqs []Request) ([]Response, error) {
	return c.doWithRetry(ctx, reqs)
}

func (c *Client) doWithRetry(ctx context.Context, reqs []Request) ([]Response, error) {
	allRetriable := true
	for _, r := range reqs {
		if !retriableMethods[r.Method] {
			allRetriable = false
			break
		}
	}

	var lastErr error
	attempt := func() ([]Response, error) {
		return c.doOnce(ctx, reqs)
	}

	if !allRetriable {
		return attempt()
	}

	return withBackoffRetry(ctx, c.retry, attempt, &lastErr)
}

func (c *Client) doOnce(ctx context.Context, reqs []Request) ([]Response, error) {
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, errors.Wrap(err, "rpcclient: marshal request failed")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "rpcclient: build request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &transientError{cause: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &throttleError{retryAfter: httpResp.Header.Get("Retry-After")}
	}
	if httpResp.StatusCode >= 500 {
		return nil, &transientError{cause: errors.Errorf("rpcclient: server error status %d", httpResp.StatusCode)}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rpcclient: unexpected status %d", httpResp.StatusCode)
	}

	var resps []Response
	if decodeErr := json.NewDecoder(httpResp.Body).Decode(&resps); decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "rpcclient: decode response failed")
	}
	return resps, nil
}
