// Package token provides the client for the in-environment test-token
// process used outside of the real network. It has no fee model.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
)

// Client speaks JSON-RPC 2.0 to the test-token process.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a test-token client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("token rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Unreachable("token", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Unreachable("token", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// InitializeSupply seeds the token supply at the given address. Called once
// during local-mode initialization.
func (c *Client) InitializeSupply(ctx context.Context, name, seedAddress, ticker string, totalSupply uint64) (bool, error) {
	result, err := c.call(ctx, "initializeSupply", []any{name, seedAddress, ticker, totalSupply})
	if err != nil {
		return false, err
	}

	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Transfer moves tokens between two holders. A false result is a hard
// failure, not a retryable condition.
func (c *Client) Transfer(ctx context.Context, from, to string, amount uint64) (bool, error) {
	result, err := c.call(ctx, "transfer", []any{from, to, amount})
	if err != nil {
		return false, err
	}

	var ok bool
	if err := json.Unmarshal(result, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Balance returns the holding of an account.
func (c *Client) Balance(ctx context.Context, accountRef string) (uint64, error) {
	result, err := c.call(ctx, "balance", []any{accountRef})
	if err != nil {
		return 0, err
	}

	var balance uint64
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}
