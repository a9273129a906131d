// Package ledger provides the client for the external ledger process: the
// process of record for real-value balances, fees and transfers.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
)

// Client speaks JSON-RPC 2.0 to the ledger process.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// NewClient creates a ledger client.
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

// call makes an RPC call to the ledger process. Transport failures map to
// ExternalProcessUnreachable; ledger-level rejections come back as
// *RPCError.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := RPCRequest{
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
		return nil, apperrors.Unreachable("ledger", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Unreachable("ledger", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// AccountBalance returns the balance of an account in the ledger's base
// unit.
func (c *Client) AccountBalance(ctx context.Context, accountRef string) (uint64, error) {
	result, err := c.call(ctx, "account_balance", map[string]any{"account": accountRef})
	if err != nil {
		return 0, err
	}

	var balance balanceResult
	if err := json.Unmarshal(result, &balance); err != nil {
		return 0, err
	}
	return balance.E8s, nil
}

// TransferFee returns the ledger's current transfer fee.
func (c *Client) TransferFee(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "transfer_fee", map[string]any{})
	if err != nil {
		return 0, err
	}

	var fee feeResult
	if err := json.Unmarshal(result, &fee); err != nil {
		return 0, err
	}
	return fee.TransferFee.E8s, nil
}

// Transfer submits a transfer and forwards the ledger's verdict verbatim.
func (c *Client) Transfer(ctx context.Context, args TransferArgs) (TransferResult, error) {
	result, err := c.call(ctx, "transfer", args)
	if err != nil {
		if rpcErr, ok := err.(*RPCError); ok {
			return TransferResult{Succeeded: false, Detail: rejectionDetail(rpcErr)}, nil
		}
		return TransferResult{}, err
	}

	var tr transferResult
	if err := json.Unmarshal(result, &tr); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Succeeded: true, BlockHeight: tr.Height}, nil
}

// rejectionDetail extracts the most specific failure reason from a ledger
// rejection. The data payload varies by rejection kind, so it is probed
// rather than unmarshalled into a fixed shape.
func rejectionDetail(rpcErr *RPCError) string {
	if len(rpcErr.Data) > 0 {
		data := gjson.ParseBytes(rpcErr.Data)
		for _, field := range []string{"detail", "reason", "error_message"} {
			if v := data.Get(field); v.Exists() {
				return v.String()
			}
		}
	}
	return rpcErr.Message
}
