package ledger

import (
	"encoding/json"
	"fmt"
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError is an error returned by the ledger process.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc error %d: %s", e.Code, e.Message)
}

// TransferArgs mirrors the ledger's transfer contract. The fee is paid in
// addition to Amount, not deducted from it.
type TransferArgs struct {
	Memo           uint64  `json:"memo"`
	Amount         uint64  `json:"amount"`
	Fee            uint64  `json:"fee"`
	FromSubaccount *string `json:"from_subaccount,omitempty"`
	To             string  `json:"to"`
	CreatedAt      *uint64 `json:"created_at_time,omitempty"`
}

// TransferResult is the ledger's verdict on a transfer.
type TransferResult struct {
	Succeeded   bool
	BlockHeight uint64
	Detail      string
}

type balanceResult struct {
	E8s uint64 `json:"e8s"`
}

type feeResult struct {
	TransferFee struct {
		E8s uint64 `json:"e8s"`
	} `json:"transfer_fee"`
}

type transferResult struct {
	Height uint64 `json:"height"`
}
