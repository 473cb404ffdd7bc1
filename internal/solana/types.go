package solana

import "encoding/json"

// rpcRequest is a JSON-RPC 2.0 request envelope
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// balanceResult is the result of getBalance
type balanceResult struct {
	Context rpcContext `json:"context"`
	Value   int64      `json:"value"`
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

// SignatureInfo is one entry from getSignaturesForAddress, most recent first
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	BlockTime int64  `json:"blockTime"`
	Err       any    `json:"err"`
}

// TransactionDetail is the confirmed transaction view used for sender
// attribution: the account list plus per-account balances before and after
type TransactionDetail struct {
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *TransactionMeta `json:"meta"`
}

// TransactionMeta carries pre/post balances in lamports, indexed like
// accountKeys
type TransactionMeta struct {
	PreBalances  []int64 `json:"preBalances"`
	PostBalances []int64 `json:"postBalances"`
}
