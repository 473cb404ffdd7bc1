package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	recipientAddr = "6ezBoKUGFxMoBZh3uLpgkntHscgcKvXpqBhkZzJ7HztJ"
	payerAddr     = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	bystanderAddr = "7VHUFJHWu2CuExkJcJrzhQPJ2oygupTWkL2A2For4BmE"
)

// rpcHandler dispatches canned JSON-RPC responses by method
type rpcHandler struct {
	t       *testing.T
	balance int64
	sigs    []SignatureInfo
	txs     map[string]TransactionDetail
	rpcErr  *rpcError
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if h.rpcErr != nil {
		resp.Error = h.rpcErr
	} else {
		var result any
		switch req.Method {
		case "getBalance":
			result = balanceResult{Context: rpcContext{Slot: 12345}, Value: h.balance}
		case "getSignaturesForAddress":
			result = h.sigs
		case "getTransaction":
			sig, _ := req.Params[0].(string)
			result = h.txs[sig]
		default:
			h.t.Fatalf("unexpected RPC method %q", req.Method)
		}
		raw, err := json.Marshal(result)
		require.NoError(h.t, err)
		resp.Result = raw
	}

	w.Header().Set("Content-Type", "application/json")
	require.NoError(h.t, json.NewEncoder(w).Encode(resp))
}

func newTestClient(t *testing.T, h *rpcHandler) *Client {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	c.minDelay = 0 // no throttling against the local test server
	return c
}

func transfer(keys []string, pre, post []int64) TransactionDetail {
	var d TransactionDetail
	d.Transaction.Message.AccountKeys = keys
	d.Meta = &TransactionMeta{PreBalances: pre, PostBalances: post}
	return d
}

func TestGetBalance(t *testing.T) {
	h := &rpcHandler{t: t, balance: 5_101_000_000}
	c := newTestClient(t, h)

	balance, err := c.GetBalance(context.Background(), recipientAddr)
	require.NoError(t, err)
	assert.InDelta(t, 5.101, balance, 1e-12)
}

func TestGetBalance_RPCError(t *testing.T) {
	h := &rpcHandler{t: t, rpcErr: &rpcError{Code: -32005, Message: "node is behind"}}
	c := newTestClient(t, h)

	_, err := c.GetBalance(context.Background(), recipientAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node is behind")
}

func TestFindSenderAddress(t *testing.T) {
	// Most recent signature first: an unrelated transfer that did not move
	// the recipient's balance, then the actual payment. Attribution must skip
	// the first and return the payment's fee payer.
	h := &rpcHandler{
		t: t,
		sigs: []SignatureInfo{
			{Signature: "sig-noise", Slot: 101},
			{Signature: "sig-payment", Slot: 100},
		},
		txs: map[string]TransactionDetail{
			"sig-noise": transfer(
				[]string{bystanderAddr, recipientAddr},
				[]int64{2_000_000_000, 5_000_000_000},
				[]int64{1_999_995_000, 5_000_000_000},
			),
			"sig-payment": transfer(
				[]string{payerAddr, recipientAddr},
				[]int64{1_000_000_000, 5_000_000_000},
				[]int64{898_995_000, 5_101_000_000},
			),
		},
	}
	c := newTestClient(t, h)

	sender, err := c.FindSenderAddress(context.Background(), recipientAddr, 10)
	require.NoError(t, err)
	assert.Equal(t, payerAddr, sender)
}

func TestFindSenderAddress_NoIncrease(t *testing.T) {
	h := &rpcHandler{
		t:    t,
		sigs: []SignatureInfo{{Signature: "sig-noise", Slot: 101}},
		txs: map[string]TransactionDetail{
			"sig-noise": transfer(
				[]string{bystanderAddr, recipientAddr},
				[]int64{2_000_000_000, 5_000_000_000},
				[]int64{1_999_995_000, 5_000_000_000},
			),
		},
	}
	c := newTestClient(t, h)

	_, err := c.FindSenderAddress(context.Background(), recipientAddr, 10)
	assert.ErrorIs(t, err, ErrSenderNotFound)
}

func TestFindSenderAddress_SkipsMissingMeta(t *testing.T) {
	noMeta := TransactionDetail{}
	noMeta.Transaction.Message.AccountKeys = []string{payerAddr, recipientAddr}

	h := &rpcHandler{
		t: t,
		sigs: []SignatureInfo{
			{Signature: "sig-no-meta", Slot: 101},
			{Signature: "sig-payment", Slot: 100},
		},
		txs: map[string]TransactionDetail{
			"sig-no-meta": noMeta,
			"sig-payment": transfer(
				[]string{payerAddr, recipientAddr},
				[]int64{1_000_000_000, 5_000_000_000},
				[]int64{898_995_000, 5_101_000_000},
			),
		},
	}
	c := newTestClient(t, h)

	sender, err := c.FindSenderAddress(context.Background(), recipientAddr, 10)
	require.NoError(t, err)
	assert.Equal(t, payerAddr, sender)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(recipientAddr))
	assert.Error(t, ValidateAddress("not-base58-0OIl"))
	assert.Error(t, ValidateAddress("abc")) // decodes, but far short of 32 bytes
	assert.Error(t, ValidateAddress(""))
}

func TestLamportsToSOL(t *testing.T) {
	assert.Equal(t, 1.0, LamportsToSOL(1_000_000_000))
	assert.Equal(t, 0.0, LamportsToSOL(0))
	assert.InDelta(t, 0.000000001, LamportsToSOL(1), 1e-18)
}

func TestShortAddr(t *testing.T) {
	assert.Equal(t, "unknown", ShortAddr("", 4))
	assert.Equal(t, "abc", ShortAddr("abc", 4))
	assert.Equal(t, "6ezB...HztJ", ShortAddr(recipientAddr, 4))
}
