package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mr-tron/base58"
)

const lamportsPerSOL = 1e9

// ErrSenderNotFound means no recent transaction increased the recipient's
// balance
var ErrSenderNotFound = errors.New("sender not found in recent transactions")

// Client is a Solana JSON-RPC client
type Client struct {
	rpcURL     string
	httpClient *http.Client

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient creates a new Solana RPC client
func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 250 * time.Millisecond, // ~4 RPS, public RPC nodes throttle hard
	}
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.minDelay {
		time.Sleep(c.minDelay - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) rpcCall(ctx context.Context, method string, params []any, result any) error {
	c.throttle()

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("RPC error %d: %s", resp.StatusCode, string(data))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("RPC error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// GetBalance returns an address's balance in SOL
func (c *Client) GetBalance(ctx context.Context, address string) (float64, error) {
	var result balanceResult
	params := []any{address, map[string]string{"commitment": "confirmed"}}
	if err := c.rpcCall(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return LamportsToSOL(result.Value), nil
}

// GetSignatures returns the most recent transaction signatures for an address
func (c *Client) GetSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	var result []SignatureInfo
	params := []any{address, map[string]any{"limit": limit, "commitment": "confirmed"}}
	if err := c.rpcCall(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction returns the confirmed transaction for a signature
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionDetail, error) {
	var result TransactionDetail
	params := []any{signature, map[string]string{"encoding": "json", "commitment": "confirmed"}}
	if err := c.rpcCall(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindSenderAddress scans the recipient's recent transactions and returns the
// first signer of the first one that increased the recipient's balance.
// Best-effort attribution only: a concurrent unrelated transfer in the scan
// window can win, so the result is recorded as metadata and never used to
// authorize anything.
func (c *Client) FindSenderAddress(ctx context.Context, recipient string, limit int) (string, error) {
	sigs, err := c.GetSignatures(ctx, recipient, limit)
	if err != nil {
		return "", err
	}

	for _, sig := range sigs {
		detail, err := c.GetTransaction(ctx, sig.Signature)
		if err != nil || detail.Meta == nil {
			continue
		}

		recipientIdx := -1
		for i, key := range detail.Transaction.Message.AccountKeys {
			if key == recipient {
				recipientIdx = i
				break
			}
		}
		if recipientIdx < 0 ||
			recipientIdx >= len(detail.Meta.PreBalances) ||
			recipientIdx >= len(detail.Meta.PostBalances) {
			continue
		}

		if detail.Meta.PostBalances[recipientIdx] > detail.Meta.PreBalances[recipientIdx] {
			// The first account key is the fee payer, which signed first
			if len(detail.Transaction.Message.AccountKeys) > 0 {
				return detail.Transaction.Message.AccountKeys[0], nil
			}
		}
	}

	return "", ErrSenderNotFound
}

// ValidateAddress checks that an address is a base58-encoded 32-byte key
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}

// LamportsToSOL converts lamports to SOL
func LamportsToSOL(lamports int64) float64 {
	return float64(lamports) / lamportsPerSOL
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
