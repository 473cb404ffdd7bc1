package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable means the quote service could not provide a spot price. A
// payment session must not start without one.
var ErrUnavailable = errors.New("spot price unavailable")

// Client fetches crypto spot prices from the CoinGecko simple-price endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new price client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SpotPrice returns the current price of a coin in a fiat currency. One
// fetch, no caching, no retry: a stale price is worse than a visible failure
// when the quote prices a payment.
func (c *Client) SpotPrice(ctx context.Context, coin, fiat string) (float64, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=%s", c.baseURL, coin, fiat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// {"solana":{"usd":123.45}}
	var quotes map[string]map[string]float64
	if err := json.Unmarshal(data, &quotes); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	value, ok := quotes[coin][fiat]
	if !ok || value <= 0 {
		return 0, fmt.Errorf("%w: no %s/%s quote in response", ErrUnavailable, coin, fiat)
	}

	return value, nil
}
