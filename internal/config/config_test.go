package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	// Blank values read as unset, so ambient environment cannot leak in
	for _, key := range []string{"PORT", "POLL_INTERVAL", "PRICE_BUFFER", "TOLERANCE_SOL", "SENDER_SCAN_LIMIT", "SESSION_RETENTION"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 1.01, cfg.PriceBuffer)
	assert.Equal(t, 0.000001, cfg.ToleranceSOL)
	assert.Equal(t, 10, cfg.SenderScanLimit)
	assert.Equal(t, 5*time.Minute, cfg.SessionRetention)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("PRICE_BUFFER", "1.05")
	t.Setenv("ALERT_CHAT_ID", "-100123456")

	// Trailing slashes are stripped so URL joins stay clean
	t.Setenv("BASE_URL", "https://staging.microcloud.tech/")
	t.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com/")

	cfg := Load()

	assert.Equal(t, 9090, cfg.ListenPort)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 1.05, cfg.PriceBuffer)
	assert.Equal(t, int64(-100123456), cfg.AlertChatID)
	assert.Equal(t, "https://staging.microcloud.tech", cfg.BaseURL)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.SolanaRPCURL)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("TOLERANCE_SOL", "tiny")

	cfg := Load()

	assert.Equal(t, 8080, cfg.ListenPort)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 0.000001, cfg.ToleranceSOL)
}
