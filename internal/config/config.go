package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP
	ListenPort int
	BaseURL    string

	// Database
	DBPath string

	// Solana
	SolanaRPCURL     string
	RecipientAddress string

	// Price oracle
	PriceAPIURL string

	// Reconciliation
	PollInterval     time.Duration
	PriceBuffer      float64
	ToleranceSOL     float64
	SenderScanLimit  int
	SessionRetention time.Duration

	// Mail
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	// Auth
	PatchAPIKey string
	JWTSecret   string

	// Ops alerts
	AlertBotToken string
	AlertChatID   int64
}

func Load() *Config {
	return &Config{
		// HTTP
		ListenPort: getEnvInt("PORT", 8080),
		BaseURL:    strings.TrimSuffix(getEnv("BASE_URL", "https://www.microcloud.tech"), "/"),

		// Database
		DBPath: getEnv("DB_PATH", "./microcloud.db"),

		// Solana
		SolanaRPCURL:     strings.TrimSuffix(getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"), "/"),
		RecipientAddress: getEnv("RECIPIENT_ADDRESS", ""),

		// Price oracle
		PriceAPIURL: getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3/simple/price"),

		// Reconciliation
		PollInterval:     getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PriceBuffer:      getEnvFloat("PRICE_BUFFER", 1.01),
		ToleranceSOL:     getEnvFloat("TOLERANCE_SOL", 0.000001),
		SenderScanLimit:  getEnvInt("SENDER_SCAN_LIMIT", 10),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 5*time.Minute),

		// Mail
		SMTPHost: getEnv("SMTP_HOST", "smtp.eu.mailgun.org"),
		SMTPPort: getEnvInt("SMTP_PORT", 587),
		SMTPUser: getEnv("SMTP_USER", ""),
		SMTPPass: getEnv("SMTP_PASS", ""),
		MailFrom: getEnv("MAIL_FROM", "Microcloud <postmaster@microcloud.tech>"),

		// Auth
		PatchAPIKey: getEnv("PATCH_API_KEY", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		// Ops alerts
		AlertBotToken: getEnv("ALERT_BOT_TOKEN", ""),
		AlertChatID:   getEnvInt64("ALERT_CHAT_ID", 0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
