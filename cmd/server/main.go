package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/microcloud/backend/internal/alert"
	"github.com/microcloud/backend/internal/api"
	"github.com/microcloud/backend/internal/config"
	"github.com/microcloud/backend/internal/mailer"
	"github.com/microcloud/backend/internal/price"
	"github.com/microcloud/backend/internal/reconcile"
	"github.com/microcloud/backend/internal/solana"
	"github.com/microcloud/backend/internal/store"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.RecipientAddress == "" {
		log.Error("RECIPIENT_ADDRESS is required")
		os.Exit(1)
	}
	if err := solana.ValidateAddress(cfg.RecipientAddress); err != nil {
		log.Error("invalid RECIPIENT_ADDRESS", "error", err)
		os.Exit(1)
	}

	// Initialize store
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Error("init store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store initialized", "path", cfg.DBPath)

	// Initialize ledger and price clients
	ledger := solana.NewClient(cfg.SolanaRPCURL)
	log.Info("solana client initialized", "rpc_url", cfg.SolanaRPCURL)

	oracle := price.NewClient(cfg.PriceAPIURL)

	// Initialize mailer
	ml := mailer.New(cfg, st, log)

	// Initialize ops alerts
	alerts, err := alert.New(cfg.AlertBotToken, cfg.AlertChatID, log)
	if err != nil {
		log.Error("init ops alerts", "error", err)
		os.Exit(1)
	}

	// Initialize reconciler
	rec := reconcile.New(reconcile.Config{
		Recipient:        cfg.RecipientAddress,
		PollInterval:     cfg.PollInterval,
		PriceBuffer:      cfg.PriceBuffer,
		Tolerance:        cfg.ToleranceSOL,
		SenderScanLimit:  cfg.SenderScanLimit,
		SessionRetention: cfg.SessionRetention,
	}, st, ledger, oracle, ml, alerts, log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Resume payment sessions that were in flight before the last shutdown
	if resumed := rec.Resume(ctx); resumed > 0 {
		alerts.ReconcilerResumed(ctx, resumed)
	}

	// Start API server
	server := api.NewServer(cfg, st, rec, ml, log)
	if err := server.Start(ctx, cfg.ListenPort); err != nil && err != http.ErrServerClosed {
		log.Error("api server", "error", err)
		os.Exit(1)
	}
}
