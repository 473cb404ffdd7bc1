package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/microcloud/backend/internal/solana"
	"github.com/microcloud/backend/internal/store"
)

// Alerter pushes operational alerts to a Telegram chat. It is the escalation
// channel on top of the durable reconciliation_gaps table, never a substitute
// for it. With no token or chat configured it stays silently disabled.
type Alerter struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// New creates an Alerter. Returns a disabled one if token or chatID is unset.
func New(token string, chatID int64, log *slog.Logger) (*Alerter, error) {
	a := &Alerter{chatID: chatID, log: log}

	if token == "" || chatID == 0 {
		log.Info("ops alerts disabled: ALERT_BOT_TOKEN or ALERT_CHAT_ID not set")
		return a, nil
	}

	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create alert bot: %w", err)
	}
	a.bot = b

	return a, nil
}

// Enabled reports whether alerts will actually be delivered
func (a *Alerter) Enabled() bool {
	return a.bot != nil
}

func (a *Alerter) send(ctx context.Context, text string) {
	if a.bot == nil {
		return
	}

	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    a.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		a.log.Error("send ops alert", "error", err)
	}
}

// PaymentCommitFailed alerts that funds were observed on the ledger but the
// order transition failed to persist. A paid customer is stranded in Payment
// Pending until someone acts on this.
func (a *Alerter) PaymentCommitFailed(ctx context.Context, gap store.ReconciliationGap) {
	text := fmt.Sprintf(
		"🚨 <b>Payment commit failed</b>\n\n"+
			"Customer: <code>%d</code>\n"+
			"Amount: %.6f SOL ($%.2f)\n"+
			"From: <code>%s</code>\n\n"+
			"Error: %s\n\n"+
			"Funds are on the ledger but the order is still Payment Pending. Manual follow-up required.",
		gap.CustomerID, gap.AmountSOL, gap.AmountUSD,
		solana.ShortAddr(gap.FromAddress, 6), gap.Detail,
	)
	a.send(ctx, text)
}

// ReconcilerResumed notes payment sessions restored after a restart
func (a *Alerter) ReconcilerResumed(ctx context.Context, count int) {
	if count == 0 {
		return
	}
	a.send(ctx, fmt.Sprintf("♻️ Reconciler resumed <b>%d</b> payment session(s) after restart", count))
}
