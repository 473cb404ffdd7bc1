package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microcloud/backend/internal/store"
)

// unknownSender is recorded when sender attribution fails; the confirmation
// itself depends only on the balance delta
const unknownSender = "Unknown"

// OrderStore is the persistence surface the reconciler drives
type OrderStore interface {
	FindPendingOrder(customerID int64, planAmount float64) (*store.Order, error)
	ConfirmPayment(customerID int64, fromAddr, toAddr string, amountSOL, amountUSD float64) (int64, error)
	SavePaymentSession(p store.PaymentSession) error
	GetPaymentSessionByCustomer(customerID int64) (*store.PaymentSession, error)
	ListPaymentSessions() ([]store.PaymentSession, error)
	DeletePaymentSession(id string) error
	RecordReconciliationGap(g store.ReconciliationGap) error
}

// Ledger observes the blockchain
type Ledger interface {
	GetBalance(ctx context.Context, address string) (float64, error)
	FindSenderAddress(ctx context.Context, recipient string, limit int) (string, error)
}

// Oracle quotes crypto spot prices
type Oracle interface {
	SpotPrice(ctx context.Context, coin, fiat string) (float64, error)
}

// Notifier sends the payment confirmation email
type Notifier interface {
	SendPaymentConfirmed(ctx context.Context, customerID int64) error
}

// Alerter escalates reconciliation gaps to operators
type Alerter interface {
	PaymentCommitFailed(ctx context.Context, gap store.ReconciliationGap)
}

// Config holds the reconciler's tuning knobs
type Config struct {
	Recipient       string
	PollInterval    time.Duration
	PriceBuffer     float64
	Tolerance       float64
	SenderScanLimit int

	// SessionRetention is how long a finished session's snapshot stays
	// readable before it is evicted from the registry
	SessionRetention time.Duration
}

// Reconciler matches observed ledger balance changes to expected payments and
// commits the resulting order transitions. One polling goroutine per session;
// sessions are independent of each other.
type Reconciler struct {
	cfg      Config
	store    OrderStore
	ledger   Ledger
	oracle   Oracle
	notifier Notifier
	alerter  Alerter
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Reconciler
func New(cfg Config, st OrderStore, ledger Ledger, oracle Oracle, notifier Notifier, alerter Alerter, log *slog.Logger) *Reconciler {
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = 5 * time.Minute
	}
	return &Reconciler{
		cfg:      cfg,
		store:    st,
		ledger:   ledger,
		oracle:   oracle,
		notifier: notifier,
		alerter:  alerter,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// ExpectedAmount computes the crypto amount for a fiat amount at a spot
// price. The buffer absorbs price drift between quote time and settlement
// time; without it, minor appreciation would make a legitimate payment read
// as insufficient.
func ExpectedAmount(amountUSD, spotPrice, buffer float64) float64 {
	return (amountUSD / spotPrice) * buffer
}

// Start validates the payment parameters and order, prices the payment,
// anchors the recipient balance, and begins polling. The returned error is a
// *SessionError for workflow failures (bad params, expired order, upstream
// unavailable) and a plain error for internal faults. ctx bounds the polling
// loop's lifetime, so callers pass the server lifecycle context, not a
// request context.
func (r *Reconciler) Start(ctx context.Context, rawCustomerID, rawAmount string) (Snapshot, error) {
	if rawCustomerID == "" || rawAmount == "" {
		return Snapshot{}, &SessionError{
			Cause:   CauseMissingParameters,
			Message: "missing required parameters (USD amount or order ID)",
		}
	}

	customerID, err := strconv.ParseInt(rawCustomerID, 10, 64)
	if err != nil {
		return Snapshot{}, &SessionError{
			Cause:   CauseMissingParameters,
			Message: "missing required parameters (USD amount or order ID)",
		}
	}

	amountUSD, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || amountUSD <= 0 {
		return Snapshot{}, &SessionError{
			Cause:   CauseInvalidAmount,
			Message: "invalid USD amount provided",
		}
	}

	// A live session for this customer and amount means a second tab or a
	// reload; hand back the existing observation instead of re-anchoring.
	if existing := r.findActive(customerID, amountUSD); existing != nil {
		return existing.Snapshot(), nil
	}

	if _, err := r.store.FindPendingOrder(customerID, amountUSD); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, &SessionError{
				Cause:   CauseOrderNotPending,
				Message: "the payment window for this order has expired",
			}
		}
		return Snapshot{}, err
	}

	// A persisted session survives page teardown and server restarts.
	// Resuming keeps the original anchor balance, so a payment that landed
	// while nobody was watching is still detected.
	if persisted, err := r.store.GetPaymentSessionByCustomer(customerID); err == nil {
		if persisted.AmountUSD == amountUSD {
			return r.resume(ctx, *persisted)
		}
		if err := r.store.DeletePaymentSession(persisted.ID); err != nil {
			r.log.Warn("delete stale payment session", "session_id", persisted.ID, "error", err)
		}
	}

	spotPrice, err := r.oracle.SpotPrice(ctx, "solana", "usd")
	if err != nil {
		return Snapshot{}, &SessionError{
			Cause:   CausePriceUnavailable,
			Message: "failed to fetch SOL price",
		}
	}

	expected := ExpectedAmount(amountUSD, spotPrice, r.cfg.PriceBuffer)

	initialBalance, err := r.ledger.GetBalance(ctx, r.cfg.Recipient)
	if err != nil {
		return Snapshot{}, &SessionError{
			Cause:   CauseLedgerUnavailable,
			Message: "failed to establish ledger connection",
		}
	}

	s := &Session{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		AmountUSD:  amountUSD,
		AmountSOL:  expected,
		SpotPrice:  spotPrice,
		Recipient:  r.cfg.Recipient,
		CreatedAt:  time.Now(),
		state:      StateAwaitingPayment,
	}
	s.setBalances(initialBalance, initialBalance)

	if err := r.store.SavePaymentSession(store.PaymentSession{
		ID:             s.ID,
		CustomerID:     s.CustomerID,
		AmountUSD:      s.AmountUSD,
		AmountSOL:      s.AmountSOL,
		SpotPrice:      s.SpotPrice,
		InitialBalance: initialBalance,
		Recipient:      s.Recipient,
		CreatedAt:      s.CreatedAt,
	}); err != nil {
		return Snapshot{}, err
	}

	r.register(s)
	go r.run(ctx, s)

	r.log.Info("payment session started",
		"session_id", s.ID,
		"customer_id", customerID,
		"amount_usd", amountUSD,
		"amount_sol", expected,
		"spot_price", spotPrice,
		"initial_balance", initialBalance,
	)

	return s.Snapshot(), nil
}

// Resume reloads persisted sessions after a restart and restarts their
// polling loops against the stored anchor balances. Returns the number of
// sessions resumed.
func (r *Reconciler) Resume(ctx context.Context) int {
	persisted, err := r.store.ListPaymentSessions()
	if err != nil {
		r.log.Error("list payment sessions", "error", err)
		return 0
	}

	count := 0
	for _, p := range persisted {
		if _, err := r.resume(ctx, p); err != nil {
			r.log.Error("resume payment session", "session_id", p.ID, "error", err)
			continue
		}
		count++
	}

	if count > 0 {
		r.log.Info("payment sessions resumed", "count", count)
	}
	return count
}

func (r *Reconciler) resume(ctx context.Context, p store.PaymentSession) (Snapshot, error) {
	if existing := r.findActive(p.CustomerID, p.AmountUSD); existing != nil {
		return existing.Snapshot(), nil
	}

	s := &Session{
		ID:         p.ID,
		CustomerID: p.CustomerID,
		AmountUSD:  p.AmountUSD,
		AmountSOL:  p.AmountSOL,
		SpotPrice:  p.SpotPrice,
		Recipient:  p.Recipient,
		CreatedAt:  p.CreatedAt,
		state:      StateAwaitingPayment,
	}
	s.setBalances(p.InitialBalance, p.InitialBalance)

	r.register(s)
	go r.run(ctx, s)

	r.log.Info("payment session resumed",
		"session_id", s.ID,
		"customer_id", s.CustomerID,
		"anchor_balance", p.InitialBalance,
	)

	return s.Snapshot(), nil
}

// Get returns a session snapshot by id
func (r *Reconciler) Get(sessionID string) (Snapshot, bool) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Stop cancels a session's polling loop. The persisted session row stays, so
// a later Start for the same order resumes observation from the original
// anchor instead of resetting it.
func (r *Reconciler) Stop(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		s.stop()
		r.log.Info("payment session stopped", "session_id", sessionID)
	}
}

func (r *Reconciler) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// findActive matches on customer AND amount: a customer can hold pending
// orders at different prices, and each gets its own observation.
func (r *Reconciler) findActive(customerID int64, amountUSD float64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.CustomerID == customerID && s.AmountUSD == amountUSD && s.State() == StateAwaitingPayment {
			return s
		}
	}
	return nil
}

func (r *Reconciler) remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// run is the per-session polling loop. Polls execute inline on this single
// goroutine, so a slow ledger fetch delays the next tick instead of
// overlapping it.
func (r *Reconciler) run(ctx context.Context, s *Session) {
	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer cancel()

	// Keep the final snapshot readable for a while after the loop ends,
	// then drop the session so the registry does not grow without bound
	defer time.AfterFunc(r.cfg.SessionRetention, func() { r.remove(s.ID) })

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := r.poll(ctx, s); done {
				return
			}
		}
	}
}

// poll fetches the current recipient balance and checks the received amount
// against the expected one. Returns true when the session reached a terminal
// state. Transient ledger errors are logged and skipped; the loop tolerates
// RPC flakiness without aborting the session.
func (r *Reconciler) poll(ctx context.Context, s *Session) bool {
	balance, err := r.ledger.GetBalance(ctx, s.Recipient)
	if err != nil {
		r.log.Warn("balance poll failed", "session_id", s.ID, "error", err)
		return false
	}

	s.setCurrentBalance(balance)
	received := balance - s.anchorBalance()

	if received >= s.AmountSOL-r.cfg.Tolerance {
		r.confirm(ctx, s)
		return true
	}

	return false
}

// confirm commits the payment. The AwaitingPayment->Confirming transition is
// the idempotency guard within this process; the conditional status update in
// ConfirmPayment is the guard across processes and tabs.
func (r *Reconciler) confirm(ctx context.Context, s *Session) {
	if !s.transition(StateAwaitingPayment, StateConfirming) {
		return
	}

	sender, err := r.ledger.FindSenderAddress(ctx, s.Recipient, r.cfg.SenderScanLimit)
	if err != nil {
		r.log.Warn("sender attribution failed", "session_id", s.ID, "error", err)
		sender = unknownSender
	}

	subID, err := r.store.ConfirmPayment(s.CustomerID, sender, s.Recipient, s.AmountSOL, s.AmountUSD)
	if errors.Is(err, store.ErrAlreadyConfirmed) {
		// Another observer committed first. Same terminal outcome, no
		// duplicate transaction record, no second email.
		s.setState(StateConfirmed)
		r.forgetPersisted(s.ID)
		r.log.Info("payment already confirmed elsewhere", "session_id", s.ID, "customer_id", s.CustomerID)
		return
	}
	if err != nil {
		// Funds are on the ledger but the state transition did not persist.
		// This must never live only in a transient UI message.
		gap := store.ReconciliationGap{
			CustomerID:  s.CustomerID,
			FromAddress: sender,
			AmountSOL:   s.AmountSOL,
			AmountUSD:   s.AmountUSD,
			Detail:      err.Error(),
		}
		if gerr := r.store.RecordReconciliationGap(gap); gerr != nil {
			r.log.Error("record reconciliation gap", "session_id", s.ID, "error", gerr)
		}
		r.alerter.PaymentCommitFailed(ctx, gap)
		r.log.Error("payment commit failed",
			"session_id", s.ID,
			"customer_id", s.CustomerID,
			"amount_sol", s.AmountSOL,
			"error", err,
		)
		s.fail(CauseCommitFailed, "payment received but confirmation failed; support has been notified")
		return
	}

	s.setState(StateConfirmed)
	r.forgetPersisted(s.ID)

	r.log.Info("payment confirmed",
		"session_id", s.ID,
		"customer_id", s.CustomerID,
		"subscription_id", subID,
		"amount_sol", s.AmountSOL,
		"amount_usd", s.AmountUSD,
		"sender", sender,
	)

	// Email failure never rolls back the money-movement transition
	if err := r.notifier.SendPaymentConfirmed(ctx, s.CustomerID); err != nil {
		r.log.Error("send payment confirmation", "session_id", s.ID, "customer_id", s.CustomerID, "error", err)
	}
}

func (r *Reconciler) forgetPersisted(sessionID string) {
	if err := r.store.DeletePaymentSession(sessionID); err != nil {
		r.log.Warn("delete payment session", "session_id", sessionID, "error", err)
	}
}
