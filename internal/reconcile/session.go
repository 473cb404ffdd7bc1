package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a payment session's position in its lifecycle
type State string

const (
	StateInitializing    State = "Initializing"
	StateValidating      State = "Validating"
	StateAwaitingPayment State = "Awaiting Payment"
	StateConfirming      State = "Confirming"
	StateConfirmed       State = "Confirmed"
	StateFailed          State = "Failed"
)

// Cause classifies why a session failed
type Cause string

const (
	CauseMissingParameters Cause = "MissingParameters"
	CauseInvalidAmount     Cause = "InvalidAmount"
	CauseOrderNotPending   Cause = "OrderNotPending"
	CausePriceUnavailable  Cause = "PriceUnavailable"
	CauseLedgerUnavailable Cause = "LedgerUnavailable"
	CauseCommitFailed      Cause = "CommitFailed"
)

// SessionError is a session failure with its cause and a user-facing message
type SessionError struct {
	Cause   Cause
	Message string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cause, e.Message)
}

// Session is one customer's in-flight payment observation. The durable parts
// (anchor balance, expected amount) are mirrored in the store; the Session
// itself holds the live polling state.
type Session struct {
	ID         string
	CustomerID int64
	AmountUSD  float64
	AmountSOL  float64
	SpotPrice  float64
	Recipient  string
	CreatedAt  time.Time

	mu             sync.Mutex
	state          State
	cause          Cause
	errMsg         string
	initialBalance float64
	currentBalance float64
	cancel         context.CancelFunc
}

// Snapshot is the read-only view of a session returned to API clients
type Snapshot struct {
	ID             string  `json:"session_id"`
	CustomerID     int64   `json:"customer_id"`
	State          State   `json:"state"`
	Cause          Cause   `json:"cause,omitempty"`
	Error          string  `json:"error,omitempty"`
	AmountUSD      float64 `json:"amount_usd"`
	AmountSOL      float64 `json:"amount_sol"`
	SpotPrice      float64 `json:"spot_price"`
	Recipient      string  `json:"recipient"`
	InitialBalance float64 `json:"initial_balance"`
	CurrentBalance float64 `json:"current_balance"`
	Received       float64 `json:"received"`
}

// Snapshot returns a consistent copy of the session's current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:             s.ID,
		CustomerID:     s.CustomerID,
		State:          s.state,
		Cause:          s.cause,
		Error:          s.errMsg,
		AmountUSD:      s.AmountUSD,
		AmountSOL:      s.AmountSOL,
		SpotPrice:      s.SpotPrice,
		Recipient:      s.Recipient,
		InitialBalance: s.initialBalance,
		CurrentBalance: s.currentBalance,
		Received:       s.currentBalance - s.initialBalance,
	}
}

// State returns the session's current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session from one state to another, returning false if
// the session was not in the expected state. This is the guard that keeps a
// borderline reading observed by two pollers from double-firing Confirming.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) fail(cause Cause, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.cause = cause
	s.errMsg = msg
}

func (s *Session) setBalances(initial, current float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialBalance = initial
	s.currentBalance = current
}

func (s *Session) setCurrentBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentBalance = balance
}

func (s *Session) anchorBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialBalance
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// stop cancels the session's polling loop if it is running
func (s *Session) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
