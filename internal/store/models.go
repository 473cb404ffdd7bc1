package store

import "time"

// Subscription statuses. A subscription moves Payment Pending -> Provisioning
// on confirmed payment, then Active/Cancelled by administrative action.
const (
	StatusPaymentPending = "Payment Pending"
	StatusProvisioning   = "Provisioning"
	StatusActive         = "Active"
	StatusCancelled      = "Cancelled"
)

// Region is a datacenter location offered at checkout
type Region struct {
	ID        int64  `json:"region_id"`
	Name      string `json:"region_name"`
	Available bool   `json:"available"`
}

// Plan is a VPS hosting plan
type Plan struct {
	ID        int64   `json:"plan_id"`
	Name      string  `json:"name"`
	VCPU      int     `json:"vcpu"`
	Memory    int     `json:"memory"`
	Storage   int     `json:"storage"`
	Bandwidth int     `json:"bandwidth"`
	Price     float64 `json:"price"`
}

// Customer is a registered customer account
type Customer struct {
	ID        int64     `json:"customer_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash
	RegionID  int64     `json:"region_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription ties a customer to a plan
type Subscription struct {
	ID          int64      `json:"sub_id"`
	CustomerID  int64      `json:"customer_id"`
	PlanID      int64      `json:"plan_id"`
	Status      string     `json:"status"`
	RenewalDate *time.Time `json:"renewal_date,omitempty"`
}

// Order is the customer+subscription+plan join the payment flow operates on.
// It is identified by (customer_id, plan price); at most one order per pair
// is in Payment Pending at a time.
type Order struct {
	CustomerID  int64      `json:"customer_id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	SubID       int64      `json:"sub_id"`
	PlanID      int64      `json:"plan_id"`
	PlanName    string     `json:"plan_name"`
	Price       float64    `json:"price"`
	Status      string     `json:"status"`
	RenewalDate *time.Time `json:"renewal_date,omitempty"`
}

// Transaction is an append-only ledger entry recorded on confirmed payment
type Transaction struct {
	ID             int64     `json:"trx_id"`
	FromAddress    string    `json:"from_address"`
	ToAddress      string    `json:"to_address"`
	AmountSOL      float64   `json:"amount_sol"`
	AmountUSD      float64   `json:"amount_usd"`
	Timestamp      time.Time `json:"timestamp"`
	SubscriptionID int64     `json:"subscription_id"`
	TrxType        string    `json:"trx_type"`
}

// PaymentSession is the durable anchor for an in-flight payment observation.
// Persisting it means a reconnect or restart resumes from the original
// anchor balance instead of re-anchoring at the current one.
type PaymentSession struct {
	ID             string    `json:"session_id"`
	CustomerID     int64     `json:"customer_id"`
	AmountUSD      float64   `json:"amount_usd"`
	AmountSOL      float64   `json:"amount_sol"`
	SpotPrice      float64   `json:"spot_price"`
	InitialBalance float64   `json:"initial_balance"`
	Recipient      string    `json:"recipient"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReconciliationGap records a payment that was observed on the ledger but
// whose database commit failed. Rows here mean real funds moved without a
// matching state transition and require manual follow-up.
type ReconciliationGap struct {
	ID          int64     `json:"gap_id"`
	CustomerID  int64     `json:"customer_id"`
	FromAddress string    `json:"from_address"`
	AmountSOL   float64   `json:"amount_sol"`
	AmountUSD   float64   `json:"amount_usd"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaidOrderInfo feeds the payment confirmation email
type PaidOrderInfo struct {
	CustomerID   int64     `json:"customer_id"`
	FirstName    string    `json:"first_name"`
	Email        string    `json:"email"`
	RegionName   string    `json:"region_name"`
	PlanName     string    `json:"plan_name"`
	AmountUSD    float64   `json:"amount_usd"`
	PurchaseDate time.Time `json:"purchase_date"`
}

// Admin is an admin panel account
type Admin struct {
	ID       int64  `json:"admin_id"`
	Email    string `json:"email"`
	Password string `json:"-"` // bcrypt hash
	Role     string `json:"role"`
}

// AdminLog is one admin audit trail entry
type AdminLog struct {
	ID        int64     `json:"log_id"`
	EventType string    `json:"event_type"`
	AdminID   int64     `json:"admin_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Node is a hypervisor host that customer instances are deployed onto
type Node struct {
	ID         int64  `json:"node_id"`
	IP         string `json:"node_ip"`
	SSHPort    int    `json:"node_ssh_port"`
	RegionID   int64  `json:"region_id"`
	RegionName string `json:"region_name,omitempty"`
}

// Instance is a provisioned VPS tied to a subscription and the node hosting
// it. Rows are written by the provisioner after payment confirmation.
type Instance struct {
	ID             int64  `json:"instance_id"`
	SubscriptionID int64  `json:"subscription_id"`
	NodeID         int64  `json:"node_id"`
	Status         string `json:"instance_status"`
}

// Ticket is a customer support ticket
type Ticket struct {
	ID         int64     `json:"ticket_id"`
	CustomerID int64     `json:"customer_id"`
	CreatedAt  time.Time `json:"create_date"`
	Resolved   bool      `json:"resolved"`
}

// TicketMessage is one message in a ticket's thread; AdminReply marks which
// side wrote it
type TicketMessage struct {
	ID         int64     `json:"message_id"`
	TicketID   int64     `json:"ticket_id"`
	Content    string    `json:"message_content"`
	AdminReply bool      `json:"admin_reply"`
	CreatedAt  time.Time `json:"created_at"`
}

/// ServiceOverview is one row of the customer dashboard: the subscription, its
// plan, and the instance serving it
type ServiceOverview struct {
	RenewalDate    *time.Time `json:"renewal_date,omitempty"`
	PlanName       string     `json:"plan_name"`
	VCPU           int        `json:"vcpu"`
	Memory         int        `json:"memory"`
	Storage        int        `json:"storage"`
	NodeIP         string     `json:"node_ip"`
	InstanceStatus string     `json:"instance_status"`
}

// CustomerOverview is the admin customer listing row
type CustomerOverview struct {
	CustomerID int64  `json:"customer_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Status     string `json:"status"`
	PlanName   string `json:"plan_name"`
}

// DashboardStats holds the admin dashboard aggregates
type DashboardStats struct {
	Customers           int     `json:"customers"`
	ActiveSubscriptions int     `json:"active_subscriptions"`
	PendingPayments     int     `json:"pending_payments"`
	OpenTickets         int     `json:"open_tickets"`
	Nodes               int     `json:"nodes"`
	RevenueUSD          float64 `json:"revenue_usd"`
}
