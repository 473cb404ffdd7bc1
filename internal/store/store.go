package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store and initializes the database schema
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS regions (
			region_id INTEGER PRIMARY KEY AUTOINCREMENT,
			region_name TEXT NOT NULL,
			available INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS plans (
			plan_id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_name TEXT NOT NULL,
			vcpu INTEGER NOT NULL,
			memory INTEGER NOT NULL,
			storage INTEGER NOT NULL,
			bandwidth INTEGER NOT NULL,
			price REAL NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS customers (
			customer_id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			password TEXT NOT NULL,
			region_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			sub_id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			plan_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			renewal_date INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_customer ON subscriptions(customer_id)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			trx_id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_address TEXT NOT NULL,
			to_address TEXT NOT NULL,
			amount_sol REAL NOT NULL,
			amount_usd REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL,
			trx_type TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS payment_sessions (
			session_id TEXT PRIMARY KEY,
			customer_id INTEGER NOT NULL,
			amount_usd REAL NOT NULL,
			amount_sol REAL NOT NULL,
			spot_price REAL NOT NULL,
			initial_balance REAL NOT NULL,
			recipient TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_gaps (
			gap_id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			amount_sol REAL NOT NULL,
			amount_usd REAL NOT NULL,
			detail TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS admins (
			admin_id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'support'
		)`,

		`CREATE TABLE IF NOT EXISTS admin_logs (
			log_id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			admin_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS nodes (
			node_id INTEGER PRIMARY KEY AUTOINCREMENT,
			node_ip TEXT NOT NULL UNIQUE,
			node_ssh_port INTEGER NOT NULL,
			region_id INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS instances (
			instance_id INTEGER PRIMARY KEY AUTOINCREMENT,
			subscription_id INTEGER NOT NULL,
			node_id INTEGER NOT NULL,
			instance_status TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id INTEGER NOT NULL,
			create_date INTEGER NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets(customer_id)`,

		`CREATE TABLE IF NOT EXISTS ticket_messages (
			message_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_id INTEGER NOT NULL,
			message_content TEXT NOT NULL,
			admin_reply INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket ON ticket_messages(ticket_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Orders ---

// CreateOrder inserts the customer and their subscription as one unit of
// work. The subscription starts in Payment Pending. Returns the new
// customer id.
func (s *Store) CreateOrder(c Customer, planID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	result, err := tx.Exec(
		`INSERT INTO customers (first_name, last_name, email, password, region_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.FirstName, c.LastName, c.Email, c.Password, c.RegionID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert customer: %w", err)
	}

	customerID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(
		`INSERT INTO subscriptions (customer_id, plan_id, status) VALUES (?, ?, ?)`,
		customerID, planID, StatusPaymentPending,
	)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return customerID, nil
}

// FindPendingOrder returns the order for (customerID, planAmount) if and only
// if it is still awaiting payment. This is the lookup that authorizes a
// payment session.
func (s *Store) FindPendingOrder(customerID int64, planAmount float64) (*Order, error) {
	var o Order
	var renewal sql.NullInt64

	err := s.db.QueryRow(
		`SELECT c.customer_id, c.first_name, c.last_name, c.email,
		        sub.sub_id, p.plan_id, p.plan_name, p.price, sub.status, sub.renewal_date
		 FROM subscriptions sub
		 JOIN customers c ON c.customer_id = sub.customer_id
		 JOIN plans p ON p.plan_id = sub.plan_id
		 WHERE sub.customer_id = ? AND p.price = ? AND sub.status = ?`,
		customerID, planAmount, StatusPaymentPending,
	).Scan(&o.CustomerID, &o.FirstName, &o.LastName, &o.Email,
		&o.SubID, &o.PlanID, &o.PlanName, &o.Price, &o.Status, &renewal)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if renewal.Valid {
		t := time.Unix(renewal.Int64, 0)
		o.RenewalDate = &t
	}

	return &o, nil
}

// ConfirmPayment transitions the customer's subscription to Provisioning and
// appends the transaction record in a single database transaction. The status
// update is conditional on Payment Pending, so a second confirmation attempt
// (two tabs, a resumed session) hits zero rows and gets ErrAlreadyConfirmed
// without a duplicate transaction row or a double renewal-date advance.
func (s *Store) ConfirmPayment(customerID int64, fromAddr, toAddr string, amountSOL, amountUSD float64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	renewal := now.AddDate(0, 1, 0).Unix()

	result, err := tx.Exec(
		`UPDATE subscriptions SET status = ?, renewal_date = ?
		 WHERE customer_id = ? AND status = ?`,
		StatusProvisioning, renewal, customerID, StatusPaymentPending,
	)
	if err != nil {
		return 0, fmt.Errorf("update subscription: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var subID int64
		err := tx.QueryRow(
			`SELECT sub_id FROM subscriptions WHERE customer_id = ?`, customerID,
		).Scan(&subID)
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		return subID, ErrAlreadyConfirmed
	}

	var subID int64
	if err := tx.QueryRow(
		`SELECT sub_id FROM subscriptions WHERE customer_id = ?`, customerID,
	).Scan(&subID); err != nil {
		return 0, fmt.Errorf("select subscription: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO transactions (from_address, to_address, amount_sol, amount_usd, timestamp, subscription_id, trx_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fromAddr, toAddr, amountSOL, amountUSD, now.Unix(), subID, "First Payment",
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return subID, nil
}

// CancelSubscription cancels the subscription of the customer with the given
// email
func (s *Store) CancelSubscription(email string) error {
	var customerID int64
	err := s.db.QueryRow(
		`SELECT customer_id FROM customers WHERE email = ?`, email,
	).Scan(&customerID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`UPDATE subscriptions SET status = ? WHERE customer_id = ?`,
		StatusCancelled, customerID,
	)
	return err
}

// ListOrders returns all orders, newest customers first
func (s *Store) ListOrders() ([]Order, error) {
	rows, err := s.db.Query(
		`SELECT c.customer_id, c.first_name, c.last_name, c.email,
		        sub.sub_id, p.plan_id, p.plan_name, p.price, sub.status, sub.renewal_date
		 FROM subscriptions sub
		 JOIN customers c ON c.customer_id = sub.customer_id
		 JOIN plans p ON p.plan_id = sub.plan_id
		 ORDER BY c.customer_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		var renewal sql.NullInt64

		err := rows.Scan(&o.CustomerID, &o.FirstName, &o.LastName, &o.Email,
			&o.SubID, &o.PlanID, &o.PlanName, &o.Price, &o.Status, &renewal)
		if err != nil {
			return nil, err
		}

		if renewal.Valid {
			t := time.Unix(renewal.Int64, 0)
			o.RenewalDate = &t
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// PaidOrderInfo returns the details needed for the payment confirmation
// email: the customer's latest recorded payment joined with plan and region.
func (s *Store) PaidOrderInfo(customerID int64) (*PaidOrderInfo, error) {
	var info PaidOrderInfo
	var purchased int64

	err := s.db.QueryRow(
		`SELECT c.customer_id, c.first_name, c.email, r.region_name, p.plan_name, t.amount_usd, t.timestamp
		 FROM transactions t
		 JOIN subscriptions sub ON sub.sub_id = t.subscription_id
		 JOIN customers c ON c.customer_id = sub.customer_id
		 JOIN plans p ON p.plan_id = sub.plan_id
		 JOIN regions r ON r.region_id = c.region_id
		 WHERE c.customer_id = ?
		 ORDER BY t.trx_id DESC LIMIT 1`,
		customerID,
	).Scan(&info.CustomerID, &info.FirstName, &info.Email, &info.RegionName,
		&info.PlanName, &info.AmountUSD, &purchased)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	info.PurchaseDate = time.Unix(purchased, 0)
	return &info, nil
}

// --- Transactions ---

// ListTransactions returns all recorded payments, newest first
func (s *Store) ListTransactions() ([]Transaction, error) {
	rows, err := s.db.Query(
		`SELECT trx_id, from_address, to_address, amount_sol, amount_usd, timestamp, subscription_id, trx_type
		 FROM transactions ORDER BY trx_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trxs []Transaction
	for rows.Next() {
		var t Transaction
		var ts int64
		err := rows.Scan(&t.ID, &t.FromAddress, &t.ToAddress, &t.AmountSOL,
			&t.AmountUSD, &ts, &t.SubscriptionID, &t.TrxType)
		if err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(ts, 0)
		trxs = append(trxs, t)
	}

	return trxs, rows.Err()
}

// --- Payment sessions ---

// SavePaymentSession persists a session's anchor state so observation can
// resume across reloads and restarts
func (s *Store) SavePaymentSession(p PaymentSession) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO payment_sessions
		 (session_id, customer_id, amount_usd, amount_sol, spot_price, initial_balance, recipient, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CustomerID, p.AmountUSD, p.AmountSOL, p.SpotPrice,
		p.InitialBalance, p.Recipient, p.CreatedAt.Unix(),
	)
	return err
}

// GetPaymentSession returns a persisted session by id
func (s *Store) GetPaymentSession(id string) (*PaymentSession, error) {
	var p PaymentSession
	var created int64

	err := s.db.QueryRow(
		`SELECT session_id, customer_id, amount_usd, amount_sol, spot_price, initial_balance, recipient, created_at
		 FROM payment_sessions WHERE session_id = ?`, id,
	).Scan(&p.ID, &p.CustomerID, &p.AmountUSD, &p.AmountSOL, &p.SpotPrice,
		&p.InitialBalance, &p.Recipient, &created)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// GetPaymentSessionByCustomer returns the persisted session for a customer,
// if any. A customer has at most one session in flight.
func (s *Store) GetPaymentSessionByCustomer(customerID int64) (*PaymentSession, error) {
	var p PaymentSession
	var created int64

	err := s.db.QueryRow(
		`SELECT session_id, customer_id, amount_usd, amount_sol, spot_price, initial_balance, recipient, created_at
		 FROM payment_sessions WHERE customer_id = ? ORDER BY created_at DESC LIMIT 1`,
		customerID,
	).Scan(&p.ID, &p.CustomerID, &p.AmountUSD, &p.AmountSOL, &p.SpotPrice,
		&p.InitialBalance, &p.Recipient, &created)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// ListPaymentSessions returns every persisted session
func (s *Store) ListPaymentSessions() ([]PaymentSession, error) {
	rows, err := s.db.Query(
		`SELECT session_id, customer_id, amount_usd, amount_sol, spot_price, initial_balance, recipient, created_at
		 FROM payment_sessions`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []PaymentSession
	for rows.Next() {
		var p PaymentSession
		var created int64
		err := rows.Scan(&p.ID, &p.CustomerID, &p.AmountUSD, &p.AmountSOL,
			&p.SpotPrice, &p.InitialBalance, &p.Recipient, &created)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		sessions = append(sessions, p)
	}

	return sessions, rows.Err()
}

// DeletePaymentSession removes a persisted session
func (s *Store) DeletePaymentSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM payment_sessions WHERE session_id = ?`, id)
	return err
}

// --- Reconciliation gaps ---

// RecordReconciliationGap durably records a confirmed payment whose database
// commit failed. The transient error channel back to the payment page is not
// enough once real funds have moved.
func (s *Store) RecordReconciliationGap(g ReconciliationGap) error {
	_, err := s.db.Exec(
		`INSERT INTO reconciliation_gaps (customer_id, from_address, amount_sol, amount_usd, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.CustomerID, g.FromAddress, g.AmountSOL, g.AmountUSD, g.Detail, time.Now().Unix(),
	)
	return err
}

// ListReconciliationGaps returns unresolved gaps, oldest first
func (s *Store) ListReconciliationGaps() ([]ReconciliationGap, error) {
	rows, err := s.db.Query(
		`SELECT gap_id, customer_id, from_address, amount_sol, amount_usd, detail, created_at
		 FROM reconciliation_gaps ORDER BY gap_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []ReconciliationGap
	for rows.Next() {
		var g ReconciliationGap
		var created int64
		err := rows.Scan(&g.ID, &g.CustomerID, &g.FromAddress, &g.AmountSOL,
			&g.AmountUSD, &g.Detail, &created)
		if err != nil {
			return nil, err
		}
		g.CreatedAt = time.Unix(created, 0)
		gaps = append(gaps, g)
	}

	return gaps, rows.Err()
}

// --- Catalog ---

// ListPlans returns all hosting plans
func (s *Store) ListPlans() ([]Plan, error) {
	rows, err := s.db.Query(
		`SELECT plan_id, plan_name, vcpu, memory, storage, bandwidth, price FROM plans`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.VCPU, &p.Memory, &p.Storage, &p.Bandwidth, &p.Price); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// CreatePlan adds a hosting plan
func (s *Store) CreatePlan(p Plan) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO plans (plan_name, vcpu, memory, storage, bandwidth, price) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.VCPU, p.Memory, p.Storage, p.Bandwidth, p.Price,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListRegions returns regions currently open for orders
func (s *Store) ListRegions() ([]Region, error) {
	rows, err := s.db.Query(
		`SELECT region_id, region_name, available FROM regions WHERE available = 1`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		var r Region
		var available int
		if err := rows.Scan(&r.ID, &r.Name, &available); err != nil {
			return nil, err
		}
		r.Available = available == 1
		regions = append(regions, r)
	}

	return regions, rows.Err()
}

// CreateRegion adds a region
func (s *Store) CreateRegion(name string, available bool) (int64, error) {
	av := 0
	if available {
		av = 1
	}
	result, err := s.db.Exec(
		`INSERT INTO regions (region_name, available) VALUES (?, ?)`, name, av,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// --- Admins ---

// GetAdminByEmail returns an admin account by email
func (s *Store) GetAdminByEmail(email string) (*Admin, error) {
	var a Admin
	err := s.db.QueryRow(
		`SELECT admin_id, email, password, role FROM admins WHERE email = ?`, email,
	).Scan(&a.ID, &a.Email, &a.Password, &a.Role)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// CreateAdmin adds an admin account. Password must already be hashed.
func (s *Store) CreateAdmin(email, passwordHash, role string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO admins (email, password, role) VALUES (?, ?, ?)`,
		email, passwordHash, role,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LogAdminEvent appends an admin audit log entry
func (s *Store) LogAdminEvent(eventType string, adminID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO admin_logs (event_type, admin_id, created_at) VALUES (?, ?, ?)`,
		eventType, adminID, time.Now().Unix(),
	)
	return err
}

// ListAdminLogs returns the admin audit trail, newest first
func (s *Store) ListAdminLogs() ([]AdminLog, error) {
	rows, err := s.db.Query(
		`SELECT log_id, event_type, admin_id, created_at FROM admin_logs ORDER BY log_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AdminLog
	for rows.Next() {
		var l AdminLog
		var created int64
		if err := rows.Scan(&l.ID, &l.EventType, &l.AdminID, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = time.Unix(created, 0)
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// --- Customer portal ---

// GetCustomerByEmail returns a customer account, bcrypt hash included, for
// portal authentication
func (s *Store) GetCustomerByEmail(email string) (*Customer, error) {
	var c Customer
	var created int64

	err := s.db.QueryRow(
		`SELECT customer_id, first_name, last_name, email, password, region_id, created_at
		 FROM customers WHERE email = ?`, email,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Password, &c.RegionID, &created)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}

// UpdateCustomerPassword replaces a customer's password hash
func (s *Store) UpdateCustomerPassword(email, passwordHash string) error {
	result, err := s.db.Exec(
		`UPDATE customers SET password = ? WHERE email = ?`, passwordHash, email,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CustomerServices returns the customer dashboard rows: each subscription with
// its plan and the instance serving it
func (s *Store) CustomerServices(email string) ([]ServiceOverview, error) {
	rows, err := s.db.Query(
		`SELECT sub.renewal_date, p.plan_name, p.vcpu, p.memory, p.storage, n.node_ip, i.instance_status
		 FROM customers c
		 JOIN subscriptions sub ON sub.customer_id = c.customer_id
		 JOIN plans p ON p.plan_id = sub.plan_id
		 JOIN instances i ON i.subscription_id = sub.sub_id
		 JOIN nodes n ON n.node_id = i.node_id
		 WHERE c.email = ?`, email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []ServiceOverview
	for rows.Next() {
		var sv ServiceOverview
		var renewal sql.NullInt64

		err := rows.Scan(&renewal, &sv.PlanName, &sv.VCPU, &sv.Memory, &sv.Storage,
			&sv.NodeIP, &sv.InstanceStatus)
		if err != nil {
			return nil, err
		}

		if renewal.Valid {
			t := time.Unix(renewal.Int64, 0)
			sv.RenewalDate = &t
		}
		services = append(services, sv)
	}

	return services, rows.Err()
}

// --- Tickets ---

// CreateTicket opens a support ticket for the customer with the given email
func (s *Store) CreateTicket(email string) (*Ticket, error) {
	var customerID int64
	err := s.db.QueryRow(
		`SELECT customer_id FROM customers WHERE email = ?`, email,
	).Scan(&customerID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO tickets (customer_id, create_date, resolved) VALUES (?, ?, 0)`,
		customerID, now.Unix(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Ticket{ID: id, CustomerID: customerID, CreatedAt: now, Resolved: false}, nil
}

// GetTicket returns a ticket by id
func (s *Store) GetTicket(ticketID int64) (*Ticket, error) {
	var t Ticket
	var created int64
	var resolved int

	err := s.db.QueryRow(
		`SELECT ticket_id, customer_id, create_date, resolved FROM tickets WHERE ticket_id = ?`,
		ticketID,
	).Scan(&t.ID, &t.CustomerID, &created, &resolved)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.CreatedAt = time.Unix(created, 0)
	t.Resolved = resolved == 1
	return &t, nil
}

// ListTicketsByEmail returns a customer's tickets, newest first
func (s *Store) ListTicketsByEmail(email string) ([]Ticket, error) {
	rows, err := s.db.Query(
		`SELECT t.ticket_id, t.customer_id, t.create_date, t.resolved
		 FROM tickets t
		 JOIN customers c ON c.customer_id = t.customer_id
		 WHERE c.email = ?
		 ORDER BY t.ticket_id DESC`, email,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var t Ticket
		var created int64
		var resolved int
		if err := rows.Scan(&t.ID, &t.CustomerID, &created, &resolved); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(created, 0)
		t.Resolved = resolved == 1
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

// SetTicketResolved updates a ticket's resolved flag
func (s *Store) SetTicketResolved(ticketID int64, resolved bool) error {
	rv := 0
	if resolved {
		rv = 1
	}
	result, err := s.db.Exec(
		`UPDATE tickets SET resolved = ? WHERE ticket_id = ?`, rv, ticketID,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTicketMessage appends a message to a ticket's thread
func (s *Store) AddTicketMessage(ticketID int64, content string, adminReply bool) (*TicketMessage, error) {
	if _, err := s.GetTicket(ticketID); err != nil {
		return nil, err
	}

	ar := 0
	if adminReply {
		ar = 1
	}
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO ticket_messages (ticket_id, message_content, admin_reply, created_at)
		 VALUES (?, ?, ?, ?)`,
		ticketID, content, ar, now.Unix(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &TicketMessage{
		ID:         id,
		TicketID:   ticketID,
		Content:    content,
		AdminReply: adminReply,
		CreatedAt:  now,
	}, nil
}

// ListTicketMessages returns a ticket's thread, oldest first
func (s *Store) ListTicketMessages(ticketID int64) ([]TicketMessage, error) {
	rows, err := s.db.Query(
		`SELECT message_id, ticket_id, message_content, admin_reply, created_at
		 FROM ticket_messages WHERE ticket_id = ? ORDER BY message_id`, ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []TicketMessage
	for rows.Next() {
		var m TicketMessage
		var ar int
		var created int64
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Content, &ar, &created); err != nil {
			return nil, err
		}
		m.AdminReply = ar == 1
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// --- Nodes & instances ---

// ListNodes returns all hypervisor nodes with their region names
func (s *Store) ListNodes() ([]Node, error) {
	rows, err := s.db.Query(
		`SELECT n.node_id, n.node_ip, n.node_ssh_port, n.region_id, r.region_name
		 FROM nodes n
		 JOIN regions r ON r.region_id = n.region_id
		 ORDER BY n.node_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.IP, &n.SSHPort, &n.RegionID, &n.RegionName); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	return nodes, rows.Err()
}

// CreateNode registers a hypervisor node
func (s *Store) CreateNode(n Node) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO nodes (node_ip, node_ssh_port, region_id) VALUES (?, ?, ?)`,
		n.IP, n.SSHPort, n.RegionID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateNode edits a node's address, port and region
func (s *Store) UpdateNode(n Node) error {
	result, err := s.db.Exec(
		`UPDATE nodes SET node_ip = ?, node_ssh_port = ?, region_id = ? WHERE node_id = ?`,
		n.IP, n.SSHPort, n.RegionID, n.ID,
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNode removes a node by its address
func (s *Store) DeleteNode(nodeIP string) error {
	result, err := s.db.Exec(`DELETE FROM nodes WHERE node_ip = ?`, nodeIP)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateInstance records a provisioned VPS on a node. Called by the
// provisioner once a paid subscription has been deployed.
func (s *Store) CreateInstance(subscriptionID, nodeID int64, status string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO instances (subscription_id, node_id, instance_status) VALUES (?, ?, ?)`,
		subscriptionID, nodeID, status,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// --- Admin inventory ---

// ListCustomers returns the admin customer listing: account fields joined
// with subscription status and plan
func (s *Store) ListCustomers() ([]CustomerOverview, error) {
	rows, err := s.db.Query(
		`SELECT c.customer_id, c.first_name, c.last_name, c.email, sub.status, p.plan_name
		 FROM customers c
		 JOIN subscriptions sub ON sub.customer_id = c.customer_id
		 JOIN plans p ON p.plan_id = sub.plan_id
		 ORDER BY c.customer_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []CustomerOverview
	for rows.Next() {
		var co CustomerOverview
		err := rows.Scan(&co.CustomerID, &co.FirstName, &co.LastName, &co.Email,
			&co.Status, &co.PlanName)
		if err != nil {
			return nil, err
		}
		customers = append(customers, co)
	}

	return customers, rows.Err()
}

// UpdateCustomer edits a customer's account fields and their subscription
// status as one unit of work
func (s *Store) UpdateCustomer(co CustomerOverview) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE customers SET first_name = ?, last_name = ?, email = ? WHERE customer_id = ?`,
		co.FirstName, co.LastName, co.Email, co.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(
		`UPDATE subscriptions SET status = ? WHERE customer_id = ?`,
		co.Status, co.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	return tx.Commit()
}

// DeleteCustomer removes a customer account
func (s *Store) DeleteCustomer(customerID int64) error {
	result, err := s.db.Exec(`DELETE FROM customers WHERE customer_id = ?`, customerID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DashboardStats returns the admin dashboard aggregates
func (s *Store) DashboardStats() (*DashboardStats, error) {
	var st DashboardStats

	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM subscriptions WHERE status = ?),
			(SELECT COUNT(*) FROM subscriptions WHERE status = ?),
			(SELECT COUNT(*) FROM tickets WHERE resolved = 0),
			(SELECT COUNT(*) FROM nodes),
			(SELECT COALESCE(SUM(amount_usd), 0) FROM transactions)`,
		StatusActive, StatusPaymentPending,
	).Scan(&st.Customers, &st.ActiveSubscriptions, &st.PendingPayments,
		&st.OpenTickets, &st.Nodes, &st.RevenueUSD)
	if err != nil {
		return nil, err
	}

	return &st, nil
}
