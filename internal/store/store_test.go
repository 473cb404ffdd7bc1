package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedOrder creates a region, a plan at the given price, and a customer with a
// pending subscription. Returns the new customer id.
func seedOrder(t *testing.T, s *Store, price float64) int64 {
	t.Helper()

	regionID, err := s.CreateRegion("Frankfurt", true)
	require.NoError(t, err)

	planID, err := s.CreatePlan(Plan{
		Name: "Starter", VCPU: 1, Memory: 2, Storage: 40, Bandwidth: 2, Price: price,
	})
	require.NoError(t, err)

	customerID, err := s.CreateOrder(Customer{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "$2a$10$fakehash",
		RegionID:  regionID,
	}, planID)
	require.NoError(t, err)

	return customerID
}

func TestCreateOrder_StartsPaymentPending(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	order, err := s.FindPendingOrder(customerID, 10.00)
	require.NoError(t, err)

	assert.Equal(t, customerID, order.CustomerID)
	assert.Equal(t, "Ada", order.FirstName)
	assert.Equal(t, "ada@example.com", order.Email)
	assert.Equal(t, "Starter", order.PlanName)
	assert.Equal(t, 10.00, order.Price)
	assert.Equal(t, StatusPaymentPending, order.Status)
	assert.Nil(t, order.RenewalDate)
}

func TestFindPendingOrder_Misses(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	// Wrong amount
	_, err := s.FindPendingOrder(customerID, 25.00)
	assert.ErrorIs(t, err, ErrNotFound)

	// Unknown customer
	_, err = s.FindPendingOrder(9999, 10.00)
	assert.ErrorIs(t, err, ErrNotFound)

	// Already paid
	_, err = s.ConfirmPayment(customerID, "sender", "recipient", 0.101, 10.00)
	require.NoError(t, err)
	_, err = s.FindPendingOrder(customerID, 10.00)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPayment(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	before := time.Now()
	subID, err := s.ConfirmPayment(customerID, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	require.NoError(t, err)
	require.NotZero(t, subID)

	orders, err := s.ListOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, StatusProvisioning, orders[0].Status)

	// Renewal lands one month out
	require.NotNil(t, orders[0].RenewalDate)
	wantRenewal := before.AddDate(0, 1, 0)
	assert.WithinDuration(t, wantRenewal, *orders[0].RenewalDate, time.Minute)

	trxs, err := s.ListTransactions()
	require.NoError(t, err)
	require.Len(t, trxs, 1)
	assert.Equal(t, "SenderAddr", trxs[0].FromAddress)
	assert.Equal(t, "RecipientAddr", trxs[0].ToAddress)
	assert.Equal(t, 0.101, trxs[0].AmountSOL)
	assert.Equal(t, 10.00, trxs[0].AmountUSD)
	assert.Equal(t, subID, trxs[0].SubscriptionID)
	assert.Equal(t, "First Payment", trxs[0].TrxType)
}

func TestConfirmPayment_SecondAttemptIsRejected(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	subID, err := s.ConfirmPayment(customerID, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	require.NoError(t, err)

	orders, err := s.ListOrders()
	require.NoError(t, err)
	firstRenewal := *orders[0].RenewalDate

	again, err := s.ConfirmPayment(customerID, "OtherSender", "RecipientAddr", 0.101, 10.00)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, subID, again)

	// No duplicate transaction, no renewal advance
	trxs, err := s.ListTransactions()
	require.NoError(t, err)
	assert.Len(t, trxs, 1)

	orders, err = s.ListOrders()
	require.NoError(t, err)
	assert.Equal(t, firstRenewal, *orders[0].RenewalDate)
}

func TestConfirmPayment_UnknownCustomer(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ConfirmPayment(4242, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelSubscription(t *testing.T) {
	s := newTestStore(t)
	seedOrder(t, s, 10.00)

	require.NoError(t, s.CancelSubscription("ada@example.com"))

	orders, err := s.ListOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, StatusCancelled, orders[0].Status)

	assert.ErrorIs(t, s.CancelSubscription("nobody@example.com"), ErrNotFound)
}

func TestPaidOrderInfo(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	_, err := s.PaidOrderInfo(customerID)
	assert.ErrorIs(t, err, ErrNotFound, "no info before a recorded payment")

	_, err = s.ConfirmPayment(customerID, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	require.NoError(t, err)

	info, err := s.PaidOrderInfo(customerID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", info.FirstName)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, "Frankfurt", info.RegionName)
	assert.Equal(t, "Starter", info.PlanName)
	assert.Equal(t, 10.00, info.AmountUSD)
	assert.WithinDuration(t, time.Now(), info.PurchaseDate, time.Minute)
}

func TestPaymentSessions(t *testing.T) {
	s := newTestStore(t)

	session := PaymentSession{
		ID:             "sess-1",
		CustomerID:     42,
		AmountUSD:      10.00,
		AmountSOL:      0.101,
		SpotPrice:      100,
		InitialBalance: 5.0,
		Recipient:      "RecipientAddr",
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.SavePaymentSession(session))

	got, err := s.GetPaymentSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.CustomerID, got.CustomerID)
	assert.Equal(t, session.InitialBalance, got.InitialBalance)
	assert.Equal(t, session.AmountSOL, got.AmountSOL)

	byCustomer, err := s.GetPaymentSessionByCustomer(42)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", byCustomer.ID)

	// Re-saving the same id replaces, not duplicates
	session.InitialBalance = 6.0
	require.NoError(t, s.SavePaymentSession(session))

	all, err := s.ListPaymentSessions()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 6.0, all[0].InitialBalance)

	require.NoError(t, s.DeletePaymentSession("sess-1"))
	_, err = s.GetPaymentSession("sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetPaymentSessionByCustomer(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconciliationGaps(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordReconciliationGap(ReconciliationGap{
		CustomerID:  42,
		FromAddress: "SenderAddr",
		AmountSOL:   0.101,
		AmountUSD:   10.00,
		Detail:      "database locked",
	}))

	gaps, err := s.ListReconciliationGaps()
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, int64(42), gaps[0].CustomerID)
	assert.Equal(t, "database locked", gaps[0].Detail)
	assert.NotZero(t, gaps[0].ID)
}

func TestRegions_OnlyAvailableListed(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateRegion("Frankfurt", true)
	require.NoError(t, err)
	_, err = s.CreateRegion("Sydney", false)
	require.NoError(t, err)

	regions, err := s.ListRegions()
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Frankfurt", regions[0].Name)
}

func TestAdmins(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateAdmin("ops@example.com", "$2a$10$fakehash", "admin")
	require.NoError(t, err)

	admin, err := s.GetAdminByEmail("ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, admin.ID)
	assert.Equal(t, "admin", admin.Role)

	_, err = s.GetAdminByEmail("ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.LogAdminEvent("Successful Login", id))
}

func TestListAdminLogs(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateAdmin("ops@example.com", "$2a$10$fakehash", "admin")
	require.NoError(t, err)

	require.NoError(t, s.LogAdminEvent("Successful Login", id))
	require.NoError(t, s.LogAdminEvent("Node Added", id))

	logs, err := s.ListAdminLogs()
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Node Added", logs[0].EventType, "newest first")
	assert.Equal(t, "Successful Login", logs[1].EventType)
	assert.Equal(t, id, logs[0].AdminID)
}

func TestCustomerAccounts(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	customer, err := s.GetCustomerByEmail("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, customerID, customer.ID)
	assert.Equal(t, "Ada", customer.FirstName)
	assert.Equal(t, "$2a$10$fakehash", customer.Password)

	_, err = s.GetCustomerByEmail("ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateCustomerPassword("ada@example.com", "$2a$10$newhash"))
	customer, err = s.GetCustomerByEmail("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$newhash", customer.Password)

	assert.ErrorIs(t, s.UpdateCustomerPassword("ghost@example.com", "$2a$10$newhash"), ErrNotFound)
}

func TestTickets(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	_, err := s.CreateTicket("ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	ticket, err := s.CreateTicket("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, customerID, ticket.CustomerID)
	assert.False(t, ticket.Resolved)

	got, err := s.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.CustomerID, got.CustomerID)

	_, err = s.GetTicket(9999)
	assert.ErrorIs(t, err, ErrNotFound)

	tickets, err := s.ListTicketsByEmail("ada@example.com")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, ticket.ID, tickets[0].ID)

	require.NoError(t, s.SetTicketResolved(ticket.ID, true))
	got, err = s.GetTicket(ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	assert.ErrorIs(t, s.SetTicketResolved(9999, true), ErrNotFound)
}

func TestTicketMessages(t *testing.T) {
	s := newTestStore(t)
	seedOrder(t, s, 10.00)

	ticket, err := s.CreateTicket("ada@example.com")
	require.NoError(t, err)

	_, err = s.AddTicketMessage(9999, "hello?", false)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.AddTicketMessage(ticket.ID, "My instance is unreachable", false)
	require.NoError(t, err)
	assert.False(t, first.AdminReply)

	reply, err := s.AddTicketMessage(ticket.ID, "Looking into it now", true)
	require.NoError(t, err)
	assert.True(t, reply.AdminReply)

	msgs, err := s.ListTicketMessages(ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "My instance is unreachable", msgs[0].Content, "oldest first")
	assert.Equal(t, "Looking into it now", msgs[1].Content)
	assert.True(t, msgs[1].AdminReply)
}

func TestNodes(t *testing.T) {
	s := newTestStore(t)

	regionID, err := s.CreateRegion("Frankfurt", true)
	require.NoError(t, err)

	nodeID, err := s.CreateNode(Node{IP: "10.0.0.1", SSHPort: 22, RegionID: regionID})
	require.NoError(t, err)

	nodes, err := s.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, nodeID, nodes[0].ID)
	assert.Equal(t, "10.0.0.1", nodes[0].IP)
	assert.Equal(t, "Frankfurt", nodes[0].RegionName)

	require.NoError(t, s.UpdateNode(Node{ID: nodeID, IP: "10.0.0.2", SSHPort: 2222, RegionID: regionID}))
	nodes, err = s.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "10.0.0.2", nodes[0].IP)
	assert.Equal(t, 2222, nodes[0].SSHPort)

	assert.ErrorIs(t, s.UpdateNode(Node{ID: 9999, IP: "10.9.9.9", SSHPort: 22, RegionID: regionID}), ErrNotFound)

	require.NoError(t, s.DeleteNode("10.0.0.2"))
	nodes, err = s.ListNodes()
	require.NoError(t, err)
	assert.Empty(t, nodes)

	assert.ErrorIs(t, s.DeleteNode("10.0.0.2"), ErrNotFound)
}

func TestCustomerServices(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	// Nothing deployed yet
	services, err := s.CustomerServices("ada@example.com")
	require.NoError(t, err)
	assert.Empty(t, services)

	subID, err := s.ConfirmPayment(customerID, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	require.NoError(t, err)

	regionID, err := s.CreateRegion("Helsinki", true)
	require.NoError(t, err)
	nodeID, err := s.CreateNode(Node{IP: "10.0.0.1", SSHPort: 22, RegionID: regionID})
	require.NoError(t, err)
	_, err = s.CreateInstance(subID, nodeID, "Running")
	require.NoError(t, err)

	services, err = s.CustomerServices("ada@example.com")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Starter", services[0].PlanName)
	assert.Equal(t, 1, services[0].VCPU)
	assert.Equal(t, "10.0.0.1", services[0].NodeIP)
	assert.Equal(t, "Running", services[0].InstanceStatus)
	require.NotNil(t, services[0].RenewalDate)
}

func TestCustomerInventory(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	customers, err := s.ListCustomers()
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Ada", customers[0].FirstName)
	assert.Equal(t, StatusPaymentPending, customers[0].Status)
	assert.Equal(t, "Starter", customers[0].PlanName)

	require.NoError(t, s.UpdateCustomer(CustomerOverview{
		CustomerID: customerID,
		FirstName:  "Augusta",
		LastName:   "King",
		Email:      "ada@example.com",
		Status:     StatusActive,
	}))

	customers, err = s.ListCustomers()
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Augusta", customers[0].FirstName)
	assert.Equal(t, StatusActive, customers[0].Status)

	assert.ErrorIs(t, s.UpdateCustomer(CustomerOverview{
		CustomerID: 9999, FirstName: "x", LastName: "y", Email: "z@example.com", Status: StatusActive,
	}), ErrNotFound)

	require.NoError(t, s.DeleteCustomer(customerID))
	assert.ErrorIs(t, s.DeleteCustomer(customerID), ErrNotFound)

	_, err = s.GetCustomerByEmail("ada@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDashboardStats(t *testing.T) {
	s := newTestStore(t)
	customerID := seedOrder(t, s, 10.00)

	_, err := s.ConfirmPayment(customerID, "SenderAddr", "RecipientAddr", 0.101, 10.00)
	require.NoError(t, err)
	require.NoError(t, s.UpdateCustomer(CustomerOverview{
		CustomerID: customerID,
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Status:     StatusActive,
	}))

	// A second customer still waiting on payment
	plans, err := s.ListPlans()
	require.NoError(t, err)
	_, err = s.CreateOrder(Customer{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Password:  "$2a$10$fakehash",
		RegionID:  1,
	}, plans[0].ID)
	require.NoError(t, err)

	regionID, err := s.CreateRegion("Helsinki", true)
	require.NoError(t, err)
	_, err = s.CreateNode(Node{IP: "10.0.0.1", SSHPort: 22, RegionID: regionID})
	require.NoError(t, err)

	_, err = s.CreateTicket("grace@example.com")
	require.NoError(t, err)

	stats, err := s.DashboardStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Customers)
	assert.Equal(t, 1, stats.ActiveSubscriptions)
	assert.Equal(t, 1, stats.PendingPayments)
	assert.Equal(t, 1, stats.OpenTickets)
	assert.Equal(t, 1, stats.Nodes)
	assert.Equal(t, 10.00, stats.RevenueUSD)
}
