package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/microcloud/backend/internal/reconcile"
	"github.com/microcloud/backend/internal/store"
)

// --- Catalog ---

func (s *Server) handleListPlans(c *gin.Context) {
	plans, err := s.store.ListPlans()
	if err != nil {
		s.log.Error("list plans", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (s *Server) handleListRegions(c *gin.Context) {
	regions, err := s.store.ListRegions()
	if err != nil {
		s.log.Error("list regions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, regions)
}

// --- Orders ---

// handleGetOrder validates that a pending order exists for the given
// customer and amount. The payment page calls this before starting a session.
func (s *Server) handleGetOrder(c *gin.Context) {
	customerIDStr := c.Query("customerId")
	planAmountStr := c.Query("planAmount")

	if customerIDStr == "" || planAmountStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required query parameters: customerId or planAmount",
		})
		return
	}

	customerID, err := strconv.ParseInt(customerIDStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customerId"})
		return
	}
	planAmount, err := strconv.ParseFloat(planAmountStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid planAmount"})
		return
	}

	order, err := s.store.FindPendingOrder(customerID, planAmount)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found for the provided customerId and planAmount",
		})
		return
	}
	if err != nil {
		s.log.Error("find pending order", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       store.StatusPaymentPending,
		"orderDetails": order,
	})
}

type createOrderRequest struct {
	Customer struct {
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		RegionID  int64  `json:"region_id" binding:"required"`
	} `json:"customer" binding:"required"`
	Subscription struct {
		PlanID int64 `json:"plan_id" binding:"required"`
	} `json:"subscription" binding:"required"`
}

// handleCreateOrder creates the customer and their Payment Pending
// subscription as one unit of work
func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order data"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Customer.Password), 10)
	if err != nil {
		s.log.Error("hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	customerID, err := s.store.CreateOrder(store.Customer{
		FirstName: req.Customer.FirstName,
		LastName:  req.Customer.LastName,
		Email:     req.Customer.Email,
		Password:  string(hashed),
		RegionID:  req.Customer.RegionID,
	}, req.Subscription.PlanID)
	if err != nil {
		s.log.Error("create order", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction failed"})
		return
	}

	s.log.Info("order created", "customer_id", customerID, "plan_id", req.Subscription.PlanID)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Order created successfully",
		"customerId": customerID,
	})
}

type patchOrderRequest struct {
	CustomerID  int64   `json:"customer_id" binding:"required"`
	FromAddress string  `json:"from_address" binding:"required"`
	ToAddress   string  `json:"to_address" binding:"required"`
	AmountSOL   float64 `json:"amount_sol" binding:"required"`
	AmountUSD   float64 `json:"amount_usd" binding:"required"`
}

// handlePatchOrder is the external state-commit step: transition to
// Provisioning plus the transaction record, atomically. It shares the store
// path with the reconciler, so an already-committed payment short-circuits
// instead of double-writing.
func (s *Server) handlePatchOrder(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if s.cfg.PatchAPIKey == "" || auth != "Bearer "+s.cfg.PatchAPIKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req patchOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	_, err := s.store.ConfirmPayment(req.CustomerID, req.FromAddress, req.ToAddress, req.AmountSOL, req.AmountUSD)
	if errors.Is(err, store.ErrAlreadyConfirmed) {
		c.JSON(http.StatusOK, gin.H{"message": "Order already confirmed"})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "No subscription found for the given customer_id"})
		return
	}
	if err != nil {
		s.log.Error("confirm payment", "customer_id", req.CustomerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transaction failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status and transaction updated successfully"})
}

// --- Payment sessions ---

type paymentSessionRequest struct {
	CustomerID string `json:"customerId"`
	PlanAmount string `json:"planAmount"`
}

// handleCreatePaymentSession starts (or resumes) ledger observation for an
// order. Workflow failures map onto HTTP statuses by cause.
func (s *Server) handleCreatePaymentSession(c *gin.Context) {
	var req paymentSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// The polling loop must outlive this request
	snap, err := s.reconciler.Start(s.baseCtx, req.CustomerID, req.PlanAmount)
	if err != nil {
		var sessErr *reconcile.SessionError
		if errors.As(err, &sessErr) {
			c.JSON(sessionErrorStatus(sessErr.Cause), gin.H{
				"error": sessErr.Message,
				"cause": sessErr.Cause,
			})
			return
		}
		s.log.Error("start payment session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

func sessionErrorStatus(cause reconcile.Cause) int {
	switch cause {
	case reconcile.CauseMissingParameters, reconcile.CauseInvalidAmount:
		return http.StatusBadRequest
	case reconcile.CauseOrderNotPending:
		return http.StatusNotFound
	case reconcile.CausePriceUnavailable, reconcile.CauseLedgerUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetPaymentSession(c *gin.Context) {
	snap, ok := s.reconciler.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment session not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleStopPaymentSession cancels polling when the payment page is torn
// down. The durable session row survives, so observation resumes on the next
// visit.
func (s *Server) handleStopPaymentSession(c *gin.Context) {
	s.reconciler.Stop(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// --- Email triggers ---

type sendOrderEmailRequest struct {
	To         string  `json:"to" binding:"required"`
	FirstName  string  `json:"firstName" binding:"required"`
	CustomerID int64   `json:"customerId" binding:"required"`
	Amount     float64 `json:"amount" binding:"required"`
}

func (s *Server) handleSendOrderEmail(c *gin.Context) {
	var req sendOrderEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	if err := s.mailer.SendOrderCreated(c.Request.Context(), req.To, req.FirstName, req.CustomerID, req.Amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email sent successfully"})
}

type sendPaymentEmailRequest struct {
	CustomerID int64 `json:"customerId" binding:"required"`
}

func (s *Server) handleSendPaymentEmail(c *gin.Context) {
	var req sendPaymentEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	err := s.mailer.SendPaymentConfirmed(c.Request.Context(), req.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No order found for this customer"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment confirmation email sent successfully"})
}
