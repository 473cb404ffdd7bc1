package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/microcloud/backend/internal/store"
)

type adminLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleAdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	admin, err := s.store.GetAdminByEmail(req.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if err != nil {
		s.log.Error("get admin", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": admin.ID,
		"role":     admin.Role,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		s.log.Error("sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if err := s.store.LogAdminEvent("Successful Login", admin.ID); err != nil {
		s.log.Warn("log admin event", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"token": signed, "role": admin.Role})
}

// adminAuth verifies the Bearer JWT on admin routes
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			c.Set("admin_id", claims["admin_id"])
			c.Set("role", claims["role"])
		}

		c.Next()
	}
}

func (s *Server) handleListOrders(c *gin.Context) {
	orders, err := s.store.ListOrders()
	if err != nil {
		s.log.Error("list orders", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	trxs, err := s.store.ListTransactions()
	if err != nil {
		s.log.Error("list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, trxs)
}

// handleListGaps surfaces payments that moved on the ledger without a
// matching order transition
func (s *Server) handleListGaps(c *gin.Context) {
	gaps, err := s.store.ListReconciliationGaps()
	if err != nil {
		s.log.Error("list reconciliation gaps", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gaps)
}

type cancelRequest struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) handleCancelSubscription(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	err := s.store.CancelSubscription(req.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}
	if err != nil {
		s.log.Error("cancel subscription", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription successfully cancelled"})
}

// --- Dashboard & audit trail ---

func (s *Server) handleDashboardStats(c *gin.Context) {
	stats, err := s.store.DashboardStats()
	if err != nil {
		s.log.Error("dashboard stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListAdminLogs(c *gin.Context) {
	logs, err := s.store.ListAdminLogs()
	if err != nil {
		s.log.Error("list admin logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// --- Customers ---

func (s *Server) handleListCustomers(c *gin.Context) {
	customers, err := s.store.ListCustomers()
	if err != nil {
		s.log.Error("list customers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, customers)
}

type updateCustomerRequest struct {
	CustomerID int64  `json:"customer_id" binding:"required"`
	FirstName  string `json:"first_name" binding:"required"`
	LastName   string `json:"last_name" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

// handleUpdateCustomer edits account fields and the subscription status in
// one request, mirroring the admin panel's edit form
func (s *Server) handleUpdateCustomer(c *gin.Context) {
	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	err := s.store.UpdateCustomer(store.CustomerOverview{
		CustomerID: req.CustomerID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Status:     req.Status,
	})
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}
	if err != nil {
		s.log.Error("update customer", "customer_id", req.CustomerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Customer updated successfully"})
}

func (s *Server) handleDeleteCustomer(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid customer id"})
		return
	}

	err = s.store.DeleteCustomer(customerID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
		return
	}
	if err != nil {
		s.log.Error("delete customer", "customer_id", customerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Customer deleted successfully"})
}

// --- Nodes ---

func (s *Server) handleListNodes(c *gin.Context) {
	nodes, err := s.store.ListNodes()
	if err != nil {
		s.log.Error("list nodes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, nodes)
}

type nodeRequest struct {
	NodeID   int64  `json:"node_id"`
	IP       string `json:"node_ip" binding:"required"`
	SSHPort  int    `json:"node_ssh_port" binding:"required"`
	RegionID int64  `json:"region_id" binding:"required"`
}

func (s *Server) handleCreateNode(c *gin.Context) {
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	nodeID, err := s.store.CreateNode(store.Node{
		IP:       req.IP,
		SSHPort:  req.SSHPort,
		RegionID: req.RegionID,
	})
	if err != nil {
		s.log.Error("create node", "node_ip", req.IP, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Node added successfully", "node_id": nodeID})
}

func (s *Server) handleUpdateNode(c *gin.Context) {
	var req nodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NodeID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	err := s.store.UpdateNode(store.Node{
		ID:       req.NodeID,
		IP:       req.IP,
		SSHPort:  req.SSHPort,
		RegionID: req.RegionID,
	})
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	if err != nil {
		s.log.Error("update node", "node_id", req.NodeID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Node updated successfully"})
}

// handleDeleteNode removes a node by the node_ip query parameter
func (s *Server) handleDeleteNode(c *gin.Context) {
	nodeIP := c.Query("node_ip")
	if nodeIP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: node_ip"})
		return
	}

	err := s.store.DeleteNode(nodeIP)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	if err != nil {
		s.log.Error("delete node", "node_ip", nodeIP, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Node deleted successfully"})
}

// --- Ticket support ---

func (s *Server) handleAdminListTicketMessages(c *gin.Context) {
	ticketID, err := strconv.ParseInt(c.Query("ticket_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: ticket_id"})
		return
	}

	msgs, err := s.store.ListTicketMessages(ticketID)
	if err != nil {
		s.log.Error("list ticket messages", "ticket_id", ticketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type adminReplyRequest struct {
	TicketID int64  `json:"ticket_id" binding:"required"`
	Content  string `json:"message_content" binding:"required"`
}

func (s *Server) handleAdminReplyTicket(c *gin.Context) {
	var req adminReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	msg, err := s.store.AddTicketMessage(req.TicketID, req.Content, true)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return
	}
	if err != nil {
		s.log.Error("add ticket reply", "ticket_id", req.TicketID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, msg)
}
