package api

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/microcloud/backend/internal/store"
)

const otpTTL = 10 * time.Minute

// otpStore holds pending password reset codes, keyed by email. Codes are
// short-lived and single-use, so in-memory is enough.
type otpStore struct {
	mu    sync.Mutex
	codes map[string]otpEntry
}

type otpEntry struct {
	code    string
	expires time.Time
}

func newOTPStore() *otpStore {
	return &otpStore{codes: make(map[string]otpEntry)}
}

func (o *otpStore) put(email, code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[email] = otpEntry{code: code, expires: time.Now().Add(otpTTL)}
}

func (o *otpStore) check(email, code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.codes[email]
	return ok && entry.code == code && time.Now().Before(entry.expires)
}

func (o *otpStore) consume(email string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.codes, email)
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900_000))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(int(n.Int64() + 100_000)), nil
}

// --- Authentication ---

type customerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleCustomerLogin(c *gin.Context) {
	var req customerLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	customer, err := s.store.GetCustomerByEmail(req.Email)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		s.log.Error("get customer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(customer.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": customer.Email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		s.log.Error("sign token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": signed, "email": customer.Email})
}

// customerAuth verifies the Bearer JWT on portal routes and stores the
// authenticated email on the request context
func (s *Server) customerAuth() gin.HandlerFunc {
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

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		email, ok := claims["email"].(string)
		if !ok || email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("email", email)
		c.Next()
	}
}

func customerEmail(c *gin.Context) string {
	return c.GetString("email")
}

// --- Password reset ---

type forgotPasswordRequest struct {
	Action      string `json:"action" binding:"required"`
	Email       string `json:"email" binding:"required"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// handleForgotPassword drives the three-step reset flow: sendOtp emails a
// code, validateOtp checks it, updatePassword consumes it and writes the new
// hash.
func (s *Server) handleForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action and email are required"})
		return
	}

	switch req.Action {
	case "sendOtp":
		if _, err := s.store.GetCustomerByEmail(req.Email); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
				return
			}
			s.log.Error("get customer", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}

		otp, err := generateOTP()
		if err != nil {
			s.log.Error("generate otp", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}
		s.otps.put(req.Email, otp)

		if err := s.mailer.SendPasswordReset(c.Request.Context(), req.Email, otp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send OTP"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OTP sent"})

	case "validateOtp":
		if !s.otps.check(req.Email, req.OTP) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTP"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OTP validated"})

	case "updatePassword":
		if !s.otps.check(req.Email, req.OTP) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTP"})
			return
		}
		if req.NewPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "New password is required"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), 10)
		if err != nil {
			s.log.Error("hash password", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}
		if err := s.store.UpdateCustomerPassword(req.Email, string(hashed)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
				return
			}
			s.log.Error("update password", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}
		s.otps.consume(req.Email)

		c.JSON(http.StatusOK, gin.H{"message": "Password updated"})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
	}
}

// --- Dashboard ---

func (s *Server) handleDashboard(c *gin.Context) {
	services, err := s.store.CustomerServices(customerEmail(c))
	if err != nil {
		s.log.Error("customer services", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	if len(services) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No services found"})
		return
	}
	c.JSON(http.StatusOK, services)
}

// --- Tickets ---

func (s *Server) handleListTickets(c *gin.Context) {
	tickets, err := s.store.ListTicketsByEmail(customerEmail(c))
	if err != nil {
		s.log.Error("list tickets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	ticket, err := s.store.CreateTicket(customerEmail(c))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found for the provided email"})
		return
	}
	if err != nil {
		s.log.Error("create ticket", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// ownTicket loads the ticket from the :id param and rejects the request
// unless it belongs to the authenticated customer
func (s *Server) ownTicket(c *gin.Context) (*store.Ticket, bool) {
	ticketID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket id"})
		return nil, false
	}

	ticket, err := s.store.GetTicket(ticketID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return nil, false
	}
	if err != nil {
		s.log.Error("get ticket", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return nil, false
	}

	customer, err := s.store.GetCustomerByEmail(customerEmail(c))
	if err != nil || customer.ID != ticket.CustomerID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return nil, false
	}

	return ticket, true
}

type resolveTicketRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

func (s *Server) handleResolveTicket(c *gin.Context) {
	ticket, ok := s.ownTicket(c)
	if !ok {
		return
	}

	var req resolveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Resolved flag is required"})
		return
	}

	if err := s.store.SetTicketResolved(ticket.ID, *req.Resolved); err != nil {
		s.log.Error("resolve ticket", "ticket_id", ticket.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ticket updated"})
}

func (s *Server) handleListTicketMessages(c *gin.Context) {
	ticket, ok := s.ownTicket(c)
	if !ok {
		return
	}

	msgs, err := s.store.ListTicketMessages(ticket.ID)
	if err != nil {
		s.log.Error("list ticket messages", "ticket_id", ticket.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

type ticketMessageRequest struct {
	Content string `json:"message_content" binding:"required"`
}

func (s *Server) handleAddTicketMessage(c *gin.Context) {
	ticket, ok := s.ownTicket(c)
	if !ok {
		return
	}

	var req ticketMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}

	msg, err := s.store.AddTicketMessage(ticket.ID, req.Content, false)
	if err != nil {
		s.log.Error("add ticket message", "ticket_id", ticket.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, msg)
}
